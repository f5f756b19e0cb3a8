package repository

import (
	"context"
	"fmt"

	"github.com/vipul43/tanksync-worker/internal/models"
	"gorm.io/gorm"
)

const insertBatchSize = 500

type TankDataRepository struct {
	db *gorm.DB
}

func NewTankDataRepository(db *gorm.DB) *TankDataRepository {
	return &TankDataRepository{db: db}
}

// DataCounts is the number of stored rows for one customer.
type DataCounts struct {
	Locations int64
	Tanks     int64
	Readings  int64
}

// ReplaceCustomerData wipes a customer's locations, tanks and readings and inserts
// the new set in a single transaction. Deletes run children first and inserts run
// parents first so no reading ever points at a missing tank.
func (r *TankDataRepository) ReplaceCustomerData(ctx context.Context, customerID string, locations []models.Location, tanks []models.Tank, readings []models.Reading) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialises overlapping refreshes of the same customer across processes.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "smartfill:"+customerID).Error; err != nil {
				return fmt.Errorf("failed to acquire customer lock: %w", err)
			}
		}

		customerTanks := tx.Model(&models.Tank{}).Select("id").Where("customer_id = ?", customerID)
		if err := tx.Where("tank_id IN (?)", customerTanks).Delete(&models.Reading{}).Error; err != nil {
			return fmt.Errorf("failed to delete readings: %w", err)
		}
		if err := tx.Where("customer_id = ?", customerID).Delete(&models.Tank{}).Error; err != nil {
			return fmt.Errorf("failed to delete tanks: %w", err)
		}
		if err := tx.Where("customer_id = ?", customerID).Delete(&models.Location{}).Error; err != nil {
			return fmt.Errorf("failed to delete locations: %w", err)
		}

		if len(locations) > 0 {
			if err := tx.CreateInBatches(&locations, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to insert locations: %w", err)
			}
		}
		if len(tanks) > 0 {
			if err := tx.CreateInBatches(&tanks, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to insert tanks: %w", err)
			}
		}
		if len(readings) > 0 {
			if err := tx.CreateInBatches(&readings, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to insert readings: %w", err)
			}
		}
		return nil
	})
}

// CountByCustomer returns how many rows are stored for a customer
func (r *TankDataRepository) CountByCustomer(ctx context.Context, customerID string) (DataCounts, error) {
	var counts DataCounts
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Location{}).Where("customer_id = ?", customerID).Count(&counts.Locations).Error; err != nil {
		return counts, fmt.Errorf("failed to count locations: %w", err)
	}
	if err := db.Model(&models.Tank{}).Where("customer_id = ?", customerID).Count(&counts.Tanks).Error; err != nil {
		return counts, fmt.Errorf("failed to count tanks: %w", err)
	}
	err := db.Model(&models.Reading{}).
		Where("tank_id IN (?)", db.Model(&models.Tank{}).Select("id").Where("customer_id = ?", customerID)).
		Count(&counts.Readings).Error
	if err != nil {
		return counts, fmt.Errorf("failed to count readings: %w", err)
	}
	return counts, nil
}
