package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vipul43/tanksync-worker/internal/models"
	"gorm.io/gorm"
)

var ErrCustomerNotFound = errors.New("customer not found")

type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// GetByID retrieves customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, customerID string) (*models.Customer, error) {
	var customer models.Customer
	result := r.db.WithContext(ctx).First(&customer, "id = ?", customerID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", result.Error)
	}
	return &customer, nil
}

// ListSyncable retrieves active, sync-enabled customers in priority order.
// A non-empty ids list restricts the result to those customers.
func (r *CustomerRepository) ListSyncable(ctx context.Context, ids []string) ([]models.Customer, error) {
	var customers []models.Customer
	query := r.db.WithContext(ctx).
		Where("active = ? AND sync_enabled = ?", true, true)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	result := query.
		Order("sync_priority ASC").
		Order("name ASC").
		Find(&customers)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query syncable customers: %w", result.Error)
	}
	return customers, nil
}

// MarkSyncSuccess stamps a successful sync and resets the failure counter
func (r *CustomerRepository) MarkSyncSuccess(ctx context.Context, customerID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		Updates(map[string]interface{}{
			"consecutive_sync_failures": 0,
			"last_sync_at":              at,
			"last_sync_status":          string(models.CustomerSyncSuccess),
			"last_sync_error":           nil,
			"updated_at":                time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark sync success: %w", result.Error)
	}
	return nil
}

// MarkSyncFailure stamps a failed sync and increments the failure counter by one
func (r *CustomerRepository) MarkSyncFailure(ctx context.Context, customerID string, at time.Time, syncErr string) error {
	result := r.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		Updates(map[string]interface{}{
			"consecutive_sync_failures": gorm.Expr("consecutive_sync_failures + 1"),
			"last_sync_at":              at,
			"last_sync_status":          string(models.CustomerSyncFailed),
			"last_sync_error":           syncErr,
			"updated_at":                time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark sync failure: %w", result.Error)
	}
	return nil
}
