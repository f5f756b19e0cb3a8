package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vipul43/tanksync-worker/internal/models"
	"gorm.io/gorm"
)

var ErrSyncLogNotFound = errors.New("sync log not found")

type SyncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Create inserts a new run entry
func (r *SyncLogRepository) Create(ctx context.Context, entry *models.SyncLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

// Complete writes the terminal status and counters of a run
func (r *SyncLogRepository) Complete(ctx context.Context, entry *models.SyncLog) error {
	result := r.db.WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":              entry.Status,
			"completed_at":        entry.CompletedAt,
			"duration_ms":         entry.DurationMs,
			"customers_attempted": entry.CustomersAttempted,
			"customers_succeeded": entry.CustomersSucceeded,
			"customers_failed":    entry.CustomersFailed,
			"customers_skipped":   entry.CustomersSkipped,
			"locations_processed": entry.LocationsProcessed,
			"tanks_processed":     entry.TanksProcessed,
			"readings_processed":  entry.ReadingsProcessed,
			"results":             entry.Results,
			"error_message":       entry.ErrorMessage,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete sync log: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSyncLogNotFound
	}
	return nil
}

// GetByID retrieves a run entry by ID
func (r *SyncLogRepository) GetByID(ctx context.Context, id string) (*models.SyncLog, error) {
	var entry models.SyncLog
	result := r.db.WithContext(ctx).First(&entry, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSyncLogNotFound
		}
		return nil, fmt.Errorf("failed to get sync log: %w", result.Error)
	}
	return &entry, nil
}

// ListRecent retrieves the latest run entries, newest first
func (r *SyncLogRepository) ListRecent(ctx context.Context, limit int) ([]models.SyncLog, error) {
	var entries []models.SyncLog
	result := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", result.Error)
	}
	return entries, nil
}
