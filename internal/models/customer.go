package models

import "time"

// Customer is one SmartFill account the worker syncs.
// Rows are managed from the admin UI; the worker only stamps sync bookkeeping.
type Customer struct {
	ID                  string     `gorm:"column:id;primaryKey"`
	Name                string     `gorm:"column:name"`
	APIReference        string     `gorm:"column:api_reference"`
	APISecret           string     `gorm:"column:api_secret"`
	Active              bool       `gorm:"column:active;index"`
	SyncEnabled         bool       `gorm:"column:sync_enabled"`
	SyncPriority        int        `gorm:"column:sync_priority"`
	ConsecutiveFailures int        `gorm:"column:consecutive_sync_failures"`
	LastSyncAt          *time.Time `gorm:"column:last_sync_at"`
	LastSyncStatus      *string    `gorm:"column:last_sync_status"`
	LastSyncError       *string    `gorm:"column:last_sync_error"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Customer) TableName() string {
	return "smartfill_customers"
}
