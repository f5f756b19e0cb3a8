package models

import (
	"database/sql/driver"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

type SyncType string

const (
	SyncTypeScheduled SyncType = "scheduled"
	SyncTypeManual    SyncType = "manual"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

type CustomerSyncStatus string

const (
	CustomerSyncSuccess CustomerSyncStatus = "success"
	CustomerSyncFailed  CustomerSyncStatus = "failed"
	CustomerSyncSkipped CustomerSyncStatus = "skipped"
)

// SyncResult is the outcome of one customer's sync cycle.
type SyncResult struct {
	CustomerID   string             `json:"customer_id"`
	CustomerName string             `json:"customer_name"`
	Status       CustomerSyncStatus `json:"status"`
	Locations    int                `json:"locations"`
	Tanks        int                `json:"tanks"`
	Readings     int                `json:"readings"`
	DurationMs   int64              `json:"duration_ms"`
	Error        string             `json:"error,omitempty"`
}

// SyncResults is stored as a JSON column.
type SyncResults []SyncResult

// Value implements driver.Valuer for SyncResults
func (r SyncResults) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for SyncResults
func (r *SyncResults) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(data, r)
}

// SyncLog is the run-level record of one batch sync.
type SyncLog struct {
	ID                 string      `gorm:"column:id;primaryKey"`
	SyncType           SyncType    `gorm:"column:sync_type"`
	TriggerSource      string      `gorm:"column:trigger_source"`
	Status             RunStatus   `gorm:"column:status;index"`
	StartedAt          time.Time   `gorm:"column:started_at;index"`
	CompletedAt        *time.Time  `gorm:"column:completed_at"`
	DurationMs         *int64      `gorm:"column:duration_ms"`
	CustomersAttempted int         `gorm:"column:customers_attempted"`
	CustomersSucceeded int         `gorm:"column:customers_succeeded"`
	CustomersFailed    int         `gorm:"column:customers_failed"`
	CustomersSkipped   int         `gorm:"column:customers_skipped"`
	LocationsProcessed int         `gorm:"column:locations_processed"`
	TanksProcessed     int         `gorm:"column:tanks_processed"`
	ReadingsProcessed  int         `gorm:"column:readings_processed"`
	Results            SyncResults `gorm:"column:results;type:jsonb"`
	ErrorMessage       *string     `gorm:"column:error_message"`
}

// TableName specifies the table name for GORM
func (SyncLog) TableName() string {
	return "smartfill_sync_logs"
}
