package models

import "time"

type HealthStatus string

const (
	HealthCritical HealthStatus = "critical"
	HealthWarning  HealthStatus = "warning"
	HealthHealthy  HealthStatus = "healthy"
	// HealthUnknown is used when the source row carries no parseable fill percentage.
	HealthUnknown HealthStatus = "unknown"
)

// Fill percentage thresholds for tank health.
const (
	CriticalThresholdPercent = 20.0
	WarningThresholdPercent  = 40.0
)

// ClassifyHealth maps a fill percentage to a health band.
func ClassifyHealth(percent *float64) HealthStatus {
	if percent == nil {
		return HealthUnknown
	}
	switch {
	case *percent < CriticalThresholdPercent:
		return HealthCritical
	case *percent < WarningThresholdPercent:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

// Location groups the tanks that share a SmartFill unit number.
type Location struct {
	ID             string     `gorm:"column:id;primaryKey"`
	CustomerID     string     `gorm:"column:customer_id;index"`
	ExternalGUID   string     `gorm:"column:external_guid;index"`
	UnitNumber     string     `gorm:"column:unit_number"`
	Name           string     `gorm:"column:name"`
	Timezone       *string    `gorm:"column:timezone"`
	TotalTanks     int        `gorm:"column:total_tanks"`
	TotalCapacity  float64    `gorm:"column:total_capacity"`
	TotalVolume    float64    `gorm:"column:total_volume"`
	AvgFillPercent *float64   `gorm:"column:avg_fill_percent"`
	CriticalTanks  int        `gorm:"column:critical_tanks"`
	WarningTanks   int        `gorm:"column:warning_tanks"`
	LatestStatus   *string    `gorm:"column:latest_status"`
	LatestUpdate   *string    `gorm:"column:latest_update"`
	LatestUpdateAt *time.Time `gorm:"column:latest_update_at"`
	IsActive       bool       `gorm:"column:is_active"`
	SyncedAt       time.Time  `gorm:"column:synced_at"`
}

// TableName specifies the table name for GORM
func (Location) TableName() string {
	return "smartfill_locations"
}

// Tank is a single monitored tank inside a Location.
type Tank struct {
	ID                  string       `gorm:"column:id;primaryKey"`
	LocationID          string       `gorm:"column:location_id;index"`
	CustomerID          string       `gorm:"column:customer_id;index"`
	ExternalGUID        string       `gorm:"column:external_guid;index"`
	UnitNumber          string       `gorm:"column:unit_number"`
	TankNumber          string       `gorm:"column:tank_number"`
	Name                string       `gorm:"column:name"`
	Capacity            *float64     `gorm:"column:capacity"`
	SafeFillLevel       *float64     `gorm:"column:safe_fill_level"`
	LatestVolume        *float64     `gorm:"column:latest_volume"`
	LatestVolumePercent *float64     `gorm:"column:latest_volume_percent"`
	Ullage              *float64     `gorm:"column:ullage"`
	LatestStatus        *string      `gorm:"column:latest_status"`
	Health              HealthStatus `gorm:"column:health"`
	LastReadingAt       *time.Time   `gorm:"column:last_reading_at"`
	IsActive            bool         `gorm:"column:is_active"`
	IsMonitored         bool         `gorm:"column:is_monitored"`
	SyncedAt            time.Time    `gorm:"column:synced_at"`
}

// TableName specifies the table name for GORM
func (Tank) TableName() string {
	return "smartfill_tanks"
}

// Reading is one level sample for a Tank, written once per sync cycle.
type Reading struct {
	ID              string    `gorm:"column:id;primaryKey"`
	TankID          string    `gorm:"column:tank_id;index"`
	CustomerID      string    `gorm:"column:customer_id;index"`
	Volume          *float64  `gorm:"column:volume"`
	VolumePercent   *float64  `gorm:"column:volume_percent"`
	Status          *string   `gorm:"column:status"`
	Capacity        *float64  `gorm:"column:capacity"`
	SafeFillLevel   *float64  `gorm:"column:safe_fill_level"`
	Ullage          *float64  `gorm:"column:ullage"`
	ReadingAt       time.Time `gorm:"column:reading_at;index"`
	SourceTimestamp *string   `gorm:"column:source_timestamp"`
	Timezone        *string   `gorm:"column:timezone"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (Reading) TableName() string {
	return "smartfill_readings_history"
}

// Ullage returns capacity minus volume floored at zero, or nil when either is unknown.
func Ullage(capacity, volume *float64) *float64 {
	if capacity == nil || volume == nil {
		return nil
	}
	u := *capacity - *volume
	if u < 0 {
		u = 0
	}
	return &u
}
