// Package transform turns a SmartFill Tank:Level table into locations, tanks and readings.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // source rows carry IANA zone names

	"github.com/google/uuid"

	"github.com/vipul43/tanksync-worker/internal/models"
	"github.com/vipul43/tanksync-worker/internal/smartfill"
)

// Column names in the Tank:Level response.
const (
	ColUnitNumber    = "Unit Number"
	ColDescription   = "Description"
	ColVolume        = "Volume"
	ColVolumePercent = "Volume Percent"
	ColCapacity      = "Capacity"
	ColSafeFill      = "Tank SFL"
	ColStatus        = "Status"
	ColLastUpdated   = "Last Updated"
	ColTimezone      = "Timezone"
	ColTankNumber    = "Tank Number"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Result holds the records produced for one customer.
type Result struct {
	Locations []models.Location
	Tanks     []models.Tank
	Readings  []models.Reading
}

// Empty reports whether the cycle produced no locations and no tanks.
func (r Result) Empty() bool {
	return len(r.Locations) == 0 && len(r.Tanks) == 0
}

type Transformer struct {
	newID func() string
}

func New() *Transformer {
	return &Transformer{newID: uuid.NewString}
}

// NewWithIDGenerator is used by tests that need predictable primary keys.
func NewWithIDGenerator(newID func() string) *Transformer {
	return &Transformer{newID: newID}
}

// LocationGUID is the stable identifier of a customer's unit across syncs.
func LocationGUID(customerID, unitNumber string) string {
	return fmt.Sprintf("smartfill-%s-%s", customerID, unitNumber)
}

// TankGUID is the stable identifier of a tank across syncs.
func TankGUID(customerID, unitNumber, tankNumber string) string {
	return fmt.Sprintf("smartfill-%s-%s-%s", customerID, unitNumber, tankNumber)
}

type row struct {
	values []interface{}
	cols   map[string]int
}

func (r row) raw(col string) interface{} {
	i, ok := r.cols[col]
	if !ok || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

func (r row) str(col string) string {
	switch v := r.raw(col).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (r row) optStr(col string) *string {
	s := r.str(col)
	if s == "" {
		return nil
	}
	return &s
}

func (r row) num(col string) *float64 {
	return parseNumber(r.raw(col))
}

type group struct {
	unit string
	rows []row
}

// Transform builds the full-refresh record set for a customer. It performs no I/O.
// A payload without columns or values yields an empty Result.
func (t *Transformer) Transform(payload *smartfill.Payload, customerID, customerName string, syncTime time.Time) Result {
	result := Result{
		Locations: []models.Location{},
		Tanks:     []models.Tank{},
		Readings:  []models.Reading{},
	}
	if payload == nil || len(payload.Columns) == 0 || len(payload.Values) == 0 {
		return result
	}

	cols := make(map[string]int, len(payload.Columns))
	for i, name := range payload.Columns {
		cols[strings.TrimSpace(name)] = i
	}

	var groups []*group
	byUnit := make(map[string]*group)
	for _, values := range payload.Values {
		r := row{values: values, cols: cols}
		unit := r.str(ColUnitNumber)
		if unit == "" {
			continue
		}
		g, ok := byUnit[unit]
		if !ok {
			g = &group{unit: unit}
			byUnit[unit] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}

	for _, g := range groups {
		location := t.buildLocation(g, customerID, customerName, syncTime)
		result.Locations = append(result.Locations, location)

		for i, r := range g.rows {
			tank := t.buildTank(r, i, location, customerID, syncTime)
			result.Tanks = append(result.Tanks, tank)

			if tank.LatestVolume == nil && tank.LatestVolumePercent == nil {
				continue
			}
			result.Readings = append(result.Readings, models.Reading{
				ID:              t.newID(),
				TankID:          tank.ID,
				CustomerID:      customerID,
				Volume:          tank.LatestVolume,
				VolumePercent:   tank.LatestVolumePercent,
				Status:          tank.LatestStatus,
				Capacity:        tank.Capacity,
				SafeFillLevel:   tank.SafeFillLevel,
				Ullage:          tank.Ullage,
				ReadingAt:       *tank.LastReadingAt,
				SourceTimestamp: r.optStr(ColLastUpdated),
				Timezone:        r.optStr(ColTimezone),
				CreatedAt:       syncTime,
			})
		}
	}

	return result
}

func (t *Transformer) buildLocation(g *group, customerID, customerName string, syncTime time.Time) models.Location {
	var (
		percentSum     float64
		percentCount   int
		totalVolume    float64
		totalCapacity  float64
		critical       int
		warning        int
		latestUpdate   string
		latestStatus   *string
		latestTimezone string
		timezone       *string
		name           string
	)

	for _, r := range g.rows {
		if p := r.num(ColVolumePercent); p != nil {
			if *p >= 0 {
				percentSum += *p
				percentCount++
			}
			switch models.ClassifyHealth(p) {
			case models.HealthCritical:
				critical++
			case models.HealthWarning:
				warning++
			}
		}
		if v := r.num(ColVolume); v != nil {
			totalVolume += *v
		}
		if c := r.num(ColCapacity); c != nil {
			totalCapacity += *c
		}
		if timezone == nil {
			timezone = r.optStr(ColTimezone)
		}
		if name == "" {
			name = r.str(ColDescription)
		}
		if updated := r.str(ColLastUpdated); updated != "" && updated > latestUpdate {
			latestUpdate = updated
			latestStatus = r.optStr(ColStatus)
			latestTimezone = r.str(ColTimezone)
		}
	}

	if name == "" {
		name = fmt.Sprintf("%s - Unit %s", customerName, g.unit)
	}

	location := models.Location{
		ID:            t.newID(),
		CustomerID:    customerID,
		ExternalGUID:  LocationGUID(customerID, g.unit),
		UnitNumber:    g.unit,
		Name:          name,
		Timezone:      timezone,
		TotalTanks:    len(g.rows),
		TotalCapacity: round2(totalCapacity),
		TotalVolume:   round2(totalVolume),
		CriticalTanks: critical,
		WarningTanks:  warning,
		LatestStatus:  latestStatus,
		IsActive:      true,
		SyncedAt:      syncTime,
	}
	if percentCount > 0 {
		avg := round2(percentSum / float64(percentCount))
		location.AvgFillPercent = &avg
	}
	if latestUpdate != "" {
		location.LatestUpdate = &latestUpdate
		location.LatestUpdateAt = parseTimestamp(latestUpdate, latestTimezone)
	}
	return location
}

func (t *Transformer) buildTank(r row, index int, location models.Location, customerID string, syncTime time.Time) models.Tank {
	tankNumber := r.str(ColTankNumber)
	if tankNumber == "" {
		tankNumber = strconv.Itoa(index + 1)
	}
	name := r.str(ColDescription)
	if name == "" {
		name = "Tank " + tankNumber
	}

	capacity := r.num(ColCapacity)
	volume := r.num(ColVolume)
	percent := r.num(ColVolumePercent)

	readingAt := syncTime
	if ts := parseTimestamp(r.str(ColLastUpdated), r.str(ColTimezone)); ts != nil {
		readingAt = *ts
	}

	return models.Tank{
		ID:                  t.newID(),
		LocationID:          location.ID,
		CustomerID:          customerID,
		ExternalGUID:        TankGUID(customerID, location.UnitNumber, tankNumber),
		UnitNumber:          location.UnitNumber,
		TankNumber:          tankNumber,
		Name:                name,
		Capacity:            capacity,
		SafeFillLevel:       r.num(ColSafeFill),
		LatestVolume:        volume,
		LatestVolumePercent: percent,
		Ullage:              models.Ullage(capacity, volume),
		LatestStatus:        r.optStr(ColStatus),
		Health:              models.ClassifyHealth(percent),
		LastReadingAt:       &readingAt,
		IsActive:            true,
		IsMonitored:         true,
		SyncedAt:            syncTime,
	}
}

// parseNumber accepts JSON numbers and numeric strings. Anything else, including
// NaN and Inf, yields nil.
func parseNumber(v interface{}) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		s = strings.TrimSuffix(s, "%")
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseTimestamp(raw, timezone string) *time.Time {
	if raw == "" {
		return nil
	}
	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
