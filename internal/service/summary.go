package service

import (
	"math"

	"github.com/vipul43/tanksync-worker/internal/models"
)

// Summary is the aggregate of a batch's customer results.
type Summary struct {
	Status      models.RunStatus
	Attempted   int
	Succeeded   int
	Failed      int
	Skipped     int
	Locations   int
	Tanks       int
	Readings    int
	SuccessRate int
}

// Summarize folds per-customer results into run totals. Skipped customers were
// never attempted and do not count towards the success rate.
func Summarize(results []models.SyncResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case models.CustomerSyncSuccess:
			s.Succeeded++
		case models.CustomerSyncFailed:
			s.Failed++
		default:
			s.Skipped++
			continue
		}
		s.Locations += r.Locations
		s.Tanks += r.Tanks
		s.Readings += r.Readings
	}
	s.Attempted = s.Succeeded + s.Failed

	switch {
	case s.Attempted == 0 && s.Skipped > 0:
		s.Status = models.RunStatusFailed
	case s.Failed == 0:
		s.Status = models.RunStatusSuccess
	case s.Succeeded > 0:
		s.Status = models.RunStatusPartial
	default:
		s.Status = models.RunStatusFailed
	}

	s.SuccessRate = 100
	if s.Attempted > 0 {
		s.SuccessRate = int(math.Round(float64(s.Succeeded) / float64(s.Attempted) * 100))
	}
	return s
}
