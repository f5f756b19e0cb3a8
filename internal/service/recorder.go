package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vipul43/tanksync-worker/internal/logging"
	"github.com/vipul43/tanksync-worker/internal/models"
)

// maxErrorMessageLen bounds the run-level error summary
const maxErrorMessageLen = 2000

// SyncLogStore persists run-level log entries
type SyncLogStore interface {
	Create(ctx context.Context, entry *models.SyncLog) error
	Complete(ctx context.Context, entry *models.SyncLog) error
}

// RunRecorder writes the start and end of a run. A failed write is logged and
// never fails the run.
type RunRecorder struct {
	logs  SyncLogStore
	newID func() string
	log   zerolog.Logger
}

func NewRunRecorder(logs SyncLogStore) *RunRecorder {
	return &RunRecorder{
		logs:  logs,
		newID: uuid.NewString,
		log:   logging.WithComponent("recorder"),
	}
}

// RunLog is an in-flight run entry. Persisted is false when the start write failed,
// in which case Complete does nothing.
type RunLog struct {
	Entry     *models.SyncLog
	Persisted bool
}

func (r *RunRecorder) Start(ctx context.Context, trigger Trigger, startedAt time.Time) *RunLog {
	entry := &models.SyncLog{
		ID:            r.newID(),
		SyncType:      trigger.Type,
		TriggerSource: trigger.Source,
		Status:        models.RunStatusRunning,
		StartedAt:     startedAt,
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		r.log.Warn().Err(err).Str("run_id", entry.ID).Msg("Failed to create sync log")
		return &RunLog{Entry: entry}
	}
	return &RunLog{Entry: entry, Persisted: true}
}

// Complete writes the terminal state exactly once.
func (r *RunRecorder) Complete(ctx context.Context, run *RunLog, summary Summary, results []models.SyncResult, completedAt time.Time, errMsg string) {
	e := run.Entry
	duration := completedAt.Sub(e.StartedAt).Milliseconds()
	e.Status = summary.Status
	e.CompletedAt = &completedAt
	e.DurationMs = &duration
	e.CustomersAttempted = summary.Attempted
	e.CustomersSucceeded = summary.Succeeded
	e.CustomersFailed = summary.Failed
	e.CustomersSkipped = summary.Skipped
	e.LocationsProcessed = summary.Locations
	e.TanksProcessed = summary.Tanks
	e.ReadingsProcessed = summary.Readings
	e.Results = models.SyncResults(results)
	if errMsg == "" {
		errMsg = failureDigest(results)
	}
	if errMsg != "" {
		errMsg = truncateMessage(errMsg, maxErrorMessageLen)
		e.ErrorMessage = &errMsg
	}

	if !run.Persisted {
		return
	}
	if err := r.logs.Complete(ctx, e); err != nil {
		r.log.Warn().Err(err).Str("run_id", e.ID).Msg("Failed to complete sync log")
	}
}

// truncateMessage cuts s to at most n bytes on a rune boundary and drops any
// invalid sequences, since Postgres rejects invalid UTF-8 in text columns.
func truncateMessage(s string, n int) string {
	if len(s) > n {
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	return strings.ToValidUTF8(s, "")
}

// failureDigest joins the errors of failed customers
func failureDigest(results []models.SyncResult) string {
	var parts []string
	for _, res := range results {
		if res.Status == models.CustomerSyncFailed && res.Error != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", res.CustomerName, res.Error))
		}
	}
	return strings.Join(parts, "; ")
}
