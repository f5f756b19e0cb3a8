package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vipul43/tanksync-worker/internal/logging"
	"github.com/vipul43/tanksync-worker/internal/metrics"
	"github.com/vipul43/tanksync-worker/internal/models"
	"golang.org/x/sync/errgroup"
)

const MessageNoCustomers = "no customers to sync"

// Trigger describes who started a run. CustomerIDs, when set, restricts the batch.
type Trigger struct {
	Type        models.SyncType
	Source      string
	CustomerIDs []string
}

// RunSummary is what a finished batch reports back to its entrypoint.
type RunSummary struct {
	Summary
	SyncLogID   string
	Message     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Results     []models.SyncResult
}

// CustomerProcessor syncs a single customer
type CustomerProcessor interface {
	SyncCustomer(ctx context.Context, customer models.Customer) models.SyncResult
}

type RunnerConfig struct {
	// Concurrency is the number of customers synced at once. Values below 1 mean 1.
	Concurrency int
	// RunTimeout aborts the batch. Customers not yet started are skipped. Zero disables it.
	RunTimeout time.Duration
}

type Runner struct {
	customers CustomerStore
	syncer    CustomerProcessor
	recorder  *RunRecorder
	cfg       RunnerConfig
	now       func() time.Time
	log       zerolog.Logger
}

func NewRunner(customers CustomerStore, syncer CustomerProcessor, recorder *RunRecorder, cfg RunnerConfig) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{
		customers: customers,
		syncer:    syncer,
		recorder:  recorder,
		cfg:       cfg,
		now:       time.Now,
		log:       logging.WithComponent("runner"),
	}
}

// Run syncs every syncable customer and records the batch. The only error
// returned is a failure to load the customer list.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (*RunSummary, error) {
	startedAt := r.now().UTC()
	stampCtx := context.WithoutCancel(ctx)
	run := r.recorder.Start(stampCtx, trigger, startedAt)
	log := r.log.With().Str("run_id", run.Entry.ID).Str("trigger", trigger.Source).Logger()

	customers, err := r.customers.ListSyncable(ctx, trigger.CustomerIDs)
	if err != nil {
		err = fmt.Errorf("failed to load customers: %w", err)
		completedAt := r.now().UTC()
		r.recorder.Complete(stampCtx, run, Summary{Status: models.RunStatusFailed}, nil, completedAt, err.Error())
		metrics.RecordRun(string(models.RunStatusFailed), completedAt.Sub(startedAt))
		log.Error().Err(err).Msg("Sync run aborted")
		return nil, err
	}

	log.Info().Int("customers", len(customers)).Int("concurrency", r.cfg.Concurrency).Msg("Starting sync run")

	runCtx := ctx
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	// Each worker owns its slot so the summary does not depend on completion order.
	results := make([]models.SyncResult, len(customers))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for i, customer := range customers {
		if runCtx.Err() != nil {
			break
		}
		i, customer := i, customer
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}
			results[i] = r.syncer.SyncCustomer(runCtx, customer)
			return nil
		})
	}
	_ = g.Wait()

	var abortErr error
	for i := range results {
		if results[i].Status != "" {
			continue
		}
		abortErr = runCtx.Err()
		results[i] = models.SyncResult{
			CustomerID:   customers[i].ID,
			CustomerName: customers[i].Name,
			Status:       models.CustomerSyncSkipped,
			Error:        fmt.Sprintf("not started: %v", abortErr),
		}
	}

	for _, res := range results {
		metrics.RecordCustomerSync(string(res.Status), res.Locations, res.Tanks, res.Readings)
	}

	summary := Summarize(results)
	completedAt := r.now().UTC()

	var errMsg string
	if abortErr != nil {
		errMsg = fmt.Sprintf("run aborted (%v): %d customer(s) skipped", abortErr, summary.Skipped)
		if digest := failureDigest(results); digest != "" {
			errMsg += "; " + digest
		}
	}
	r.recorder.Complete(stampCtx, run, summary, results, completedAt, errMsg)
	metrics.RecordRun(string(summary.Status), completedAt.Sub(startedAt))

	out := &RunSummary{
		Summary:     summary,
		Message:     runMessage(summary, len(customers)),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Results:     results,
	}
	if run.Persisted {
		out.SyncLogID = run.Entry.ID
	}

	log.Info().
		Str("status", string(summary.Status)).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", out.Duration).
		Msg("Sync run finished")
	return out, nil
}

func runMessage(s Summary, total int) string {
	if total == 0 {
		return MessageNoCustomers
	}
	switch s.Status {
	case models.RunStatusSuccess:
		return fmt.Sprintf("synced %d customer(s)", s.Succeeded)
	case models.RunStatusPartial:
		return fmt.Sprintf("synced %d of %d customer(s), %d failed", s.Succeeded, s.Attempted, s.Failed)
	}
	if s.Attempted == 0 {
		return fmt.Sprintf("run aborted before any customer started, %d skipped", s.Skipped)
	}
	return fmt.Sprintf("all %d customer sync(s) failed", s.Failed)
}
