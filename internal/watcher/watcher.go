package watcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/vipul43/tanksync-worker/internal/logging"
	"github.com/vipul43/tanksync-worker/internal/models"
	"github.com/vipul43/tanksync-worker/internal/service"
)

const TriggerSource = "scheduler"

// BatchRunner runs one sync batch
type BatchRunner interface {
	Run(ctx context.Context, trigger service.Trigger) (*service.RunSummary, error)
}

type Config struct {
	Interval   time.Duration
	RunOnStart bool
}

// Watcher triggers scheduled sync runs on a fixed interval.
type Watcher struct {
	cfg    Config
	runner BatchRunner
	log    zerolog.Logger
}

func New(cfg Config, runner BatchRunner) *Watcher {
	return &Watcher{
		cfg:    cfg,
		runner: runner,
		log:    logging.WithComponent("watcher"),
	}
}

// Start blocks until ctx is cancelled. Runs execute inline on the ticker
// goroutine, so a slow run delays the next tick instead of overlapping it.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Interval).Bool("run_on_start", w.cfg.RunOnStart).Msg("Starting sync watcher")

	if w.cfg.RunOnStart {
		w.runOnce(ctx)
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Watcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Serve implements suture.Service
func (w *Watcher) Serve(ctx context.Context) error {
	return w.Start(ctx)
}

func (w *Watcher) String() string {
	return "sync-watcher"
}

func (w *Watcher) runOnce(ctx context.Context) {
	summary, err := w.runner.Run(ctx, service.Trigger{
		Type:   models.SyncTypeScheduled,
		Source: TriggerSource,
	})
	if err != nil {
		w.log.Error().Err(err).Msg("Scheduled sync run failed")
		return
	}
	w.log.Info().
		Str("status", string(summary.Status)).
		Str("sync_log_id", summary.SyncLogID).
		Str("message", summary.Message).
		Msg("Scheduled sync run completed")
}
