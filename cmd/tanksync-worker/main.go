package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vipul43/tanksync-worker/internal/config"
	"github.com/vipul43/tanksync-worker/internal/database"
	"github.com/vipul43/tanksync-worker/internal/httpapi"
	"github.com/vipul43/tanksync-worker/internal/logging"
	"github.com/vipul43/tanksync-worker/internal/models"
	"github.com/vipul43/tanksync-worker/internal/repository"
	"github.com/vipul43/tanksync-worker/internal/service"
	"github.com/vipul43/tanksync-worker/internal/smartfill"
	"github.com/vipul43/tanksync-worker/internal/supervisor"
	"github.com/vipul43/tanksync-worker/internal/transform"
	"github.com/vipul43/tanksync-worker/internal/watcher"
)

func main() {
	once := flag.Bool("once", false, "run a single sync batch and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		logging.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}

func run(once bool) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	logging.Info().Msg("Database connected successfully")

	// Run migrations
	logging.Info().Msg("Running database migrations...")
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	logging.Info().Msg("Migrations completed successfully")

	// Initialize repositories
	customerRepo := repository.NewCustomerRepository(db.DB)
	tankDataRepo := repository.NewTankDataRepository(db.DB)
	syncLogRepo := repository.NewSyncLogRepository(db.DB)

	// Initialize SmartFill client
	var fetcher smartfill.Fetcher = smartfill.NewClient(smartfill.Config{
		URL:            cfg.SmartFillAPIURL,
		Timeout:        cfg.SmartFillTimeoutDuration(),
		MaxRetries:     cfg.SmartFillMaxRetries,
		InitialBackoff: cfg.SmartFillInitialBackoffDuration(),
	})
	if cfg.BreakerEnabled {
		fetcher = smartfill.NewBreakerClient(fetcher, smartfill.BreakerConfig{
			ConsecutiveFailures: uint32(cfg.BreakerFailureThreshold),
			Cooldown:            cfg.BreakerCooldownDuration(),
		})
	}

	// Initialize services
	syncer := service.NewCustomerSyncer(fetcher, customerRepo, tankDataRepo, transform.New())
	runner := service.NewRunner(customerRepo, syncer, service.NewRunRecorder(syncLogRepo), service.RunnerConfig{
		Concurrency: cfg.SyncConcurrency,
		RunTimeout:  cfg.SyncRunTimeoutDuration(),
	})

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		return runOnce(ctx, runner)
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.ShutdownTimeoutDuration()})
	if cfg.SchedulerEnabled {
		tree.Add(watcher.New(watcher.Config{
			Interval:   cfg.SyncIntervalDuration(),
			RunOnStart: cfg.SyncRunOnStart,
		}, runner))
	} else {
		logging.Info().Msg("Scheduler disabled, runs are triggered over HTTP only")
	}
	tree.Add(httpapi.New(httpapi.Config{
		Addr:            cfg.ListenAddr(),
		CronSecret:      cfg.CronSecret,
		SignatureHeader: cfg.CronSignatureHeader,
		ShutdownTimeout: cfg.ShutdownTimeoutDuration(),
	}, runner, syncLogRepo))

	logging.Info().Str("addr", cfg.ListenAddr()).Msg("Worker started")

	// Wait for shutdown signal or error
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Application stopped")
	return nil
}

func runOnce(ctx context.Context, runner *service.Runner) error {
	start := time.Now()
	summary, err := runner.Run(ctx, service.Trigger{Type: models.SyncTypeManual, Source: "cli"})
	if err != nil {
		return err
	}
	logging.Info().
		Str("status", string(summary.Status)).
		Str("message", summary.Message).
		Str("sync_log_id", summary.SyncLogID).
		Dur("elapsed", time.Since(start)).
		Msg("Single sync run finished")
	if summary.Status == models.RunStatusFailed {
		return fmt.Errorf("sync run failed: %s", summary.Message)
	}
	return nil
}
