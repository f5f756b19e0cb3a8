package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/vipul43/tanksync-worker/internal/logging"
	"github.com/vipul43/tanksync-worker/internal/models"
	"github.com/vipul43/tanksync-worker/internal/service"
)

const (
	DefaultSignatureHeader = "x-vercel-cron-signature"

	SourceCron = "vercel-cron"
	SourceAPI  = "api"

	defaultLogLimit = 20
	maxLogLimit     = 100

	triggerKey = "sync_trigger"
)

// BatchRunner runs one sync batch
type BatchRunner interface {
	Run(ctx context.Context, trigger service.Trigger) (*service.RunSummary, error)
}

// SyncLogReader lists recent run entries
type SyncLogReader interface {
	ListRecent(ctx context.Context, limit int) ([]models.SyncLog, error)
}

type Config struct {
	Addr            string
	CronSecret      string
	SignatureHeader string
	ShutdownTimeout time.Duration
}

// Server exposes the sync trigger, run history, health and metrics.
type Server struct {
	cfg    Config
	runner BatchRunner
	logs   SyncLogReader
	engine *gin.Engine
	log    zerolog.Logger
}

func New(cfg Config, runner BatchRunner, logs SyncLogReader) *Server {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	s := &Server{
		cfg:    cfg,
		runner: runner,
		logs:   logs,
		engine: engine,
		log:    logging.WithComponent("http"),
	}
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Serve implements suture.Service
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) String() string {
	return "http-server"
}

func (s *Server) registerRoutes() {
	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api", s.triggerAuth())
	api.POST("/cron/smartfill-sync", s.handleSync)
	api.GET("/smartfill/sync-logs", s.handleSyncLogs)
}

// triggerAuth accepts either the scheduler platform's signature header or the
// shared bearer secret. The header wins when both are present.
func (s *Server) triggerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader(s.cfg.SignatureHeader)) != "" {
			c.Set(triggerKey, service.Trigger{Type: models.SyncTypeScheduled, Source: SourceCron})
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if s.cfg.CronSecret != "" && strings.HasPrefix(auth, "Bearer ") {
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CronSecret)) == 1 {
				c.Set(triggerKey, service.Trigger{Type: models.SyncTypeManual, Source: SourceAPI})
				c.Next()
				return
			}
		}

		s.log.Warn().Str("path", c.FullPath()).Str("remote", c.ClientIP()).Msg("Rejected unauthenticated request")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
	}
}

type syncRequest struct {
	CustomerIDs []string `json:"customer_ids"`
}

type syncResponse struct {
	Success            bool             `json:"success"`
	Status             models.RunStatus `json:"status"`
	Message            string           `json:"message"`
	CustomersProcessed int              `json:"customers_processed"`
	CustomersSuccess   int              `json:"customers_success"`
	CustomersFailed    int              `json:"customers_failed"`
	CustomersSkipped   int              `json:"customers_skipped"`
	LocationsProcessed int              `json:"locations_processed"`
	TanksProcessed     int              `json:"tanks_processed"`
	ReadingsProcessed  int              `json:"readings_processed"`
	SuccessRate        int              `json:"success_rate"`
	SyncLogID          string           `json:"sync_log_id,omitempty"`
	DurationMs         int64            `json:"duration_ms"`
	Timestamp          string           `json:"timestamp"`
}

type errorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) handleSync(c *gin.Context) {
	start := time.Now()

	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}

	trigger := c.MustGet(triggerKey).(service.Trigger)
	trigger.CustomerIDs = req.CustomerIDs

	// A disconnecting caller must not abort a run halfway; the run timeout bounds it.
	summary, err := s.runner.Run(context.WithoutCancel(c.Request.Context()), trigger)
	if err != nil {
		s.log.Error().Err(err).Str("source", trigger.Source).Msg("Sync run failed")
		c.JSON(http.StatusInternalServerError, errorResponse{
			Success:    false,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, syncResponse{
		Success:            summary.Status != models.RunStatusFailed,
		Status:             summary.Status,
		Message:            summary.Message,
		CustomersProcessed: summary.Attempted,
		CustomersSuccess:   summary.Succeeded,
		CustomersFailed:    summary.Failed,
		CustomersSkipped:   summary.Skipped,
		LocationsProcessed: summary.Locations,
		TanksProcessed:     summary.Tanks,
		ReadingsProcessed:  summary.Readings,
		SuccessRate:        summary.SuccessRate,
		SyncLogID:          summary.SyncLogID,
		DurationMs:         summary.Duration.Milliseconds(),
		Timestamp:          summary.CompletedAt.UTC().Format(time.RFC3339),
	})
}

type syncLogView struct {
	ID                 string              `json:"id"`
	SyncType           models.SyncType     `json:"sync_type"`
	TriggerSource      string              `json:"trigger_source"`
	Status             models.RunStatus    `json:"status"`
	StartedAt          time.Time           `json:"started_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	DurationMs         *int64              `json:"duration_ms,omitempty"`
	CustomersAttempted int                 `json:"customers_attempted"`
	CustomersSucceeded int                 `json:"customers_succeeded"`
	CustomersFailed    int                 `json:"customers_failed"`
	CustomersSkipped   int                 `json:"customers_skipped"`
	LocationsProcessed int                 `json:"locations_processed"`
	TanksProcessed     int                 `json:"tanks_processed"`
	ReadingsProcessed  int                 `json:"readings_processed"`
	Results            []models.SyncResult `json:"results"`
	ErrorMessage       *string             `json:"error_message,omitempty"`
}

func (s *Server) handleSyncLogs(c *gin.Context) {
	limit := defaultLogLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(parsed, maxLogLimit)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	entries, err := s.logs.ListRecent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]syncLogView, 0, len(entries))
	for _, e := range entries {
		views = append(views, syncLogView{
			ID:                 e.ID,
			SyncType:           e.SyncType,
			TriggerSource:      e.TriggerSource,
			Status:             e.Status,
			StartedAt:          e.StartedAt,
			CompletedAt:        e.CompletedAt,
			DurationMs:         e.DurationMs,
			CustomersAttempted: e.CustomersAttempted,
			CustomersSucceeded: e.CustomersSucceeded,
			CustomersFailed:    e.CustomersFailed,
			CustomersSkipped:   e.CustomersSkipped,
			LocationsProcessed: e.LocationsProcessed,
			TanksProcessed:     e.TanksProcessed,
			ReadingsProcessed:  e.ReadingsProcessed,
			Results:            e.Results,
			ErrorMessage:       e.ErrorMessage,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sync_logs": views})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
