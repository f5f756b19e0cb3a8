// Package metrics exposes Prometheus instrumentation for sync runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfill_sync_runs_total",
			Help: "Total number of batch sync runs by final status",
		},
		[]string{"status"}, // "success", "partial", "failed"
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartfill_sync_run_duration_seconds",
			Help:    "Duration of batch sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartfill_sync_last_success_timestamp",
			Help: "Unix timestamp of the last run that finished without failures",
		},
	)

	CustomerSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfill_customer_syncs_total",
			Help: "Total number of per-customer sync cycles by outcome",
		},
		[]string{"status"}, // "success", "failed", "skipped"
	)

	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfill_records_processed_total",
			Help: "Total number of records written during full refreshes",
		},
		[]string{"kind"}, // "location", "tank", "reading"
	)

	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfill_fetch_attempts_total",
			Help: "Total number of SmartFill Tank:Level attempts by outcome",
		},
		[]string{"outcome"}, // "success", "http_error", "api_error", "transport_error"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordRun records a finished batch run.
func RecordRun(status string, duration time.Duration) {
	SyncRuns.WithLabelValues(status).Inc()
	SyncRunDuration.Observe(duration.Seconds())
	if status == "success" {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordCustomerSync records one customer outcome and the rows it wrote.
func RecordCustomerSync(status string, locations, tanks, readings int) {
	CustomerSyncs.WithLabelValues(status).Inc()
	RecordsProcessed.WithLabelValues("location").Add(float64(locations))
	RecordsProcessed.WithLabelValues("tank").Add(float64(tanks))
	RecordsProcessed.WithLabelValues("reading").Add(float64(readings))
}

func RecordFetchAttempt(outcome string) {
	FetchAttempts.WithLabelValues(outcome).Inc()
}
