package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultSmartFillAPIURL     = "https://www.fmtdata.com/API/api.php"
	DefaultCronSignatureHeader = "x-vercel-cron-signature"
)

type Config struct {
	DatabaseURL string `validate:"required"`

	SmartFillAPIURL         string `validate:"required,url"`
	SmartFillTimeout        int    `validate:"min=1"` // seconds
	SmartFillMaxRetries     int    `validate:"min=0,max=10"`
	SmartFillInitialBackoff int    `validate:"min=0"` // milliseconds
	BreakerEnabled          bool
	BreakerFailureThreshold int `validate:"min=1"`
	BreakerCooldown         int `validate:"min=1"` // seconds

	SyncInterval     int `validate:"min=1"` // seconds
	SyncRunTimeout   int `validate:"min=1"` // seconds
	SyncConcurrency  int `validate:"min=1,max=32"`
	SyncRunOnStart   bool
	SchedulerEnabled bool

	HTTPPort            int `validate:"min=1,max=65535"`
	CronSecret          string
	CronSignatureHeader string

	ShutdownTimeout int    // seconds
	LogLevel        string `validate:"omitempty,oneof=trace debug info warn warning error disabled"`
	LogFormat       string `validate:"omitempty,oneof=json console"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		DatabaseURL:             dbURL,
		SmartFillAPIURL:         getString("SMARTFILL_API_URL", DefaultSmartFillAPIURL),
		SmartFillTimeout:        30,
		SmartFillMaxRetries:     3,
		SmartFillInitialBackoff: 1000,
		BreakerEnabled:          true,
		BreakerFailureThreshold: 5,
		BreakerCooldown:         120,
		SyncInterval:            3600,
		SyncRunTimeout:          600,
		SyncConcurrency:         1,
		SyncRunOnStart:          false,
		SchedulerEnabled:        true,
		HTTPPort:                8080,
		CronSecret:              os.Getenv("CRON_SECRET"),
		CronSignatureHeader:     getString("CRON_SIGNATURE_HEADER", DefaultCronSignatureHeader),
		ShutdownTimeout:         30,
		LogLevel:                strings.ToLower(getString("LOG_LEVEL", "info")),
		LogFormat:               strings.ToLower(getString("LOG_FORMAT", "json")),
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SMARTFILL_TIMEOUT_SECONDS", &cfg.SmartFillTimeout},
		{"SMARTFILL_MAX_RETRIES", &cfg.SmartFillMaxRetries},
		{"SMARTFILL_INITIAL_BACKOFF_MS", &cfg.SmartFillInitialBackoff},
		{"SMARTFILL_BREAKER_THRESHOLD", &cfg.BreakerFailureThreshold},
		{"SMARTFILL_BREAKER_COOLDOWN_SECONDS", &cfg.BreakerCooldown},
		{"SYNC_INTERVAL_SECONDS", &cfg.SyncInterval},
		{"SYNC_RUN_TIMEOUT_SECONDS", &cfg.SyncRunTimeout},
		{"SYNC_CONCURRENCY", &cfg.SyncConcurrency},
		{"HTTP_PORT", &cfg.HTTPPort},
		{"SHUTDOWN_TIMEOUT_SECONDS", &cfg.ShutdownTimeout},
	}
	for _, v := range ints {
		if err := getInt(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"SMARTFILL_BREAKER_ENABLED", &cfg.BreakerEnabled},
		{"SYNC_RUN_ON_START", &cfg.SyncRunOnStart},
		{"SCHEDULER_ENABLED", &cfg.SchedulerEnabled},
	}
	for _, v := range bools {
		if err := getBool(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.CronSecret == "" {
		fmt.Println("Warning: CRON_SECRET not set, only platform-signed trigger requests will be accepted")
	}

	return cfg, nil
}

func (c *Config) SmartFillTimeoutDuration() time.Duration {
	return time.Duration(c.SmartFillTimeout) * time.Second
}

func (c *Config) SmartFillInitialBackoffDuration() time.Duration {
	return time.Duration(c.SmartFillInitialBackoff) * time.Millisecond
}

func (c *Config) BreakerCooldownDuration() time.Duration {
	return time.Duration(c.BreakerCooldown) * time.Second
}

func (c *Config) SyncIntervalDuration() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

func (c *Config) SyncRunTimeoutDuration() time.Duration {
	return time.Duration(c.SyncRunTimeout) * time.Second
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, dst *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %s", key, raw)
	}
	*dst = v
	return nil
}

func getBool(key string, dst *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %s", key, raw)
	}
	*dst = v
	return nil
}
