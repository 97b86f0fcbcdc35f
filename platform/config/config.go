// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int32
	GetDatabaseMinConns() int32
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetIngestRate() float64
	GetIngestBurst() int
}

// SchedulerConfig provides settings for the asynq queue client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetRescoreInterval() time.Duration
	GetRescoreMaxAge() time.Duration
}

// IdempotencyConfig provides settings for the inbound event idempotency guard.
type IdempotencyConfig interface {
	GetIdempotencyBackend() string
	GetIdempotencyRetention() time.Duration
	GetIdempotencyLease() time.Duration
	GetIdempotencyWait() time.Duration
	GetIdempotencyPollInterval() time.Duration
}

// LifecycleConfig provides the deal lifecycle tunables.
type LifecycleConfig interface {
	GetDedupeWindow() time.Duration
	GetFollowUpDelay() time.Duration
}

// CadenceConfig provides the contact cadence ("three strikes") policy settings.
type CadenceConfig interface {
	GetNoContactThreshold() int
	GetDisqualificationReason() string
}

// WorklistConfig provides the worklist tiering windows.
type WorklistConfig interface {
	GetWarmQuoteWindow() time.Duration
	GetIdleWindow() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

const (
	IdempotencyBackendPostgres = "postgres"
	IdempotencyBackendRedis    = "redis"
)

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	DatabaseMaxConns         int32
	DatabaseMinConns         int32
	MigrationsEnabled        bool
	JWTAccessSecret          string
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	IngestRate               float64
	IngestBurst              int
	RedisURL                 string
	RedisTLSInsecure         bool
	AsynqQueueName           string
	AsynqConcurrency         int
	IdempotencyBackend       string
	IdempotencyRetention     time.Duration
	IdempotencyLease         time.Duration
	IdempotencyWait          time.Duration
	IdempotencyPollInterval  time.Duration
	IdempotencyCleanupPeriod time.Duration
	DedupeWindow             time.Duration
	FollowUpDelay            time.Duration
	NoContactThreshold       int
	DisqualificationReason   string
	WarmQuoteWindow          time.Duration
	IdleWindow               time.Duration
	RescoreInterval          time.Duration
	RescoreMaxAge            time.Duration
	SchedulerMetricsAddr     string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int32 { return c.DatabaseMaxConns }
func (c *Config) GetDatabaseMinConns() int32 { return c.DatabaseMinConns }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }
func (c *Config) GetIngestRate() float64   { return c.IngestRate }
func (c *Config) GetIngestBurst() int      { return c.IngestBurst }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string               { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool         { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string         { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int          { return c.AsynqConcurrency }
func (c *Config) GetRescoreInterval() time.Duration { return c.RescoreInterval }
func (c *Config) GetRescoreMaxAge() time.Duration   { return c.RescoreMaxAge }
func (c *Config) IsSchedulerEnabled() bool          { return c.RedisURL != "" }

// IdempotencyConfig implementation
func (c *Config) GetIdempotencyBackend() string              { return c.IdempotencyBackend }
func (c *Config) GetIdempotencyRetention() time.Duration     { return c.IdempotencyRetention }
func (c *Config) GetIdempotencyLease() time.Duration         { return c.IdempotencyLease }
func (c *Config) GetIdempotencyWait() time.Duration          { return c.IdempotencyWait }
func (c *Config) GetIdempotencyPollInterval() time.Duration  { return c.IdempotencyPollInterval }
func (c *Config) GetIdempotencyCleanupPeriod() time.Duration { return c.IdempotencyCleanupPeriod }

// LifecycleConfig implementation
func (c *Config) GetDedupeWindow() time.Duration  { return c.DedupeWindow }
func (c *Config) GetFollowUpDelay() time.Duration { return c.FollowUpDelay }

// CadenceConfig implementation
func (c *Config) GetNoContactThreshold() int        { return c.NoContactThreshold }
func (c *Config) GetDisqualificationReason() string { return c.DisqualificationReason }

// WorklistConfig implementation
func (c *Config) GetWarmQuoteWindow() time.Duration { return c.WarmQuoteWindow }
func (c *Config) GetIdleWindow() time.Duration      { return c.IdleWindow }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:         int32(mustInt64(getEnv("DB_MAX_CONNS", "25"))),
		DatabaseMinConns:         int32(mustInt64(getEnv("DB_MIN_CONNS", "5"))),
		MigrationsEnabled:        strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:          getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		IngestRate:               mustFloat(getEnv("INGEST_RATE_PER_SECOND", "50")),
		IngestBurst:              int(mustInt64(getEnv("INGEST_BURST", "100"))),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:           getEnv("ASYNQ_QUEUE", "deals"),
		AsynqConcurrency:         int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		IdempotencyBackend:       strings.ToLower(getEnv("IDEMPOTENCY_BACKEND", IdempotencyBackendPostgres)),
		IdempotencyRetention:     mustDuration(getEnv("IDEMPOTENCY_RETENTION", "168h")),
		IdempotencyLease:         mustDuration(getEnv("IDEMPOTENCY_LEASE", "30s")),
		IdempotencyWait:          mustDuration(getEnv("IDEMPOTENCY_WAIT", "2s")),
		IdempotencyPollInterval:  mustDuration(getEnv("IDEMPOTENCY_POLL_INTERVAL", "50ms")),
		IdempotencyCleanupPeriod: mustDuration(getEnv("IDEMPOTENCY_CLEANUP_INTERVAL", "1h")),
		DedupeWindow:             time.Duration(mustInt64(getEnv("DEAL_DEDUPE_WINDOW_DAYS", "30"))) * 24 * time.Hour,
		FollowUpDelay:            time.Duration(mustInt64(getEnv("DEAL_FOLLOW_UP_HOURS", "24"))) * time.Hour,
		NoContactThreshold:       int(mustInt64(getEnv("CADENCE_NO_CONTACT_THRESHOLD", "3"))),
		DisqualificationReason:   getEnv("CADENCE_DISQUALIFICATION_REASON", ""),
		WarmQuoteWindow:          time.Duration(mustInt64(getEnv("WORKLIST_WARM_QUOTE_DAYS", "7"))) * 24 * time.Hour,
		IdleWindow:               time.Duration(mustInt64(getEnv("WORKLIST_IDLE_DAYS", "7"))) * 24 * time.Hour,
		RescoreInterval:          mustDuration(getEnv("RESCORE_INTERVAL", "15m")),
		RescoreMaxAge:            mustDuration(getEnv("RESCORE_MAX_AGE", "6h")),
		SchedulerMetricsAddr:     strings.TrimSpace(getEnv("SCHEDULER_METRICS_ADDR", "")),
	}

	if cfg.DisqualificationReason == "" {
		cfg.DisqualificationReason = fmt.Sprintf("no response after %d attempts", cfg.NoContactThreshold)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.DatabaseMinConns < 0 || c.DatabaseMaxConns < 1 || c.DatabaseMinConns > c.DatabaseMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}
	if c.NoContactThreshold < 1 {
		return fmt.Errorf("CADENCE_NO_CONTACT_THRESHOLD must be at least 1")
	}
	switch c.IdempotencyBackend {
	case IdempotencyBackendPostgres:
	case IdempotencyBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when IDEMPOTENCY_BACKEND is redis")
		}
	default:
		return fmt.Errorf("IDEMPOTENCY_BACKEND must be %q or %q", IdempotencyBackendPostgres, IdempotencyBackendRedis)
	}
	if c.IdempotencyRetention <= 0 || c.IdempotencyLease <= 0 {
		return fmt.Errorf("IDEMPOTENCY_RETENTION and IDEMPOTENCY_LEASE must be positive durations")
	}
	if c.DedupeWindow <= 0 {
		return fmt.Errorf("DEAL_DEDUPE_WINDOW_DAYS must be positive")
	}
	if c.RescoreInterval <= 0 || c.RescoreMaxAge <= 0 {
		return fmt.Errorf("RESCORE_INTERVAL and RESCORE_MAX_AGE must be positive durations")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
