// Package config centralises configuration parsing for the insight
// service binaries.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration shared by the insight
// binaries. Each cmd reads the subset it needs.
type Config struct {
	HTTPAddress       string
	MetricsAddress    string
	PostgresURL       string // empty selects the in-memory repository
	KafkaBrokers      []string
	SchemaRegistryURL string

	ConsumerTopics  []string
	ConsumerGroupID string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	JWTSecret string
	JWTIssuer string

	DLQPollInterval time.Duration // Interval between DLQ polling iterations.
	DLQMaxRetries   int           // Maximum number of DLQ retry attempts before quarantine.
	DLQBaseDelay    time.Duration // Base delay used for exponential backoff.

	CacheInvalidateURL     string // empty disables edge cache invalidation
	CacheInvalidateToken   string
	CacheInvalidateTimeout time.Duration

	StravaClientID     string
	StravaClientSecret string
	StravaRefreshToken string
	SyncTenantID       string
	SyncLookbackDays   int

	ExportDir        string
	ExportTenantID   string
	ExportWindowDays int
}

// Load reads environment variables into Config, applying sensible
// defaults for local dev.
func Load() Config {
	cfg := Config{
		HTTPAddress:       getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress:    getEnv("METRICS_ADDRESS", ":9090"),
		PostgresURL:       getEnv("POSTGRES_URL", ""),
		SchemaRegistryURL: getEnv("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),

		ConsumerGroupID: getEnv("CONSUMER_GROUP_ID", "insight-imports"),

		OutboxPollInterval: getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getIntEnv("OUTBOX_BATCH_SIZE", 25),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer: getEnv("JWT_ISSUER", "insight.identity"),

		DLQPollInterval: getDurationEnv("DLQ_POLL_INTERVAL", 30*time.Second),
		DLQMaxRetries:   getIntEnv("DLQ_MAX_RETRIES", 5),
		DLQBaseDelay:    getDurationEnv("DLQ_BASE_DELAY", time.Minute),

		CacheInvalidateURL:     getEnv("CACHE_INVALIDATE_URL", ""),
		CacheInvalidateToken:   getEnv("CACHE_INVALIDATE_TOKEN", ""),
		CacheInvalidateTimeout: getDurationEnv("CACHE_INVALIDATE_TIMEOUT", 5*time.Second),

		StravaClientID:     getEnv("STRAVA_CLIENT_ID", ""),
		StravaClientSecret: getEnv("STRAVA_CLIENT_SECRET", ""),
		StravaRefreshToken: getEnv("STRAVA_REFRESH_TOKEN", ""),
		SyncTenantID:       getEnv("SYNC_TENANT_ID", ""),
		SyncLookbackDays:   getIntEnv("SYNC_LOOKBACK_DAYS", 30),

		ExportDir:        getEnv("EXPORT_OUTPUT_DIR", "exports"),
		ExportTenantID:   getEnv("EXPORT_TENANT_ID", ""),
		ExportWindowDays: getIntEnv("EXPORT_WINDOW_DAYS", 180),
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092"))
	cfg.ConsumerTopics = splitAndTrim(getEnv("CONSUMER_TOPICS", "activity_imports"))
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
