// Package worker runs background jobs for the route planner.
package worker

import (
	"os"
	"strconv"
	"time"
)

// BackfillConfig holds configuration for the metrics backfill job.
type BackfillConfig struct {
	// Interval between scheduled runs. Zero disables the ticker.
	// Default: 15 minutes
	Interval time.Duration

	// BatchSize is the maximum number of routes recalculated per run.
	// Default: 50
	BatchSize int

	// Concurrency is the number of routes recalculated at once.
	// Default: 3
	Concurrency int

	// Timeout bounds a single recalculation.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultBackfillConfig returns the default backfill configuration.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		Interval:    15 * time.Minute,
		BatchSize:   50,
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

// BackfillConfigFromEnv reads BACKFILL_INTERVAL, BACKFILL_BATCH, BACKFILL_CONCURRENCY and
// BACKFILL_TIMEOUT over the defaults.
func BackfillConfigFromEnv() BackfillConfig {
	cfg := DefaultBackfillConfig()
	cfg.Interval = getEnvDuration("BACKFILL_INTERVAL", cfg.Interval)
	cfg.BatchSize = getEnvInt("BACKFILL_BATCH", cfg.BatchSize)
	cfg.Concurrency = getEnvInt("BACKFILL_CONCURRENCY", cfg.Concurrency)
	cfg.Timeout = getEnvDuration("BACKFILL_TIMEOUT", cfg.Timeout)
	return cfg
}

// withDefaults fills unset fields. Interval is left alone so zero can disable the ticker.
func (c BackfillConfig) withDefaults() BackfillConfig {
	def := DefaultBackfillConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// PubSubSettings names the subscription that triggers jobs. An empty ProjectID disables it.
type PubSubSettings struct {
	ProjectID    string
	Subscription string
}

// PubSubSettingsFromEnv reads PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION.
func PubSubSettingsFromEnv() PubSubSettings {
	return PubSubSettings{
		ProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		Subscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "haulplan-worker"),
	}
}

// Enabled reports whether a Pub/Sub project is configured.
func (s PubSubSettings) Enabled() bool {
	return s.ProjectID != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
