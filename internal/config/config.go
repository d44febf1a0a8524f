package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every runtime knob the service reads from the environment.
type Config struct {
	HTTPAddr    string
	PostgresDSN string

	AuthSecret      string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Worker pool sizing and provider throttling, per channel.
	WorkerConcurrency int
	DispatchPerSecond int

	// First retry delay; doubles on each subsequent attempt.
	RetryBaseBackoff time.Duration

	// Retention of old log rows, in days.
	RetentionDays int

	// Super admin account limits.
	MaxSuperAdmins int

	MigrationsDir string
	SeedsDir      string
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		HTTPAddr:    getString("BLAST_HTTP_ADDR", ":8080"),
		PostgresDSN: os.Getenv("BLAST_PG_DSN"),

		AuthSecret:      os.Getenv("BLAST_AUTH_SECRET"),
		AccessTokenTTL:  getDuration("BLAST_ACCESS_TTL", 15*time.Minute),
		RefreshTokenTTL: getDuration("BLAST_REFRESH_TTL", 7*24*time.Hour),

		WorkerConcurrency: getInt("BLAST_WORKER_CONCURRENCY", 5),
		DispatchPerSecond: getInt("BLAST_DISPATCH_PER_SECOND", 10),

		RetryBaseBackoff: getDuration("BLAST_RETRY_BASE_BACKOFF", 2*time.Second),

		RetentionDays:  getInt("BLAST_RETENTION_DAYS", 30),
		MaxSuperAdmins: getInt("BLAST_MAX_SUPER_ADMINS", 3),

		MigrationsDir: getString("BLAST_MIGRATIONS_DIR", "migrations"),
		SeedsDir:      getString("BLAST_SEEDS_DIR", "seeds"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
