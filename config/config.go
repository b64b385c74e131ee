// Package config holds the tunables the monodash aggregation core reads
// and their environment bindings. The surface is deliberately small: five
// timing/retention knobs plus the database path. Provider credentials, base
// URLs, and server settings are handled by the CLI layer, not here.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names for the core tunables.
const (
	envCacheTTL          = "MONODASH_CACHE_TTL_SECONDS"
	envCleanupDays       = "MONODASH_CACHE_CLEANUP_DAYS"
	envBackgroundTimeout = "MONODASH_BACKGROUND_TIMEOUT_SECONDS"
	envBaseRetryDelay    = "MONODASH_SOURCE_HEALTH_BASE_RETRY_DELAY_SECONDS"
	envMaxRetryDelay     = "MONODASH_SOURCE_HEALTH_MAX_RETRY_DELAY_SECONDS"
	envDBPath            = "MONODASH_DB_PATH"
)

// CoreConfig contains the tunables the aggregation core reads. All fields
// have defaults.
type CoreConfig struct {
	CacheTTL          time.Duration // Code review TTL; work item TTL is derived as 2x
	CleanupDays       int           // Days before old cache rows are compacted away
	BackgroundTimeout time.Duration // Hard deadline for background refresh tasks
	BaseRetryDelay    time.Duration // Source health: base exponential backoff delay
	MaxRetryDelay     time.Duration // Source health: backoff clamp
	DBPath            string        // SQLite database path, empty for the default
}

// DefaultCoreConfig returns the core configuration with its documented defaults.
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		CacheTTL:          300 * time.Second,
		CleanupDays:       30,
		BackgroundTimeout: 30 * time.Second,
		BaseRetryDelay:    30 * time.Second,
		MaxRetryDelay:     300 * time.Second,
		DBPath:            "",
	}
}

// WorkItemTTL returns the derived work item TTL (twice the code review TTL).
func (c CoreConfig) WorkItemTTL() time.Duration {
	return 2 * c.CacheTTL
}

// LoadCoreConfig reads the core tunables from the environment, falling back
// to the defaults for anything unset or unparseable.
func LoadCoreConfig() CoreConfig {
	cfg := DefaultCoreConfig()

	cfg.CacheTTL = secondsFromEnv(envCacheTTL, cfg.CacheTTL)
	cfg.CleanupDays = intFromEnv(envCleanupDays, cfg.CleanupDays)
	cfg.BackgroundTimeout = secondsFromEnv(envBackgroundTimeout, cfg.BackgroundTimeout)
	cfg.BaseRetryDelay = secondsFromEnv(envBaseRetryDelay, cfg.BaseRetryDelay)
	cfg.MaxRetryDelay = secondsFromEnv(envMaxRetryDelay, cfg.MaxRetryDelay)
	if path := os.Getenv(envDBPath); path != "" {
		cfg.DBPath = path
	}

	return cfg
}

// secondsFromEnv reads an integer number of seconds from the environment.
// The tunables are documented in seconds, so whole numbers are the wire
// format rather than Go duration strings.
func secondsFromEnv(key string, fallback time.Duration) time.Duration {
	seconds, ok := positiveIntFromEnv(key)
	if !ok {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func intFromEnv(key string, fallback int) int {
	value, ok := positiveIntFromEnv(key)
	if !ok {
		return fallback
	}
	return value
}

func positiveIntFromEnv(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}
