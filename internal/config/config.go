// Package config loads engine configuration from an optional yaml file with
// environment-variable overrides. Configuration is passed explicitly through
// constructors; there are no process-wide mutable defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds consolidation engine settings
type Config struct {
	DBPath              string `yaml:"db_path"`
	PeriodHours         int    `yaml:"period_hours"`
	MaxPeriodsPerRun    int    `yaml:"max_periods_per_run"`
	RawRetentionHours   int    `yaml:"raw_retention_hours"`
	ErrorBackoffMinutes int    `yaml:"error_backoff_minutes"`
}

// Default returns the standard configuration
func Default() Config {
	return Config{
		DBPath:              "state/system/graph.db",
		PeriodHours:         6,
		MaxPeriodsPerRun:    30,
		RawRetentionHours:   24,
		ErrorBackoffMinutes: 5,
	}
}

// Load reads a yaml config file over the defaults, then applies ROLLUP_*
// environment overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ROLLUP_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := envInt("ROLLUP_PERIOD_HOURS"); v > 0 {
		c.PeriodHours = v
	}
	if v := envInt("ROLLUP_MAX_PERIODS_PER_RUN"); v > 0 {
		c.MaxPeriodsPerRun = v
	}
	if v := envInt("ROLLUP_RAW_RETENTION_HOURS"); v > 0 {
		c.RawRetentionHours = v
	}
	if v := envInt("ROLLUP_ERROR_BACKOFF_MINUTES"); v > 0 {
		c.ErrorBackoffMinutes = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// PeriodWidth returns the window width as a duration
func (c Config) PeriodWidth() time.Duration {
	return time.Duration(c.PeriodHours) * time.Hour
}

// RawRetention returns the retention window as a duration
func (c Config) RawRetention() time.Duration {
	return time.Duration(c.RawRetentionHours) * time.Hour
}

// ErrorBackoff returns the loop error backoff as a duration
func (c Config) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffMinutes) * time.Minute
}
