package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PeriodHours != 6 || cfg.MaxPeriodsPerRun != 30 || cfg.RawRetentionHours != 24 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollup.yaml")
	data := "db_path: /tmp/test.db\nperiod_hours: 12\nmax_periods_per_run: 5\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/tmp/test.db" || cfg.PeriodHours != 12 || cfg.MaxPeriodsPerRun != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults
	if cfg.RawRetentionHours != 24 {
		t.Errorf("retention = %d, want default 24", cfg.RawRetentionHours)
	}
}

func TestLoadMalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("period_hours: [not an int"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config should error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROLLUP_PERIOD_HOURS", "3")
	t.Setenv("ROLLUP_DB_PATH", "/var/rollup/graph.db")
	t.Setenv("ROLLUP_MAX_PERIODS_PER_RUN", "garbage") // ignored

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PeriodHours != 3 {
		t.Errorf("period hours = %d, want 3", cfg.PeriodHours)
	}
	if cfg.DBPath != "/var/rollup/graph.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.MaxPeriodsPerRun != 30 {
		t.Errorf("max periods = %d, want default", cfg.MaxPeriodsPerRun)
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	if cfg.PeriodWidth() != 6*time.Hour {
		t.Errorf("PeriodWidth = %v", cfg.PeriodWidth())
	}
	if cfg.RawRetention() != 24*time.Hour {
		t.Errorf("RawRetention = %v", cfg.RawRetention())
	}
	if cfg.ErrorBackoff() != 5*time.Minute {
		t.Errorf("ErrorBackoff = %v", cfg.ErrorBackoff())
	}
}
