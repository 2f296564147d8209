package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
mode = "scan"

[provider]
api_key = "test-key"

[scan]
interval = "30s"
min_roi = 1.5
sports = ["basketball_nba"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "scan" {
		t.Errorf("Mode = %q, want scan", cfg.Mode)
	}
	if cfg.Provider.APIKey != "test-key" {
		t.Errorf("APIKey = %q", cfg.Provider.APIKey)
	}
	if cfg.Scan.Interval.Duration != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Scan.Interval.Duration)
	}
	if cfg.Scan.MinROI != 1.5 {
		t.Errorf("MinROI = %v, want 1.5", cfg.Scan.MinROI)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want default 5432", cfg.Postgres.Port)
	}
	if cfg.Scan.Warmup.Duration != 5*time.Second {
		t.Errorf("Warmup = %v, want default 5s", cfg.Scan.Warmup.Duration)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `mode = "scan"`)

	t.Setenv("ARBFLOW_PROVIDER_API_KEY", "env-key")
	t.Setenv("ARBFLOW_SCAN_INTERVAL", "90s")
	t.Setenv("ARBFLOW_SCAN_SPORTS", "soccer_epl, baseball_mlb")
	t.Setenv("ARBFLOW_REDIS_ENABLED", "false")
	t.Setenv("ARBFLOW_MODE", "full")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.Provider.APIKey)
	}
	if cfg.Scan.Interval.Duration != 90*time.Second {
		t.Errorf("Interval = %v, want 90s", cfg.Scan.Interval.Duration)
	}
	if len(cfg.Scan.Sports) != 2 || cfg.Scan.Sports[0] != "soccer_epl" {
		t.Errorf("Sports = %v", cfg.Scan.Sports)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled should be overridden to false")
	}
	if cfg.Mode != "full" {
		t.Errorf("Mode = %q, want full", cfg.Mode)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{"unknown mode", "unknown log_level", "postgres: host", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateScanModeNeedsAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "scan"
	cfg.Provider.APIKey = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "provider: api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestValidateServerModeNeedsSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	cfg.Auth.Secret = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "auth: secret") {
		t.Fatalf("expected auth secret error, got %v", err)
	}
}

func TestValidateOK(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.Provider.APIKey = "key"
	cfg.Auth.Secret = "secret"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
