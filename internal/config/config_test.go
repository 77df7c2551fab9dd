package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REPORTES_BASE_URL", "REPORTES_LOG_MODE",
		"REPORTES_TRACE_EXPORTER", "REPORTES_TRACE_ENDPOINT",
		"REPORTES_TIMEOUT_SECONDS", "REPORTES_POLL_SECONDS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
base_url: http://reportes.local:8000/
log_mode: prod
timeout_seconds: 10
poll_interval_seconds: 3
trace:
  exporter: stdout
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://reportes.local:8000" {
		t.Fatalf("base url = %q, want trailing slash stripped", cfg.BaseURL)
	}
	if cfg.LogMode != "prod" || cfg.Trace.Exporter != "stdout" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Timeout != 10*time.Second || cfg.PollInterval != 3*time.Second {
		t.Fatalf("durations = %v / %v", cfg.Timeout, cfg.PollInterval)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "base_url: http://localhost:8000\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("default timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("default poll interval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.LogMode != "dev" {
		t.Fatalf("default log mode = %q, want dev", cfg.LogMode)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "base_url: http://from-file:8000\ntimeout_seconds: 10\n")
	t.Setenv("REPORTES_BASE_URL", "http://from-env:9000")
	t.Setenv("REPORTES_TIMEOUT_SECONDS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://from-env:9000" {
		t.Fatalf("base url = %q, env should win", cfg.BaseURL)
	}
	if cfg.Timeout != 7*time.Second {
		t.Fatalf("timeout = %v, env should win", cfg.Timeout)
	}
}

func TestMissingFileWithEnvIsEnough(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPORTES_BASE_URL", "http://env-only:8000")
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://env-only:8000" {
		t.Fatalf("base url = %q", cfg.BaseURL)
	}
}

func TestMissingBaseURLFails(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected an error when no base url is configured")
	}
}
