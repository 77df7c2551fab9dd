package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gci-tools/reportes-console/internal/platform/envutil"
)

type TraceConfig struct {
	Exporter string `yaml:"exporter"` // "", "stdout" or "otlp"
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"-"`
	PollInterval time.Duration `yaml:"-"`
	LogMode      string        `yaml:"log_mode"`
	Trace        TraceConfig   `yaml:"trace"`

	TimeoutSeconds      int `yaml:"timeout_seconds"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// Dir is the durable client-local state directory. Everything the client
// persists (config, credential, UI prefs) lives under it.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "reportes"), nil
}

// Load reads the YAML config file if it exists and then applies environment
// overrides. A missing file is not an error; env alone can configure the client.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.BaseURL = envutil.String("REPORTES_BASE_URL", cfg.BaseURL)
	cfg.LogMode = envutil.String("REPORTES_LOG_MODE", cfg.LogMode)
	cfg.Trace.Exporter = envutil.String("REPORTES_TRACE_EXPORTER", cfg.Trace.Exporter)
	cfg.Trace.Endpoint = envutil.String("REPORTES_TRACE_ENDPOINT", cfg.Trace.Endpoint)
	cfg.TimeoutSeconds = envutil.Int("REPORTES_TIMEOUT_SECONDS", cfg.TimeoutSeconds)
	cfg.PollIntervalSeconds = envutil.Int("REPORTES_POLL_SECONDS", cfg.PollIntervalSeconds)

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("base_url is required (config file or REPORTES_BASE_URL)")
	}
	if cfg.LogMode == "" {
		cfg.LogMode = "dev"
	}
	cfg.Timeout = 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.PollInterval = 5 * time.Second
	if cfg.PollIntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	return cfg, nil
}
