package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kioskd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Default()
	if cfg.HTTPAddr != want.HTTPAddr || cfg.DBPath != want.DBPath || cfg.KeyFile != want.KeyFile {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
	if cfg.Tunables != want.Tunables {
		t.Fatalf("Tunables = %+v, want %+v", cfg.Tunables, want.Tunables)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9000"
db_path: /var/lib/kiosk/kiosk.db
key_file: ""
log_level: debug
gateway:
  base_url: https://billing.example.com/api/
  timeout: 4s
  audit_requires_auth: true
  audit_rate_per_second: 2.5
  device_name: Lobby TV
tunables:
  poll_interval: 20s
  grace_period: 45s
  failure_threshold: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.DBPath != "/var/lib/kiosk/kiosk.db" {
		t.Fatalf("addr/db = %q/%q", cfg.HTTPAddr, cfg.DBPath)
	}
	if cfg.KeyFile != "" {
		t.Fatalf("KeyFile = %q, want sealing disabled", cfg.KeyFile)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.Gateway.Timeout != 4*time.Second || !cfg.Gateway.AuditRequiresAuth || cfg.Gateway.AuditRatePerSecond != 2.5 {
		t.Fatalf("Gateway = %+v", cfg.Gateway)
	}
	if got := cfg.Gateway.NormalizedBaseURL(); got != "https://billing.example.com" {
		t.Fatalf("NormalizedBaseURL() = %q", got)
	}
	if cfg.Tunables.PollInterval != 20*time.Second || cfg.Tunables.GracePeriod != 45*time.Second || cfg.Tunables.FailureThreshold != 5 {
		t.Fatalf("Tunables = %+v", cfg.Tunables)
	}
	if cfg.Tunables.UnpairedPollInterval != time.Second {
		t.Fatalf("UnpairedPollInterval = %v, want default 1s", cfg.Tunables.UnpairedPollInterval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
gateway:
  base_url: https://from-file.example.com
tunables:
  poll_interval: 20s
`)
	t.Setenv("GATEWAY_BASE_URL", "https://from-env.example.com")
	t.Setenv("POLL_INTERVAL", "7s")
	t.Setenv("FAILURE_THRESHOLD", "not-a-number")
	t.Setenv("GATEWAY_AUDIT_REQUIRES_AUTH", "true")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.BaseURL != "https://from-env.example.com" {
		t.Fatalf("BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Tunables.PollInterval != 7*time.Second {
		t.Fatalf("PollInterval = %v, want 7s", cfg.Tunables.PollInterval)
	}
	if cfg.Tunables.FailureThreshold != 3 {
		t.Fatalf("FailureThreshold = %d, want fallback 3", cfg.Tunables.FailureThreshold)
	}
	if !cfg.Gateway.AuditRequiresAuth {
		t.Fatalf("AuditRequiresAuth = false, want true")
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v, want warn", cfg.LogLevel)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "gateway: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() error = nil, want parse error")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{raw: "debug", want: slog.LevelDebug},
		{raw: " WARN ", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
		{raw: "INFO", want: slog.LevelInfo},
		{raw: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			if got := parseLogLevel(tt.raw); got != tt.want {
				t.Fatalf("parseLogLevel(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
