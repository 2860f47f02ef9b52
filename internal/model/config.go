package model

import (
	"net/url"
	"strings"
	"time"
)

// Tunables holds every timing and threshold the reconciliation core uses.
type Tunables struct {
	PollInterval         time.Duration `yaml:"poll_interval"`
	UnpairedPollInterval time.Duration `yaml:"unpaired_poll_interval"`
	GracePeriod          time.Duration `yaml:"grace_period"`
	GraceTick            time.Duration `yaml:"grace_tick"`
	FailureThreshold     int           `yaml:"failure_threshold"`
	DefaultRetryAfter    time.Duration `yaml:"default_retry_after"`
}

func DefaultTunables() Tunables {
	return Tunables{
		PollInterval:         12 * time.Second,
		UnpairedPollInterval: time.Second,
		GracePeriod:          30 * time.Second,
		GraceTick:            time.Second,
		FailureThreshold:     3,
		DefaultRetryAfter:    DefaultRetryAfterSeconds * time.Second,
	}
}

func (t Tunables) Normalize() Tunables {
	defaults := DefaultTunables()
	if t.PollInterval <= 0 {
		t.PollInterval = defaults.PollInterval
	}
	if t.UnpairedPollInterval <= 0 {
		t.UnpairedPollInterval = defaults.UnpairedPollInterval
	}
	if t.GracePeriod <= 0 {
		t.GracePeriod = defaults.GracePeriod
	}
	if t.GraceTick <= 0 {
		t.GraceTick = defaults.GraceTick
	}
	if t.FailureThreshold <= 0 {
		t.FailureThreshold = defaults.FailureThreshold
	}
	if t.DefaultRetryAfter <= 0 {
		t.DefaultRetryAfter = defaults.DefaultRetryAfter
	}
	return t
}

// GraceSeconds is the countdown length in whole ticks.
func (t Tunables) GraceSeconds() int {
	t = t.Normalize()
	return int(t.GracePeriod / t.GraceTick)
}

// GatewayConfig describes how to reach the remote authority.
type GatewayConfig struct {
	BaseURL            string        `yaml:"base_url"`
	Timeout            time.Duration `yaml:"timeout"`
	AuditRequiresAuth  bool          `yaml:"audit_requires_auth"`
	AuditRatePerSecond float64       `yaml:"audit_rate_per_second"`
	DeviceName         string        `yaml:"device_name"`
}

func (c GatewayConfig) Normalize() GatewayConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.AuditRatePerSecond < 0 {
		c.AuditRatePerSecond = 0
	}
	return c
}

// NormalizedBaseURL returns BaseURL with a scheme and without a trailing slash.
func (c GatewayConfig) NormalizedBaseURL() string {
	raw := strings.TrimSpace(c.BaseURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		host := strings.TrimPrefix(strings.TrimPrefix(raw, "http://"), "https://")
		return "https://" + strings.Trim(host, "/")
	}

	path := strings.TrimSuffix(strings.TrimSpace(parsed.Path), "/")
	// An explicit /api suffix is part of every endpoint path already.
	path = strings.TrimSuffix(path, "/api")
	return parsed.Scheme + "://" + parsed.Host + path
}
