package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/micro-ha/kiosk-lock/internal/model"
)

const (
	defaultHTTPAddr = "127.0.0.1:8099"
	defaultDBPath   = "/data/kiosk_lock.db"
	defaultKeyFile  = "/data/kiosk_lock.key"
	defaultBaseURL  = "https://billing.local"
)

// Config stores runtime settings. Values come from defaults, then the YAML
// file, then environment variables.
type Config struct {
	HTTPAddr string
	DBPath   string
	// KeyFile holds the age identity used to seal stored values. Empty
	// disables sealing.
	KeyFile  string
	LogLevel slog.Level
	Gateway  model.GatewayConfig
	Tunables model.Tunables
}

type fileConfig struct {
	HTTPAddr string              `yaml:"http_addr"`
	DBPath   string              `yaml:"db_path"`
	KeyFile  *string             `yaml:"key_file"`
	LogLevel string              `yaml:"log_level"`
	Gateway  model.GatewayConfig `yaml:"gateway"`
	Tunables model.Tunables      `yaml:"tunables"`
}

func Default() Config {
	return Config{
		HTTPAddr: defaultHTTPAddr,
		DBPath:   defaultDBPath,
		KeyFile:  defaultKeyFile,
		LogLevel: slog.LevelInfo,
		Gateway:  model.GatewayConfig{BaseURL: defaultBaseURL}.Normalize(),
		Tunables: model.DefaultTunables(),
	}
}

// Load builds Config. A missing file at path is not an error; an empty path
// skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.mergeEnv()
	cfg.Gateway = cfg.Gateway.Normalize()
	cfg.Tunables = cfg.Tunables.Normalize()
	return cfg, nil
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.HTTPAddr != "" {
		c.HTTPAddr = fc.HTTPAddr
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.KeyFile != nil {
		c.KeyFile = strings.TrimSpace(*fc.KeyFile)
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}

	gw := fc.Gateway
	if gw.BaseURL != "" {
		c.Gateway.BaseURL = gw.BaseURL
	}
	if gw.Timeout > 0 {
		c.Gateway.Timeout = gw.Timeout
	}
	if gw.AuditRatePerSecond > 0 {
		c.Gateway.AuditRatePerSecond = gw.AuditRatePerSecond
	}
	if gw.DeviceName != "" {
		c.Gateway.DeviceName = gw.DeviceName
	}
	c.Gateway.AuditRequiresAuth = gw.AuditRequiresAuth

	t := fc.Tunables
	if t.PollInterval > 0 {
		c.Tunables.PollInterval = t.PollInterval
	}
	if t.UnpairedPollInterval > 0 {
		c.Tunables.UnpairedPollInterval = t.UnpairedPollInterval
	}
	if t.GracePeriod > 0 {
		c.Tunables.GracePeriod = t.GracePeriod
	}
	if t.GraceTick > 0 {
		c.Tunables.GraceTick = t.GraceTick
	}
	if t.FailureThreshold > 0 {
		c.Tunables.FailureThreshold = t.FailureThreshold
	}
	if t.DefaultRetryAfter > 0 {
		c.Tunables.DefaultRetryAfter = t.DefaultRetryAfter
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.DBPath = getenv("DB_PATH", c.DBPath)
	if raw, ok := os.LookupEnv("KEY_FILE"); ok {
		c.KeyFile = strings.TrimSpace(raw)
	}
	c.LogLevel = parseLogLevel(getenv("LOG_LEVEL", c.LogLevel.String()))

	c.Gateway.BaseURL = getenv("GATEWAY_BASE_URL", c.Gateway.BaseURL)
	c.Gateway.Timeout = parseDuration("GATEWAY_TIMEOUT", c.Gateway.Timeout)
	c.Gateway.AuditRequiresAuth = parseBool("GATEWAY_AUDIT_REQUIRES_AUTH", c.Gateway.AuditRequiresAuth)
	c.Gateway.AuditRatePerSecond = parseFloat("GATEWAY_AUDIT_RATE", c.Gateway.AuditRatePerSecond)
	c.Gateway.DeviceName = getenv("DEVICE_NAME", c.Gateway.DeviceName)

	c.Tunables.PollInterval = parseDuration("POLL_INTERVAL", c.Tunables.PollInterval)
	c.Tunables.UnpairedPollInterval = parseDuration("UNPAIRED_POLL_INTERVAL", c.Tunables.UnpairedPollInterval)
	c.Tunables.GracePeriod = parseDuration("GRACE_PERIOD", c.Tunables.GracePeriod)
	c.Tunables.GraceTick = parseDuration("GRACE_TICK", c.Tunables.GraceTick)
	c.Tunables.FailureThreshold = parseInt("FAILURE_THRESHOLD", c.Tunables.FailureThreshold)
	c.Tunables.DefaultRetryAfter = parseDuration("DEFAULT_RETRY_AFTER", c.Tunables.DefaultRetryAfter)
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func parseBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
