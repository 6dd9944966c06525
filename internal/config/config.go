package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
)

// DefaultSyncIntervalSeconds is used when SYNC_INTERVAL_SECONDS is missing or malformed.
const DefaultSyncIntervalSeconds = 30

// DefaultTopItemsLimit bounds the ranked lists returned by /statistics.
const DefaultTopItemsLimit = 10

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	HTTPPort    string `envconfig:"PORT" default:"3000"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogDir      string `envconfig:"LOG_DIR" default:"data/logs"`

	CrowdSec

	DatabasePath  string `envconfig:"DB_PATH" default:"./database/crowdsec.db"`
	DataRetention string `envconfig:"DATA_RETENTION"`
	SyncInterval  string `envconfig:"SYNC_INTERVAL_SECONDS" default:"30"`

	APIPassword string `envconfig:"API_PASSWORD"`
	RateLimit   string `envconfig:"RATE_LIMIT"`

	NotifyURL       string `envconfig:"NOTIFY_URL"`
	VersionCheckURL string `envconfig:"VERSION_CHECK_URL" default:"https://api.github.com/repos/JGeek00/crowdsec-monitor-api/releases/latest"`
}

// CrowdSec holds the Local API endpoint and machine credentials. It is
// embedded so envconfig reads its keys without a prefix.
type CrowdSec struct {
	LAPIURL  string `envconfig:"CROWDSEC_LAPI_URL" default:"http://localhost:8080"`
	User     string `envconfig:"CROWDSEC_USER" required:"true"`
	Password string `envconfig:"CROWDSEC_PASSWORD" required:"true"`
}

// RateLimit is a parsed RATE_LIMIT setting.
type RateLimit struct {
	Max    int
	Window time.Duration
}

// ErrMissingCredentials is returned when the LAPI machine credentials are unset.
var ErrMissingCredentials = errors.New("CROWDSEC_USER and CROWDSEC_PASSWORD must be set")

// Load reads env vars, validates credentials and ensures the data directory exists.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		if strings.Contains(err.Error(), "CROWDSEC_") {
			return Config{}, fmt.Errorf("load config: %w: %v", ErrMissingCredentials, err)
		}
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" && !strings.HasPrefix(cfg.DatabasePath, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure data directory: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks settings whose absence is fatal.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CrowdSec.User) == "" || strings.TrimSpace(c.CrowdSec.Password) == "" {
		return ErrMissingCredentials
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SyncIntervalSeconds returns the configured interval, falling back to the
// default with a warning when the value is malformed or below one second.
func (c Config) SyncIntervalSeconds() int {
	n, err := strconv.Atoi(strings.TrimSpace(c.SyncInterval))
	if err != nil || n < 1 {
		logger.Log().WithField("value", c.SyncInterval).
			Warnf("Invalid SYNC_INTERVAL_SECONDS, using default of %d seconds", DefaultSyncIntervalSeconds)
		return DefaultSyncIntervalSeconds
	}
	return n
}

// RateLimitSettings parses RATE_LIMIT ("<requests>/<minutes>"). It returns
// false when unset or malformed, in which case rate limiting is disabled.
func (c Config) RateLimitSettings() (RateLimit, bool) {
	return ParseRateLimit(c.RateLimit)
}

// ParseRateLimit parses a "<requests>/<minutes>" string.
func ParseRateLimit(raw string) (RateLimit, bool) {
	if raw == "" {
		return RateLimit{}, false
	}

	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		logger.Log().WithField("value", raw).
			Warn("Invalid RATE_LIMIT format. Expected <requests>/<minutes> (e.g. 100/15). Rate limiting disabled")
		return RateLimit{}, false
	}

	maxReq, errMax := strconv.Atoi(strings.TrimSpace(parts[0]))
	minutes, errMin := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errMax != nil || errMin != nil || maxReq <= 0 || minutes <= 0 {
		logger.Log().WithField("value", raw).
			Warn("Invalid RATE_LIMIT values. Both requests and minutes must be positive numbers. Rate limiting disabled")
		return RateLimit{}, false
	}

	return RateLimit{Max: maxReq, Window: time.Duration(minutes) * time.Minute}, true
}
