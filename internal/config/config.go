// Package config provides configuration management for the push entitlement core.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/pushgate/internal/types"
)

// Day-boundary policies for quota resets
const (
	ResetZoneLocal   = "local"
	ResetZoneAccount = "account"
)

// Config holds all application configuration
type Config struct {
	Postgres PostgresConfig `envconfig:"POSTGRES"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Quota    QuotaConfig    `envconfig:"QUOTA"`
	Logging  LoggingConfig  `envconfig:"LOG"`
	Settings SettingsConfig `envconfig:"SETTINGS"`
	Sweep    SweepConfig    `envconfig:"SWEEP"`
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string `default:"localhost"`
	Port           string `default:"5432"`
	DB             string `default:"pushgate"`
	User           string `default:"pushgate"`
	Password       string
	MaxConnections int `split_words:"true" default:"20"`
}

// DSN returns the libpq-style connection URL
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.DB)
}

// RedisConfig holds Redis configuration. An empty Host disables Redis and the
// admission lock falls back to the in-process implementation.
type RedisConfig struct {
	Host           string
	Port           string `default:"6379"`
	Password       string
	DB             int
	MaxConnections int `split_words:"true" default:"10"`
}

// Enabled reports whether a Redis endpoint is configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// QuotaConfig holds daily-quota settings
type QuotaConfig struct {
	ResetZone string        `split_words:"true" default:"local"`
	LockTTL   time.Duration `split_words:"true" default:"30s"`
	LockWait  time.Duration `split_words:"true" default:"5s"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `default:"info"`
	Format string `default:"json"`
}

// SettingsConfig holds the defaults applied to accounts without a settings row
type SettingsConfig struct {
	ReportMode string `split_words:"true" default:"daily"`
	Timezone   string `default:"Asia/Shanghai"`
}

// SweepConfig paces the dry-run sweep tool
type SweepConfig struct {
	Rate  float64 `default:"20"`
	Burst int     `default:"5"`
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	cfg.Quota.ResetZone = strings.ToLower(strings.TrimSpace(cfg.Quota.ResetZone))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	switch c.Quota.ResetZone {
	case ResetZoneLocal, ResetZoneAccount:
	default:
		return fmt.Errorf("QUOTA_RESET_ZONE must be %q or %q, got %q", ResetZoneLocal, ResetZoneAccount, c.Quota.ResetZone)
	}
	if c.Quota.LockTTL <= 0 {
		return fmt.Errorf("QUOTA_LOCK_TTL must be positive")
	}
	if c.Quota.LockWait < 0 {
		return fmt.Errorf("QUOTA_LOCK_WAIT must not be negative")
	}
	if !types.ReportMode(c.Settings.ReportMode).Valid() {
		return fmt.Errorf("SETTINGS_REPORT_MODE %q is not a known report mode", c.Settings.ReportMode)
	}
	if _, err := time.LoadLocation(c.Settings.Timezone); err != nil {
		return fmt.Errorf("SETTINGS_TIMEZONE: %w", err)
	}
	if c.Postgres.MaxConnections <= 0 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive")
	}
	if c.Sweep.Rate <= 0 {
		return fmt.Errorf("SWEEP_RATE must be positive")
	}
	return nil
}
