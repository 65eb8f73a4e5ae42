// Package config loads famboard settings from FAMBOARD_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

const envPrefix = "FAMBOARD"

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	DBPath   string `envconfig:"DB_PATH" default:"famboard.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// LogFormat is "text" or "json".
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	TokenSecret string        `envconfig:"TOKEN_SECRET" required:"true"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"168h"`

	// Timezone decides where "yesterday" ends for the streak reset.
	Timezone        string `envconfig:"TIMEZONE" default:"UTC"`
	StreakResetSpec string `envconfig:"STREAK_RESET_SPEC" default:"5 0 * * *"`

	AuthRateLimit  int           `envconfig:"AUTH_RATE_LIMIT" default:"10"`
	AuthRateWindow time.Duration `envconfig:"AUTH_RATE_WINDOW" default:"1m"`

	// AllowedOrigins are host patterns accepted for cross-origin websocket
	// connections.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	PostmarkToken string `envconfig:"POSTMARK_SERVER_TOKEN"`
	FromEmail     string `envconfig:"FROM_EMAIL" default:"noreply@famboard.local"`
	BaseURL       string `envconfig:"BASE_URL" default:"http://localhost:8080"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.TokenSecret) < 16 {
		errs = append(errs, errors.New("FAMBOARD_TOKEN_SECRET must be at least 16 characters"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("FAMBOARD_TOKEN_TTL must be positive"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("FAMBOARD_TIMEZONE: %w", err))
	}
	if _, err := cron.ParseStandard(c.StreakResetSpec); err != nil {
		errs = append(errs, fmt.Errorf("FAMBOARD_STREAK_RESET_SPEC: %w", err))
	}
	if c.AuthRateLimit <= 0 || c.AuthRateWindow <= 0 {
		errs = append(errs, errors.New("FAMBOARD_AUTH_RATE_LIMIT and FAMBOARD_AUTH_RATE_WINDOW must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("FAMBOARD_LOG_FORMAT %q: want text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EmailEnabled reports whether transactional email is configured.
func (c *Config) EmailEnabled() bool {
	return c.PostmarkToken != ""
}
