// Package config loads vigilbot configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds vigilbot configuration, populated from VIGILBOT_* environment
// variables.
type Config struct {
	Token  string  `env:"VIGILBOT_TOKEN,required"`
	Admins []int64 `env:"VIGILBOT_ADMINS" envSeparator:","`

	APIBaseURL string `env:"VIGILBOT_API_BASE_URL"`
	LogLevel   string `env:"VIGILBOT_LOG_LEVEL" envDefault:"info"`

	// Supervisor retry policy
	MaxRetries uint          `env:"VIGILBOT_MAX_RETRIES" envDefault:"10"`
	BaseDelay  time.Duration `env:"VIGILBOT_BASE_DELAY" envDefault:"10s"`
	CapFactor  uint          `env:"VIGILBOT_CAP_FACTOR" envDefault:"3"`
	Preflight  bool          `env:"VIGILBOT_PREFLIGHT" envDefault:"true"`

	// Polling
	PollTimeout   int `env:"VIGILBOT_POLL_TIMEOUT" envDefault:"30"`
	PollLimit     int `env:"VIGILBOT_POLL_LIMIT" envDefault:"100"`
	PollMaxErrors int `env:"VIGILBOT_POLL_MAX_ERRORS" envDefault:"10"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("vigilbot: parse environment: %w", err)
	}

	if cfg.PollTimeout < 0 || cfg.PollTimeout > 60 {
		return nil, fmt.Errorf("vigilbot: VIGILBOT_POLL_TIMEOUT must be 0-60, got %d", cfg.PollTimeout)
	}
	if cfg.PollLimit < 1 || cfg.PollLimit > 100 {
		return nil, fmt.Errorf("vigilbot: VIGILBOT_POLL_LIMIT must be 1-100, got %d", cfg.PollLimit)
	}
	if cfg.MaxRetries == 0 {
		return nil, fmt.Errorf("vigilbot: VIGILBOT_MAX_RETRIES must be at least 1")
	}

	return &cfg, nil
}

// IsAdmin checks whether a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// Level maps the configured log level string to a slog.Level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
