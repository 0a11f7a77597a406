// Package config provides configuration for the streamer.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "STREAMER"

// Config holds the streamer configuration.
type Config struct {
	// Server settings
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" default:"file:streamer.db?cache=shared&mode=rwc&_busy_timeout=5000"`

	// Upstream runtime
	RuntimeURL    string   `envconfig:"RUNTIME_URL" default:"http://localhost:2024"`
	RuntimeAPIKey string   `envconfig:"RUNTIME_API_KEY"`
	AssistantID   string   `envconfig:"ASSISTANT_ID" default:"agent"`
	StreamModes   []string `envconfig:"STREAM_MODES" default:"updates,messages"`

	// Persistence hooks
	HookTimeout time.Duration `envconfig:"HOOK_TIMEOUT" default:"10s"`

	// Timeline
	TimelineMinimumActivities int    `envconfig:"TIMELINE_MINIMUM_ACTIVITIES" default:"1"`
	TimelineAddDoneStep       bool   `envconfig:"TIMELINE_ADD_DONE_STEP" default:"true"`
	VisibilityPolicy          string `envconfig:"VISIBILITY_POLICY"` // path to a rego file

	// Watch connections
	PingInterval   time.Duration `envconfig:"WS_PING_INTERVAL" default:"30s"`
	ReadTimeout    time.Duration `envconfig:"WS_READ_TIMEOUT" default:"60s"`
	WriteTimeout   time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	MaxMessageSize int64         `envconfig:"WS_MAX_MESSAGE_SIZE" default:"4096"`
	WatchBuffer    int           `envconfig:"WATCH_BUFFER" default:"256"`

	// Logging
	LogFormat string `envconfig:"LOG_FORMAT"` // json, terminal or empty for auto
	Debug     bool   `envconfig:"DEBUG"`
}

// Load loads configuration from STREAMER_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.TimelineMinimumActivities < 0 {
		return fmt.Errorf("TIMELINE_MINIMUM_ACTIVITIES must not be negative")
	}
	if c.WatchBuffer <= 0 {
		return fmt.Errorf("WATCH_BUFFER must be positive")
	}
	switch c.LogFormat {
	case "", "json", "terminal":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}
