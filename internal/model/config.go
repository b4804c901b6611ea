package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate
var ErrInvalidConfig = errors.New("invalid config")

// MaxTagsUpperBound is the largest accepted engine.max_tags_per_text (one tag per category)
const MaxTagsUpperBound = 12

// Config holds all epimap configuration
type Config struct {
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Events  EventsConfig  `yaml:"events" mapstructure:"events"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
}

// EngineConfig is consumed by the classifier and node builder.
// It is supplied once at construction and never changes afterwards.
type EngineConfig struct {
	MinConfidenceThreshold float64       `yaml:"min_confidence_threshold" mapstructure:"min_confidence_threshold"`
	MaxTagsPerText         int           `yaml:"max_tags_per_text" mapstructure:"max_tags_per_text"`
	MaxTextLength          int           `yaml:"max_text_length" mapstructure:"max_text_length"`
	CacheTTL               time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"` // 0 disables the detect memo
}

// ServerConfig configures the HTTP boundary
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"` // <= 0 disables limiting
	RateLimitBurst  int           `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	TrustProxy      bool          `yaml:"trust_proxy" mapstructure:"trust_proxy"` // take the client IP from X-Forwarded-For
	BodyLimit       string        `yaml:"body_limit" mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	Debug           bool          `yaml:"debug" mapstructure:"debug"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// StorageConfig configures the optional SQLite journal
type StorageConfig struct {
	JournalPath string `yaml:"journal_path" mapstructure:"journal_path"`
}

// EventsConfig configures the optional NATS publisher
type EventsConfig struct {
	NATSURL string `yaml:"nats_url" mapstructure:"nats_url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
}

// FetchConfig configures page fetching for `epimap fetch`
type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes          int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	HTTPProxy         string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MinConfidenceThreshold: 0.2,
			MaxTagsPerText:         5,
			MaxTextLength:          5000,
			CacheTTL:               10 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			CORSOrigins:     []string{"*"},
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			BodyLimit:       "64K",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Events: EventsConfig{
			Subject: "epimap.node.tagged",
		},
		Fetch: FetchConfig{
			Timeout:           30 * time.Second,
			UserAgent:         "epimap/0.1 (+https://github.com/ppiankov/epimap)",
			MaxBytes:          2_000_000,
			RequestsPerSecond: 1,
			Burst:             2,
			RespectRobots:     true,
		},
	}
}

// Validate checks ranges. An invalid config is fatal at startup.
func (c *Config) Validate() error {
	e := c.Engine
	if e.MinConfidenceThreshold < 0 || e.MinConfidenceThreshold > 1 {
		return fmt.Errorf("%w: engine.min_confidence_threshold must be within [0,1], got %v", ErrInvalidConfig, e.MinConfidenceThreshold)
	}
	if e.MaxTagsPerText < 1 || e.MaxTagsPerText > MaxTagsUpperBound {
		return fmt.Errorf("%w: engine.max_tags_per_text must be within [1,%d], got %d", ErrInvalidConfig, MaxTagsUpperBound, e.MaxTagsPerText)
	}
	if e.MaxTextLength < 1 {
		return fmt.Errorf("%w: engine.max_text_length must be positive, got %d", ErrInvalidConfig, e.MaxTextLength)
	}
	if e.CacheTTL < 0 {
		return fmt.Errorf("%w: engine.cache_ttl must not be negative", ErrInvalidConfig)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format must be json or console, got %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Events.NATSURL != "" && c.Events.Subject == "" {
		return fmt.Errorf("%w: events.subject is required when events.nats_url is set", ErrInvalidConfig)
	}

	return nil
}
