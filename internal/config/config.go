// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all engine configuration.
type Config struct {
	Server    ServerConfig
	Intent    IntentConfig
	Preview   PreviewConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8700"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// IntentConfig holds the intent execution backend configuration.
type IntentConfig struct {
	BackendURL string        `envconfig:"INTENT_BACKEND_URL" default:"http://localhost:8701/intents"`
	Timeout    time.Duration `envconfig:"INTENT_TIMEOUT" default:"20s"`
}

// PreviewConfig holds sandbox and protocol tuning.
type PreviewConfig struct {
	// NavTimeout bounds one page-generation round trip. A hung host must
	// not be able to wedge the sandbox forever.
	NavTimeout time.Duration `envconfig:"PREVIEW_NAV_TIMEOUT" default:"30s"`
	// DiagnosticTimeout bounds the error query on manual refresh; on expiry
	// the refresh proceeds anyway.
	DiagnosticTimeout time.Duration `envconfig:"PREVIEW_DIAG_TIMEOUT" default:"1s"`
	ErrorBufferCap    int           `envconfig:"PREVIEW_ERROR_BUFFER_CAP" default:"50"`
	ScriptTimeout     time.Duration `envconfig:"PREVIEW_SCRIPT_TIMEOUT" default:"2s"`
	// ManifestCompressMin is the page size above which manifest entries are
	// gzip-compressed before crossing the boundary.
	ManifestCompressMin int `envconfig:"PREVIEW_MANIFEST_COMPRESS_MIN" default:"8192"`
	ChannelBuffer       int `envconfig:"PREVIEW_CHANNEL_BUFFER" default:"256"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds control-surface rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8700",
			Host: "0.0.0.0",
		},
		Intent: IntentConfig{
			BackendURL: "http://localhost:8701/intents",
			Timeout:    20 * time.Second,
		},
		Preview: PreviewConfig{
			NavTimeout:          30 * time.Second,
			DiagnosticTimeout:   time.Second,
			ErrorBufferCap:      50,
			ScriptTimeout:       2 * time.Second,
			ManifestCompressMin: 8192,
			ChannelBuffer:       256,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
