package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Bridge    BridgeConfig
	Storage   StorageConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// CatalogConfig holds the catalog backend location.
type CatalogConfig struct {
	URL     string        `envconfig:"CATALOG_URL" default:"http://localhost:8100"`
	Timeout time.Duration `envconfig:"CATALOG_TIMEOUT" default:"10s"`
}

// BridgeConfig holds message bridge limits and timeouts.
type BridgeConfig struct {
	RequestTimeout    time.Duration `envconfig:"BRIDGE_REQUEST_TIMEOUT" default:"30s"`
	PromptTimeout     time.Duration `envconfig:"BRIDGE_PROMPT_TIMEOUT" default:"5m"`
	CredentialTimeout time.Duration `envconfig:"BRIDGE_CREDENTIAL_TIMEOUT" default:"30s"`
	ScriptTimeout     time.Duration `envconfig:"BRIDGE_SCRIPT_TIMEOUT" default:"5s"`
	BufferLimit       int           `envconfig:"BRIDGE_BUFFER_LIMIT" default:"256"`
	MaxWaiters        int           `envconfig:"BRIDGE_MAX_WAITERS" default:"64"`
}

// StorageConfig holds storage locations. An empty StorageDir selects the
// in-memory store.
type StorageConfig struct {
	StorageDir  string `envconfig:"STORAGE_DIR" default:""`
	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"/tmp/minihost-downloads"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects limits the bridge cannot run with.
func (c *Config) Validate() error {
	if c.Bridge.BufferLimit <= 0 {
		return fmt.Errorf("BRIDGE_BUFFER_LIMIT must be positive, got %d", c.Bridge.BufferLimit)
	}
	if c.Bridge.MaxWaiters <= 0 {
		return fmt.Errorf("BRIDGE_MAX_WAITERS must be positive, got %d", c.Bridge.MaxWaiters)
	}
	if c.Bridge.RequestTimeout <= 0 || c.Bridge.PromptTimeout <= 0 || c.Bridge.CredentialTimeout <= 0 {
		return fmt.Errorf("bridge timeouts must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Catalog: CatalogConfig{
			URL:     "http://localhost:8100",
			Timeout: 10 * time.Second,
		},
		Bridge: BridgeConfig{
			RequestTimeout:    30 * time.Second,
			PromptTimeout:     5 * time.Minute,
			CredentialTimeout: 30 * time.Second,
			ScriptTimeout:     5 * time.Second,
			BufferLimit:       256,
			MaxWaiters:        64,
		},
		Storage: StorageConfig{
			DownloadDir: "/tmp/minihost-downloads",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
