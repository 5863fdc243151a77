package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/export"
	"github.com/GriffinCanCode/PenEditor/backend/internal/sandbox"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Sandbox   SandboxConfig
	Export    ExportConfig
	Starter   StarterConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8000"`
	Host        string   `envconfig:"HOST" default:"0.0.0.0"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	MaxSessions int      `envconfig:"MAX_SESSIONS" default:"64"`
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

// SandboxConfig holds execution context and library loader configuration.
type SandboxConfig struct {
	Timeout          time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
	MaxCallStackSize int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	PoolSize         int           `envconfig:"SANDBOX_POOL_SIZE" default:"2"`
	QueueSize        int           `envconfig:"SANDBOX_QUEUE_SIZE" default:"256"`
	RelayBuffer      int           `envconfig:"SANDBOX_RELAY_BUFFER" default:"1024"`
	FetchLibraries   bool          `envconfig:"SANDBOX_FETCH_LIBRARIES" default:"false"`
	LibraryBaseURL   string        `envconfig:"SANDBOX_LIBRARY_BASE_URL"`
	LibraryTimeout   time.Duration `envconfig:"SANDBOX_LIBRARY_TIMEOUT" default:"10s"`
	LibraryRetries   int           `envconfig:"SANDBOX_LIBRARY_RETRIES" default:"2"`
	LibraryRPS       float64       `envconfig:"SANDBOX_LIBRARY_RPS" default:"5"`
	BreakerThreshold uint32        `envconfig:"SANDBOX_LIBRARY_BREAKER_THRESHOLD" default:"3"`
	BreakerCooldown  time.Duration `envconfig:"SANDBOX_LIBRARY_BREAKER_COOLDOWN" default:"30s"`
}

// ExportConfig holds export configuration.
type ExportConfig struct {
	Encoding string `envconfig:"EXPORT_ENCODING" default:""`
}

// StarterConfig holds the initial session content.
type StarterConfig struct {
	Path        string `envconfig:"STARTER_PATH"`
	RunOnCreate bool   `envconfig:"STARTER_RUN_ON_CREATE" default:"true"`
}

// LoadEnvFiles loads .env style files into the environment. Missing files
// are skipped; variables already set are not overridden.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
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

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8000",
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
			MaxSessions: 64,
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
		Sandbox: SandboxConfig{
			Timeout:          5 * time.Second,
			MaxCallStackSize: 1024,
			PoolSize:         2,
			QueueSize:        256,
			RelayBuffer:      sandbox.DefaultRelayBuffer,
			LibraryTimeout:   10 * time.Second,
			LibraryRetries:   2,
			LibraryRPS:       5,
			BreakerThreshold: 3,
			BreakerCooldown:  30 * time.Second,
		},
		Starter: StarterConfig{
			RunOnCreate: true,
		},
	}
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("invalid config: SANDBOX_TIMEOUT must be positive, got %s", c.Sandbox.Timeout)
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("invalid config: MAX_SESSIONS must not be negative")
	}
	if _, err := export.ParseEncoding(c.Export.Encoding); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// SandboxRuntime converts the sandbox section for the execution context.
func (c *Config) SandboxRuntime() sandbox.Config {
	cfg := sandbox.DefaultConfig()
	cfg.Timeout = c.Sandbox.Timeout
	cfg.MaxCallStackSize = c.Sandbox.MaxCallStackSize
	cfg.PoolSize = c.Sandbox.PoolSize
	cfg.QueueSize = c.Sandbox.QueueSize
	return cfg
}

// LibraryLoader converts the sandbox section for the library loader.
func (c *Config) LibraryLoader() sandbox.LoaderConfig {
	cfg := sandbox.DefaultLoaderConfig()
	cfg.BaseURL = c.Sandbox.LibraryBaseURL
	cfg.Timeout = c.Sandbox.LibraryTimeout
	cfg.MaxRetries = c.Sandbox.LibraryRetries
	cfg.RateLimit = c.Sandbox.LibraryRPS
	cfg.Breaker.Threshold = c.Sandbox.BreakerThreshold
	cfg.Breaker.Cooldown = c.Sandbox.BreakerCooldown
	return cfg
}
