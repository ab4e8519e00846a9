package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Git       GitConfig
	Docker    DockerConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds the status HTTP server configuration.
type ServerConfig struct {
	Enabled bool   `env:"SERVER_ENABLED" envDefault:"true"`
	Host    string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds the optional history database. An empty driver
// disables persistence; the controller then runs purely in-memory.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER"`
	DSN    string `env:"DB_DSN" envDefault:"data/stack-manager.db"`
}

// GitConfig holds the desired-state repository settings.
type GitConfig struct {
	URL      string `env:"GIT_URL"`
	Branch   string `env:"GIT_BRANCH" envDefault:"main"`
	Path     string `env:"GIT_PATH" envDefault:"."`
	Username string `env:"GIT_USERNAME"`
	Password string `env:"GIT_PASSWORD"`
	WorkDir  string `env:"GIT_WORK_DIR"`
}

// DockerConfig holds orchestration platform settings.
type DockerConfig struct {
	Binary string `env:"DOCKER_BINARY" envDefault:"docker"`
}

// ReconcileConfig holds reconciliation loop behavior.
type ReconcileConfig struct {
	Interval      time.Duration `env:"RECONCILE_INTERVAL" envDefault:"60s"`
	StacksFile    string        `env:"STACKS_FILE" envDefault:"stacks.yml"`
	ActionTimeout time.Duration `env:"ACTION_TIMEOUT" envDefault:"2m"`
	PruneAfter    int           `env:"RECONCILE_PRUNE_AFTER" envDefault:"10"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Git); err != nil {
		return nil, fmt.Errorf("parsing git config: %w", err)
	}
	if err := env.Parse(&cfg.Docker); err != nil {
		return nil, fmt.Errorf("parsing docker config: %w", err)
	}
	if err := env.Parse(&cfg.Reconcile); err != nil {
		return nil, fmt.Errorf("parsing reconcile config: %w", err)
	}

	if cfg.Git.WorkDir == "" {
		cfg.Git.WorkDir = filepath.Join(os.TempDir(), "stack-manager")
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsePersistence returns true when the history database is configured.
func (c *Config) UsePersistence() bool {
	return c.Database.Driver != ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Git.URL == "" {
		return fmt.Errorf("GIT_URL is required")
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	if c.Reconcile.PruneAfter < 0 {
		return fmt.Errorf("RECONCILE_PRUNE_AFTER must not be negative")
	}
	if c.UsePersistence() && c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required when DB_DRIVER is set")
	}
	return nil
}
