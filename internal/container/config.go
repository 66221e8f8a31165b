package container

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
)

// Config holds all configuration needed by the container
type Config struct {
	Database   DatabaseConfig
	Storage    StorageConfig
	NATS       NATSConfig
	Correlator CorrelatorConfig
	Server     ServerConfig

	// NotificationLimit bounds the failure notification feed
	NotificationLimit int
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StorageConfig holds the download cache location
type StorageConfig struct {
	CacheDir string
}

// NATSConfig holds the report subscription. Disabled leaves the HTTP report
// endpoint as the only way in.
type NATSConfig struct {
	Enabled    bool
	URL        string
	Subject    string
	QueueGroup string
}

// CorrelatorConfig holds event loop settings
type CorrelatorConfig struct {
	DeferredDelay time.Duration
	QueueSize     int
	LocalIdentity entity.Identity
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/register.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Storage: StorageConfig{
			CacheDir: "data/cache",
		},
		NATS: NATSConfig{
			URL:        "nats://127.0.0.1:4222",
			Subject:    "register.reports.>",
			QueueGroup: "dispatch-register",
		},
		Correlator: CorrelatorConfig{
			DeferredDelay: 300 * time.Millisecond,
			QueueSize:     256,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		NotificationLimit: 100,
	}
}

// Validate checks that required configuration values are present
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database path is required"))
	}
	if c.Storage.CacheDir == "" {
		errs = append(errs, fmt.Errorf("cache dir is required"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, fmt.Errorf("nats url is required"))
	}
	return errors.Join(errs...)
}
