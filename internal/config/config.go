package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/garyjia/dispatch-register/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Storage       StorageConfig      `mapstructure:"storage"`
	NATS          NATSConfig         `mapstructure:"nats"`
	Correlator    CorrelatorConfig   `mapstructure:"correlator"`
	Cleanup       CleanupConfig      `mapstructure:"cleanup"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logger        LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig holds the private download cache location
type StorageConfig struct {
	CacheDir string `mapstructure:"cache_dir"`
}

// NATSConfig holds the report subscription settings
type NATSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Subject    string `mapstructure:"subject"`
	QueueGroup string `mapstructure:"queue_group"`
}

// IdentityConfig is a subscriber identity in configuration
type IdentityConfig struct {
	ID   string `mapstructure:"id"`
	Type string `mapstructure:"type"`
}

// CorrelatorConfig holds event loop and correlation settings
type CorrelatorConfig struct {
	DeferredDelay time.Duration  `mapstructure:"deferred_delay"`
	QueueSize     int            `mapstructure:"queue_size"`
	LocalIdentity IdentityConfig `mapstructure:"local_identity"`
}

// CleanupConfig controls cache cleanup around the session
type CleanupConfig struct {
	OnStartup  bool `mapstructure:"on_startup"`
	OnShutdown bool `mapstructure:"on_shutdown"`
}

// NotificationConfig bounds the failure notification feed
type NotificationConfig struct {
	Limit int `mapstructure:"limit"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// sqlite allows a single writer
	v.SetDefault("database.path", "data/register.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("storage.cache_dir", "data/cache")

	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", "register.reports.>")
	v.SetDefault("nats.queue_group", "dispatch-register")

	v.SetDefault("correlator.deferred_delay", 300*time.Millisecond)
	v.SetDefault("correlator.queue_size", 256)
	v.SetDefault("correlator.local_identity.type", "DISPATCHER")

	v.SetDefault("cleanup.on_startup", false)
	v.SetDefault("cleanup.on_shutdown", true)

	v.SetDefault("notifications.limit", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds deployment specific settings to environment variables
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":                  "REGISTER_PORT",
		"database.path":                "REGISTER_DB_PATH",
		"storage.cache_dir":            "REGISTER_CACHE_DIR",
		"nats.url":                     "NATS_URL",
		"correlator.local_identity.id": "REGISTER_LOCAL_ID",
		"logger.level":                 "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Storage.CacheDir == "" {
		errs = append(errs, fmt.Errorf("storage.cache_dir is required"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, fmt.Errorf("nats.url is required when nats is enabled"))
	}
	if c.Correlator.DeferredDelay <= 0 {
		errs = append(errs, fmt.Errorf("correlator.deferred_delay must be positive"))
	}
	if c.Correlator.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("correlator.queue_size must be positive"))
	}
	if id := c.Correlator.LocalIdentity; id.ID != "" {
		if err := utils.ValidateIdentity(id.ID, id.Type); err != nil {
			errs = append(errs, fmt.Errorf("correlator.local_identity: %w", err))
		}
	}

	return errors.Join(errs...)
}
