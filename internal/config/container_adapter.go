package config

import (
	"github.com/garyjia/dispatch-register/internal/container"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
)

// ToContainerConfig converts the file-based Config loaded by viper into the
// container's configuration structure
func (c *Config) ToContainerConfig() *container.Config {
	var local entity.Identity
	if c.Correlator.LocalIdentity.ID != "" {
		local = entity.NewIdentity(c.Correlator.LocalIdentity.ID, entity.IdentityType(c.Correlator.LocalIdentity.Type))
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Storage: container.StorageConfig{
			CacheDir: c.Storage.CacheDir,
		},
		NATS: container.NATSConfig{
			Enabled:    c.NATS.Enabled,
			URL:        c.NATS.URL,
			Subject:    c.NATS.Subject,
			QueueGroup: c.NATS.QueueGroup,
		},
		Correlator: container.CorrelatorConfig{
			DeferredDelay: c.Correlator.DeferredDelay,
			QueueSize:     c.Correlator.QueueSize,
			LocalIdentity: local,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		NotificationLimit: c.Notifications.Limit,
	}
}
