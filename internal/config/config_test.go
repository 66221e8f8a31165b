package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "data/register.db", cfg.Database.Path)
	assert.Equal(t, "data/cache", cfg.Storage.CacheDir)
	assert.Equal(t, 300*time.Millisecond, cfg.Correlator.DeferredDelay)
	assert.Equal(t, 256, cfg.Correlator.QueueSize)
	assert.Equal(t, "DISPATCHER", cfg.Correlator.LocalIdentity.Type)
	assert.Equal(t, "register.reports.>", cfg.NATS.Subject)
	assert.True(t, cfg.Cleanup.OnShutdown)
	assert.Equal(t, 100, cfg.Notifications.Limit)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("NATS_URL", "nats://gateway:4222")
	t.Setenv("REGISTER_LOCAL_ID", "console-2")

	cfg, err := Load(writeConfig(t, `
storage:
  cache_dir: /var/lib/register/cache
correlator:
  deferred_delay: 1s
cleanup:
  on_startup: true
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/register/cache", cfg.Storage.CacheDir)
	assert.Equal(t, time.Second, cfg.Correlator.DeferredDelay)
	assert.True(t, cfg.Cleanup.OnStartup)
	assert.Equal(t, "nats://gateway:4222", cfg.NATS.URL)
	assert.Equal(t, "console-2", cfg.Correlator.LocalIdentity.ID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:     ServerConfig{Port: 8080},
			Database:   DatabaseConfig{Path: "register.db"},
			Storage:    StorageConfig{CacheDir: "cache"},
			NATS:       NATSConfig{Enabled: true, URL: "nats://localhost:4222"},
			Correlator: CorrelatorConfig{DeferredDelay: time.Second, QueueSize: 8},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no cache", func(c *Config) { c.Storage.CacheDir = "" }, "storage.cache_dir"},
		{"nats without url", func(c *Config) { c.NATS.URL = "" }, "nats.url"},
		{"nats disabled", func(c *Config) { c.NATS = NATSConfig{} }, ""},
		{"zero delay", func(c *Config) { c.Correlator.DeferredDelay = 0 }, "deferred_delay"},
		{"bad local identity", func(c *Config) {
			c.Correlator.LocalIdentity = IdentityConfig{ID: "12x", Type: "ISSI"}
		}, "local_identity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg := &Config{
		Storage:       StorageConfig{CacheDir: "cache"},
		NATS:          NATSConfig{Enabled: true, URL: "nats://x:4222"},
		Correlator:    CorrelatorConfig{DeferredDelay: time.Second, QueueSize: 4, LocalIdentity: IdentityConfig{ID: "D1", Type: "DISPATCHER"}},
		Notifications: NotificationConfig{Limit: 7},
	}

	cc := cfg.ToContainerConfig()

	assert.Equal(t, "cache", cc.Storage.CacheDir)
	assert.Equal(t, "D1", cc.Correlator.LocalIdentity.ID)
	assert.True(t, cc.Correlator.LocalIdentity.IsDispatcher())
	assert.Equal(t, 7, cc.NotificationLimit)
	assert.True(t, cc.NATS.Enabled)

	cfg.Correlator.LocalIdentity = IdentityConfig{}
	assert.True(t, cfg.ToContainerConfig().Correlator.LocalIdentity.IsZero())
}
