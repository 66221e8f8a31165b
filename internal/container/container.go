package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/dispatch-register/internal/application/correlator"
	"github.com/garyjia/dispatch-register/internal/application/dispatcher"
	"github.com/garyjia/dispatch-register/internal/application/port"
	"github.com/garyjia/dispatch-register/internal/application/service"
	"github.com/garyjia/dispatch-register/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/dispatch-register/internal/infrastructure/worker"
	"github.com/garyjia/dispatch-register/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Initialization is ordered; teardown runs in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle
	fileStorage  port.FileStorage

	// Application
	dispatcher dispatcher.Dispatcher
	engine     *EngineBundle
	register   service.RegisterService

	workers *worker.WorkerManager

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing:
// database and repositories, cache storage, dispatcher and engine (loading
// the persisted register), register service, then the workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	fileStorage, err := ProvideStorage(&c.config.Storage, c.logger.Named("storage"))
	if err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.fileStorage = fileStorage

	if err := c.initEngine(ctx); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	c.register = ProvideRegisterService(c.engine, c.dispatcher, c.logger)
	c.workers = ProvideWorkers(&c.config.NATS, c.engine.Loop, c.register, c.logger)

	if err := c.workers.StartAll(ctx); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to start workers: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully",
		zap.Int("rows", c.engine.Engine.Rows().Len()),
		zap.Int("attachments", c.engine.Engine.Attachments().Len()))
	return nil
}

// Close shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if err := c.closeDatabase(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.conn == nil:
		set("database", false, "not initialized")
	default:
		if err := c.conn.Ping(); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.engine != nil {
		set("event_loop", c.engine.Loop.IsRunning(), fmt.Sprintf("pending rechecks: %d", c.engine.Engine.PendingRechecks()))
	} else {
		set("event_loop", false, "not initialized")
	}

	if c.workers != nil {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()))
	} else {
		set("workers", false, "not initialized")
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger.Named("database"))
	if err != nil {
		return err
	}
	c.conn = bundle.Conn
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger.Named("repository"))
	if err != nil {
		c.closeDatabase()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initEngine(ctx context.Context) error {
	d, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = d

	bundle, err := ProvideEngine(&EngineDeps{
		Config:       &c.config.Correlator,
		Repos:        c.repositories,
		Transactions: c.db,
		Files:        c.fileStorage,
		Dispatcher:   d,
		FeedLimit:    c.config.NotificationLimit,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	// the loop is not running yet, so loading here cannot race it
	if err := bundle.Engine.Load(ctx); err != nil {
		return err
	}
	c.engine = bundle
	return nil
}

func (c *Container) closeDatabase() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.db = nil, nil
	return err
}

// DB returns the transaction manager
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Register returns the register service
func (c *Container) Register() service.RegisterService {
	return c.register
}

// Notifications returns the failure notification feed
func (c *Container) Notifications() *service.NotificationFeed {
	if c.engine == nil {
		return nil
	}
	return c.engine.Feed
}

// Loop returns the event loop
func (c *Container) Loop() *correlator.Loop {
	if c.engine == nil {
		return nil
	}
	return c.engine.Loop
}

// Workers returns the worker manager
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *Config {
	return c.config
}

// KVLogger is the key-value logging interface shared by the service,
// dispatcher and HTTP packages
type KVLogger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HTTPLogger adapts the container's logger for the HTTP layer
func (c *Container) HTTPLogger() KVLogger {
	return &zapLoggerAdapter{logger: c.logger.Named("http")}
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces of
// the service, dispatcher and HTTP packages
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
