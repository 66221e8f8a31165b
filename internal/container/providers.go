package container

import (
	"fmt"
	"os"

	"github.com/garyjia/dispatch-register/internal/application/cleanup"
	"github.com/garyjia/dispatch-register/internal/application/correlator"
	"github.com/garyjia/dispatch-register/internal/application/dispatcher"
	"github.com/garyjia/dispatch-register/internal/application/port"
	"github.com/garyjia/dispatch-register/internal/application/service"
	"github.com/garyjia/dispatch-register/internal/application/store"
	"github.com/garyjia/dispatch-register/internal/infrastructure/messaging"
	"github.com/garyjia/dispatch-register/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/dispatch-register/internal/infrastructure/storage"
	"github.com/garyjia/dispatch-register/internal/infrastructure/worker"
	"github.com/garyjia/dispatch-register/migrations"
	"github.com/garyjia/dispatch-register/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds the connection and the transaction manager over it
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access
type RepositoryBundle struct {
	Rows        port.RowRepository
	Attachments port.AttachmentRepository
}

// EngineBundle holds the event loop and everything that runs on it
type EngineBundle struct {
	Loop    *correlator.Loop
	Engine  *correlator.Engine
	Cleanup *cleanup.Manager
	Feed    *service.NotificationFeed
}

// EngineDeps holds dependencies required for creating the engine
type EngineDeps struct {
	Config       *CorrelatorConfig
	Repos        *RepositoryBundle
	Transactions port.TransactionManager
	Files        port.FileStorage
	Dispatcher   dispatcher.Dispatcher
	FeedLimit    int
	Logger       *zap.Logger
}

// ProvideDatabase opens the register database and applies pending migrations
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(conn, logger).RunMigrations(migrations.FS); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over the database
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Rows:        sqlite.NewRowRepository(db, logger),
		Attachments: sqlite.NewAttachmentRepository(db, logger),
	}, nil
}

// ProvideStorage creates the download cache
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil || cfg.CacheDir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.CacheDir, logger), nil
}

// ProvideDispatcher creates the report dispatcher
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	), nil
}

// ProvideEngine creates the event loop and the correlation engine, registers
// the engine's handlers and loads the persisted register
func ProvideEngine(deps *EngineDeps) (*EngineBundle, error) {
	if deps == nil || deps.Config == nil || deps.Repos == nil || deps.Dispatcher == nil || deps.Logger == nil {
		return nil, fmt.Errorf("engine dependencies are incomplete")
	}

	logger := deps.Logger.Named("correlator")
	loop := correlator.NewLoop(deps.Config.QueueSize, logger)
	feed := service.NewNotificationFeed(deps.FeedLimit, deps.Logger.Named("notifications"))

	rows := store.NewRowStore(deps.Repos.Rows, logger)
	attachments := store.NewAttachmentStore(deps.Repos.Attachments, logger)

	var opts []correlator.Option
	if deps.Transactions != nil {
		opts = append(opts, correlator.WithTransactions(deps.Transactions))
	}
	engine := correlator.NewEngine(rows, attachments, loop, feed, correlator.Config{
		DeferredDelay: deps.Config.DeferredDelay,
		LocalIdentity: deps.Config.LocalIdentity,
	}, logger, opts...)
	engine.Register(deps.Dispatcher)

	manager := cleanup.NewManager(rows, attachments, deps.Files, feed, deps.Logger.Named("cleanup"))

	return &EngineBundle{
		Loop:    loop,
		Engine:  engine,
		Cleanup: manager,
		Feed:    feed,
	}, nil
}

// ProvideRegisterService creates the register service over the engine
func ProvideRegisterService(bundle *EngineBundle, d dispatcher.Dispatcher, logger *zap.Logger) service.RegisterService {
	return service.NewRegisterService(
		bundle.Loop,
		bundle.Engine,
		bundle.Cleanup,
		d,
		&zapLoggerAdapter{logger: logger.Named("register")},
	)
}

// ProvideWorkers creates the worker manager. The loop is registered first
// so it is the last to stop.
func ProvideWorkers(cfg *NATSConfig, loop *correlator.Loop, register service.RegisterService, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger.Named("workers"))
	manager.Register(loop)

	if cfg != nil && cfg.Enabled {
		manager.Register(messaging.NewConsumer(messaging.Config{
			URL:        cfg.URL,
			Subject:    cfg.Subject,
			QueueGroup: cfg.QueueGroup,
		}, register, logger.Named("nats")))
	}
	return manager
}
