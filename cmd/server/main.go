package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/dispatch-register/internal/config"
	"github.com/garyjia/dispatch-register/internal/container"
	httpserver "github.com/garyjia/dispatch-register/internal/interfaces/http"
	"github.com/garyjia/dispatch-register/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// .env is optional; values already in the environment win
	envErr := gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Debug("No .env file loaded", zap.Error(envErr))
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Dispatch register exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Dispatch register exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting dispatch register",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("nats_enabled", cfg.NATS.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	if cfg.Cleanup.OnStartup {
		if err := c.Register().Cleanup(ctx); err != nil {
			logger.Warn("Startup cleanup failed", zap.Error(err))
		}
	}

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		c.Register(),
		c.Notifications(),
		c.HTTPLogger(),
	)

	serveErr := server.Start(ctx)
	logger.Info("Shutting down dispatch register")

	// the loop must still be running for cleanup, so it goes before Close
	if cfg.Cleanup.OnShutdown {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.Register().Cleanup(cleanupCtx); err != nil {
			logger.Warn("Shutdown cleanup failed", zap.Error(err))
		}
		cancel()
	}

	if err := c.Close(); err != nil {
		logger.Error("Container close failed", zap.Error(err))
	}
	return serveErr
}
