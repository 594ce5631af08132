package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/app"
	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)
	if cfg.Metrics.Enabled {
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.HealthPort))
	} else {
		logger.Log.Info("Metrics endpoint disabled", zap.String("environment", cfg.Environment))
	}

	logger.Log.Info("Starting CareOps orchestrator",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
		zap.String("workspace_id", cfg.Workspace.ID),
		zap.String("nats_url", cfg.NATS.URL),
	)

	orchestrator, err := app.New(cfg, logger.Log, version)
	if err != nil {
		logger.Log.Fatal("Failed to initialize orchestrator", zap.Error(err))
	}

	if err := orchestrator.Start(context.Background()); err != nil {
		logger.Log.Fatal("Failed to start orchestrator", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	case err := <-orchestrator.Failed():
		logger.Log.Error("DLQ Worker failed, initiating shutdown", zap.Error(err))
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", timeout))
	orchestrator.Shutdown(shutdownCtx)
	logger.Log.Info("CareOps orchestrator shutdown complete")
}
