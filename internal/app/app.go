// Package app wires the orchestrator's infrastructure and use cases together.
package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/api"
	"gitlab.com/careops/api/careops-orchestrator/internal/cache"
	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/delivery"
	"gitlab.com/careops/api/careops-orchestrator/internal/dlqworker"
	"gitlab.com/careops/api/careops-orchestrator/internal/healthcheck"
	"gitlab.com/careops/api/careops-orchestrator/internal/ingestion"
	"gitlab.com/careops/api/careops-orchestrator/internal/jetstream"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

const deliveryDrainTimeout = 10 * time.Second

// App owns every long-lived component of one orchestrator process.
type App struct {
	cfg *config.Config
	log *zap.Logger

	Postgres   *storage.PostgresRepo
	Repos      storage.Repositories
	Redis      *cache.Client
	JetStream  *jetstream.Client
	Dispatcher *delivery.PoolDispatcher

	Orchestrator *usecase.BookingOrchestrator
	Messaging    *usecase.MessagingEngine
	Workspace    *usecase.WorkspaceState
	Activation   *usecase.ActivationGate
	Inventory    *usecase.InventoryService
	Forms        *usecase.FormsService
	Alerts       *usecase.AlertService
	Sweeper      *usecase.AlertSweeper
	Dashboard    *usecase.DashboardService
	Exhausted    *usecase.ExhaustedService

	processor *ingestion.Processor
	dlq       *dlqworker.Worker
	api       *api.Server
	health    *healthcheck.Server

	cancel      context.CancelFunc
	sweeperDone chan struct{}
	dlqErr      chan error
}

// New connects to Postgres, Redis and NATS and builds the use cases. Nothing
// consumes or serves until Start.
func New(cfg *config.Config, log *zap.Logger, version string) (*App, error) {
	a := &App{cfg: cfg, log: log, dlqErr: make(chan error, 1)}

	if cfg.Database.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pg, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate, cfg.Workspace.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}
	a.Postgres = pg
	a.Repos = storage.NewRepositories(pg)
	log.Info("Initialized PostgreSQL repository")

	if err := a.Repos.Workspace.Ensure(a.scope(context.Background()), model.Workspace{
		Name:     cfg.Workspace.Name,
		Timezone: cfg.Workspace.Timezone,
	}); err != nil {
		a.closeStores(context.Background())
		return nil, fmt.Errorf("failed to ensure workspace row: %w", err)
	}

	if a.Redis, err = cache.NewClient(cfg.Redis); err != nil {
		a.closeStores(context.Background())
		return nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}
	store := cache.NewRedisStore(a.Redis, cfg.Workspace.ID, cfg.Cache.SnapshotTTL, cfg.Cache.DashboardTTL)
	locker := cache.NewLocker(a.Redis, cfg.Workspace.ID)

	if a.JetStream, err = jetstream.NewClient(cfg.NATS.URL); err != nil {
		a.closeStores(context.Background())
		return nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}

	if a.Dispatcher, err = delivery.NewPoolDispatcher(cfg.WorkerPools.Delivery, cfg.Workspace.ID, a.JetStream, a.Repos.Messages, log); err != nil {
		a.closeStores(context.Background())
		return nil, err
	}

	settings := usecase.SettingsFromConfig(cfg)
	clock := usecase.SystemClock

	a.Workspace = usecase.NewWorkspaceState(a.Repos.Workspace, store)
	a.Dashboard = usecase.NewDashboardService(a.Repos.Dashboard, store, settings, clock)
	resolver := usecase.NewContactResolver(a.Repos.Contacts)
	linker := usecase.NewConversationLinker(a.Repos.Contacts, a.Repos.Conversations)
	a.Messaging = usecase.NewMessagingEngine(a.Repos, a.Dispatcher, a.Workspace, a.Dashboard, clock)
	a.Forms = usecase.NewFormsService(a.Repos.Forms, a.Messaging, a.Dashboard, clock)
	reminders := usecase.NewReminderScheduler(a.Repos.Reminders, a.JetStream, settings, clock)
	a.Alerts = usecase.NewAlertService(a.Repos, a.Dashboard, settings, clock)
	a.Inventory = usecase.NewInventoryService(a.Repos.Resources, a.Alerts)
	a.Activation = usecase.NewActivationGate(a.Workspace, a.Repos.Workspace, settings, clock)
	a.Exhausted = usecase.NewExhaustedService(a.Repos, clock)
	a.Sweeper = usecase.NewAlertSweeper(a.Repos, a.Alerts, a.Inventory, locker, settings, clock)
	a.Orchestrator = usecase.NewBookingOrchestrator(
		a.Repos, a.Workspace, resolver, linker, a.Messaging, a.Forms, reminders, a.Inventory, a.Alerts, a.Dashboard, settings, clock,
	)

	// A failed delivery raises an Integration alert.
	a.Dispatcher.OnFailure(a.Alerts.NotifyDeliveryFailure)

	a.processor = ingestion.NewProcessor(a.Orchestrator, a.JetStream, cfg)
	if a.dlq, err = dlqworker.NewWorker(cfg, log, a.JetStream, a.processor.GetRouter(), a.Exhausted); err != nil {
		a.closeStores(context.Background())
		return nil, fmt.Errorf("failed to initialize DLQ worker: %w", err)
	}

	a.api = api.NewServer(cfg.Server.Port, cfg.Workspace.ID, log, api.NewServices(
		a.Orchestrator, resolver, linker, a.Messaging, a.Workspace, a.Activation,
		a.Inventory, a.Forms, a.Alerts, a.Sweeper, a.Dashboard, a.Exhausted,
	))

	a.health = healthcheck.NewServer(strconv.Itoa(cfg.Server.HealthPort), version, log)
	a.health.RegisterCheck("postgres", a.Postgres.Ping)
	a.health.RegisterCheck("redis", a.Redis.Ping)
	a.health.RegisterCheck("nats", func(context.Context) error {
		if !a.JetStream.IsConnected() {
			return fmt.Errorf("nats connection is %s", a.JetStream.NatsConn().Status())
		}
		return nil
	})
	if cfg.Metrics.Enabled {
		a.health.RegisterMetricsHandler(promhttp.Handler())
	}

	return a, nil
}

// API returns the HTTP server.
func (a *App) API() *api.Server {
	return a.api
}

func (a *App) scope(ctx context.Context) context.Context {
	return tenant.WithWorkspaceID(ctx, a.cfg.Workspace.ID)
}

// Start declares the streams, then starts consuming, serving and sweeping.
func (a *App) Start(ctx context.Context) error {
	if err := a.processor.Setup(a.scope(ctx)); err != nil {
		return fmt.Errorf("failed to set up processor: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.health.Start()
	a.api.Start()

	if err := a.processor.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start processor: %w", err)
	}

	go func() {
		if err := a.dlq.Start(runCtx); err != nil {
			a.log.Error("DLQ worker stopped with error", zap.Error(err))
			a.dlqErr <- err
		}
	}()

	a.sweeperDone = make(chan struct{})
	utils.SafeGo(func() {
		defer close(a.sweeperDone)
		a.Sweeper.Run(runCtx)
	}, nil)

	a.log.Info("Endpoints available",
		zap.String("api", fmt.Sprintf("http://localhost:%d/api/v1", a.cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", a.cfg.Server.HealthPort)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", a.cfg.Server.HealthPort)),
	)
	return nil
}

// Failed delivers a DLQ worker failure; the process should shut down.
func (a *App) Failed() <-chan error {
	return a.dlqErr
}

// Shutdown stops inbound work first, drains the delivery pool, then closes
// the stores. It returns once everything stopped or ctx expired.
func (a *App) Shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	var wg sync.WaitGroup
	stop := func(name string, fn func()) {
		wg.Add(1)
		utils.SafeGo(func() {
			defer wg.Done()
			a.log.Info("[shutdown] Stopping " + name)
			start := time.Now()
			fn()
			a.log.Info("[shutdown] Stopped "+name, zap.Duration("duration", time.Since(start)))
		}, func(r interface{}, stack []byte) {
			a.log.Error("[shutdown] Panic while stopping "+name,
				zap.Any("panic", r),
				zap.ByteString("stack", stack),
			)
		})
	}

	stop("API server", func() {
		if err := a.api.Stop(ctx); err != nil {
			a.log.Error("[shutdown] Error stopping API server", zap.Error(err))
		}
	})
	stop("event processor", a.processor.Stop)
	stop("DLQ worker", a.dlq.Stop)
	stop("alert sweeper", func() {
		if a.sweeperDone == nil {
			return
		}
		select {
		case <-a.sweeperDone:
		case <-ctx.Done():
		}
	})
	stop("health check server", func() {
		if err := a.health.Stop(ctx); err != nil {
			a.log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		}
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		a.log.Info("[shutdown] Inbound components stopped")
	case <-ctx.Done():
		a.log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	// Pending deliveries still publish and write their status.
	a.Dispatcher.Stop(deliveryDrainTimeout)
	a.closeStores(ctx)
}

func (a *App) closeStores(ctx context.Context) {
	if a.Postgres != nil {
		if err := a.Postgres.Close(ctx); err != nil {
			a.log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Error("[shutdown] Failed to close Redis connection", zap.Error(err))
		}
	}
	if a.JetStream != nil {
		a.JetStream.Close()
	}
}
