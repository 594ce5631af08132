package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/jetstream"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// publishTask is one event to generate.
type publishTask struct {
	EventType   model.EventType
	WorkspaceID string
}

// batchTask is handed to a pool worker.
type batchTask struct {
	Tasks     []publishTask
	Publisher jetstream.Publisher
	Options   generatorOptions
}

// generatorOptions shape the generated payloads.
type generatorOptions struct {
	ServiceID string
	Slots     []string
	// DuplicateEvery republishes every Nth booking with a reused submission id.
	DuplicateEvery int
}

const defaultBatchSize = 50

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	natsURL := flag.String("url", cfg.NATS.URL, "NATS server URL")
	eventsStr := flag.String("events", "v1.public.bookings,v1.public.contacts,v1.inbound.messages", "Comma-separated event types to publish")
	rate := flag.Int("rate", 20, "Target events per second (total)")
	duration := flag.Duration("duration", time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 4, "Number of concurrent workers")
	workspaceIDsStr := flag.String("workspace_ids", cfg.Workspace.ID, "Comma-separated list of workspace IDs")
	serviceID := flag.String("service-id", "", "Service ID used for generated bookings (required for v1.public.bookings)")
	slotsStr := flag.String("slots", "9:00 AM,10:00 AM,2:00 PM", "Comma-separated time slots used for generated bookings")
	duplicateEvery := flag.Int("duplicate-every", 0, "Republish every Nth booking with the same submission id (0 disables)")
	batchSize := flag.Int("batch-size", defaultBatchSize, "Number of events generated per worker batch")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "CareOps event generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Publishes public bookings, contact forms and inbound replies to NATS.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *batchSize <= 0 {
		*batchSize = defaultBatchSize
	}
	if *rate <= 0 {
		fmt.Println("rate must be positive")
		os.Exit(1)
	}

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	eventTypes, err := parseEventTypes(*eventsStr)
	if err != nil {
		logger.Log.Fatal("Invalid events flag", zap.Error(err))
	}
	for _, et := range eventTypes {
		if et == model.V1PublicBookings && *serviceID == "" {
			logger.Log.Fatal("-service-id is required when publishing v1.public.bookings")
		}
	}
	workspaceIDs := splitList(*workspaceIDsStr)
	if len(workspaceIDs) == 0 {
		logger.Log.Fatal("No workspace IDs provided")
	}

	observer.InitMetrics(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	var metricsWg sync.WaitGroup
	metricsWg.Add(1)
	go func() {
		defer metricsWg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	logger.Log.Info("Starting CareOps event generator",
		zap.String("nats_url", *natsURL),
		zap.String("events", *eventsStr),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("batch_size", *batchSize),
		zap.Strings("workspace_ids", workspaceIDs),
	)

	natsClient, err := jetstream.NewClient(*natsURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to NATS", zap.String("url", *natsURL), zap.Error(err))
	}
	defer natsClient.Close()

	gofakeit.Seed(time.Now().UnixNano())

	opts := generatorOptions{
		ServiceID:      *serviceID,
		Slots:          splitList(*slotsStr),
		DuplicateEvery: *duplicateEvery,
	}

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		batchWorkerFunc(data, &wg)
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runBatchLoadLoop(ctx, *rate, *duration, *batchSize, eventTypes, workspaceIDs, natsClient, opts, pool, &wg)
	}()

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-loopDone
	case <-loopDone:
		logger.Log.Info("Load generation duration finished")
	}

	wg.Wait()
	cancel()
	metricsWg.Wait()
	logger.Log.Info("Event generator shutdown complete")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseEventTypes(raw string) ([]model.EventType, error) {
	var out []model.EventType
	for _, s := range splitList(raw) {
		et := model.EventType(s)
		switch et {
		case model.V1PublicBookings, model.V1PublicContacts, model.V1InboundMessages:
			out = append(out, et)
		default:
			return nil, fmt.Errorf("unsupported event type %q", s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no event types given")
	}
	return out, nil
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Failed to start Prometheus metrics server", zap.Error(err))
		}
	}()
	return server
}

// runBatchLoadLoop submits batches to the pool at the target rate until the
// duration elapses or ctx is cancelled.
func runBatchLoadLoop(
	ctx context.Context,
	rate int,
	duration time.Duration,
	batchSize int,
	eventTypes []model.EventType,
	workspaces []string,
	publisher jetstream.Publisher,
	opts generatorOptions,
	pool *ants.PoolWithFunc,
	wg *sync.WaitGroup,
) {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	durationTimer := time.NewTimer(duration)
	defer durationTimer.Stop()

	counter := 0
	current := make([]publishTask, 0, batchSize)

	submit := func(batch []publishTask) {
		if len(batch) == 0 {
			return
		}
		wg.Add(len(batch))
		if err := pool.Invoke(batchTask{Tasks: batch, Publisher: publisher, Options: opts}); err != nil {
			logger.Log.Warn("Failed to invoke worker pool for batch", zap.Int("batch_task_count", len(batch)), zap.Error(err))
			wg.Add(-len(batch))
			for _, task := range batch {
				observer.IncLoadgenPublishErrors(string(task.EventType), task.WorkspaceID)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			submit(current)
			return
		case <-durationTimer.C:
			submit(current)
			return
		case <-ticker.C:
			task := publishTask{
				EventType:   eventTypes[counter%len(eventTypes)],
				WorkspaceID: workspaces[counter%len(workspaces)],
			}
			counter++
			observer.IncLoadgenMessagesAttempted(string(task.EventType), task.WorkspaceID)

			current = append(current, task)
			if len(current) >= batchSize {
				submit(current)
				current = make([]publishTask, 0, batchSize)
			}
		}
	}
}

// batchWorkerFunc publishes every event of a batch.
func batchWorkerFunc(data interface{}, wg *sync.WaitGroup) {
	batch := data.(batchTask)
	var lastSubmission string

	for i, task := range batch.Tasks {
		func() {
			defer wg.Done()

			payload, msgID := generate(task.EventType, batch.Options)
			if p, ok := payload.(*model.PublicBookingPayload); ok {
				if batch.Options.DuplicateEvery > 0 && lastSubmission != "" && (i+1)%batch.Options.DuplicateEvery == 0 {
					p.SubmissionID = lastSubmission
					msgID = ""
				}
				lastSubmission = p.SubmissionID
			}

			ctx := tenant.WithWorkspaceID(context.Background(), task.WorkspaceID)
			ctx = tenant.WithRequestID(ctx, uuid.NewString())
			subject := task.EventType.Subject(task.WorkspaceID)
			if err := batch.Publisher.PublishJSON(ctx, subject, msgID, payload); err != nil {
				logger.Log.Error("Failed to publish event", zap.String("subject", subject), zap.Error(err))
				observer.IncLoadgenPublishErrors(string(task.EventType), task.WorkspaceID)
				return
			}
			observer.IncLoadgenMessagesPublished(string(task.EventType), task.WorkspaceID)
		}()
	}
}

// generate builds a payload for the event type with its dedup msg id.
// Replayed bookings publish without a msg id so JetStream lets them through
// and the submission id path is exercised.
func generate(eventType model.EventType, opts generatorOptions) (interface{}, string) {
	switch eventType {
	case model.V1PublicBookings:
		override := &model.PublicBookingPayload{ServiceID: opts.ServiceID, Email: gofakeit.Email()}
		if len(opts.Slots) > 0 {
			override.Time = opts.Slots[gofakeit.Number(0, len(opts.Slots)-1)]
		}
		p := model.NewPublicBookingPayload(override)
		return p, p.SubmissionID
	case model.V1PublicContacts:
		return model.NewContactFormPayload(), uuid.NewString()
	default:
		return model.NewInboundMessagePayload(), uuid.NewString()
	}
}
