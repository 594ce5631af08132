package dlqworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/ingestion"
	internal_js "gitlab.com/careops/api/careops-orchestrator/internal/jetstream"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

const (
	defaultMsgChanCap = 100
	fetchBatchSize    = 10
	fetchMaxWait      = 5 * time.Second
	taskTimeout       = time.Minute
	submitRetryDelay  = 5 * time.Second
	saveRetryDelay    = 30 * time.Second
)

// ExhaustedSaver persists DLQ payloads that ran out of retries.
type ExhaustedSaver interface {
	SaveExhaustedEvent(ctx context.Context, workspaceID string, payload model.DLQPayload) error
}

type dlqAction int

const (
	dlqAck   dlqAction = iota // replay succeeded
	dlqRetry                  // NAK with delay
	dlqTerm                   // stop redelivering
)

// Worker replays dead-lettered events through the router with backoff.
type Worker struct {
	cfg       *config.Config
	logger    *zap.Logger
	js        internal_js.ClientInterface
	pool      *ants.Pool
	router    ingestion.RouterInterface
	exhausted ExhaustedSaver
	msgCh     chan *nats.Msg
	stopWg    sync.WaitGroup
	cancel    context.CancelFunc
}

func durableName(dlqSubject string) string {
	return fmt.Sprintf("%s_worker_consumer", strings.ReplaceAll(dlqSubject, ".", "_"))
}

// NewWorker creates the DLQ worker and its JetStream stream and pull consumer.
func NewWorker(cfg *config.Config, log *zap.Logger, jsClient internal_js.ClientInterface, router ingestion.RouterInterface, exhausted ExhaustedSaver) (*Worker, error) {
	pool, err := ants.NewPool(cfg.NATS.DLQWorkers,
		ants.WithLogger(newAntsLoggerAdapter(log.Named("ants_pool"))),
		ants.WithPanicHandler(func(err interface{}) {
			log.Error("Worker panic caught", zap.Any("error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	setupCtx := context.Background()
	dlqSubject := cfg.NATS.DLQSubject + ".>"
	durable := durableName(cfg.NATS.DLQSubject)

	dlqStreamCfg := &nats.StreamConfig{
		Name:      cfg.NATS.DLQStream,
		Subjects:  []string{dlqSubject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(cfg.NATS.DLQMaxAgeDays) * 24 * time.Hour,
	}
	if err := jsClient.SetupStream(setupCtx, dlqStreamCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup DLQ stream '%s': %w", cfg.NATS.DLQStream, err)
	}
	log.Info("DLQ Stream setup complete", zap.String("stream", cfg.NATS.DLQStream))

	dlqConsumerCfg := &nats.ConsumerConfig{
		Durable:       durable,
		FilterSubject: dlqSubject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    cfg.NATS.DLQMaxDeliver,
		AckWait:       cfg.NATS.DLQAckWait,
		MaxAckPending: cfg.NATS.DLQMaxAckPending,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
	if err := jsClient.SetupConsumer(setupCtx, cfg.NATS.DLQStream, dlqConsumerCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup DLQ consumer '%s' for stream '%s': %w", durable, cfg.NATS.DLQStream, err)
	}
	log.Info("DLQ Consumer setup complete", zap.String("consumer", durable))

	worker := &Worker{
		cfg:       cfg,
		logger:    log.Named("dlq_worker"),
		js:        jsClient,
		pool:      pool,
		router:    router,
		exhausted: exhausted,
		msgCh:     make(chan *nats.Msg, defaultMsgChanCap),
	}
	worker.logger.Info("DLQ Worker initialized", zap.Int("pool_size", cfg.NATS.DLQWorkers))
	return worker, nil
}

// Start runs the fetch and dispatch loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	derivedCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	durable := durableName(w.cfg.NATS.DLQSubject)
	subSubject := w.cfg.NATS.DLQSubject + ".>"
	w.logger.Info("Attempting DLQ pull subscription",
		zap.String("stream", w.cfg.NATS.DLQStream),
		zap.String("subject", subSubject),
		zap.String("durable_name", durable),
	)

	sub, err := w.js.SubscribePull(w.cfg.NATS.DLQStream, subSubject, durable)
	if err != nil {
		w.logger.Error("Failed to create DLQ pull subscription", zap.Error(err))
		cancel()
		return fmt.Errorf("failed to create DLQ pull subscription: %w", err)
	}

	w.stopWg.Add(2)
	go w.fetchMessages(derivedCtx, sub)
	go w.dispatchMessages(derivedCtx)

	w.logger.Info("DLQ worker started successfully")
	<-derivedCtx.Done()
	w.logger.Info("DLQ worker context cancelled, initiating shutdown...")
	return nil
}

// Stop shuts the loops down and releases the pool.
func (w *Worker) Stop() {
	w.logger.Info("Stopping DLQ worker...")
	if w.cancel != nil {
		w.cancel()
	}
	w.stopWg.Wait()
	close(w.msgCh)
	w.pool.Release()
	w.logger.Info("DLQ worker stopped successfully")
}

func (w *Worker) fetchMessages(ctx context.Context, sub *nats.Subscription) {
	defer w.stopWg.Done()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Fetcher loop stopping due to context cancellation")
			return
		default:
		}

		observer.IncDlqFetchRequest()
		msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrConnectionClosed) {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			observer.IncDlqFetchError()
			w.logger.Error("Fetcher loop error retrieving messages", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			select {
			case w.msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) dispatchMessages(ctx context.Context) {
	defer w.stopWg.Done()

	for {
		observer.SetDlqWorkersActive(w.pool.Running())

		select {
		case <-ctx.Done():
			w.logger.Info("Dispatcher loop stopping due to context cancellation")
			return
		case msg, ok := <-w.msgCh:
			if !ok {
				return
			}
			workspaceID := payloadWorkspace(msg.Data)
			err := w.pool.Submit(func() {
				taskCtx, taskCancel := context.WithTimeout(context.Background(), taskTimeout)
				defer taskCancel()
				w.handleWithRetry(taskCtx, msg)
			})
			if err != nil {
				w.logger.Error("Failed to submit task to ants pool", zap.Error(err))
				if nakErr := msg.NakWithDelay(submitRetryDelay); nakErr != nil {
					w.logger.Error("Failed to NAK message after pool submission error", zap.Error(nakErr))
					observer.IncDlqAckFailure(workspaceID)
				}
				continue
			}
			observer.IncDlqTasksSubmitted(workspaceID)
		}
	}
}

func payloadWorkspace(data []byte) string {
	var p struct {
		Workspace string `json:"workspace"`
	}
	_ = json.Unmarshal(data, &p)
	return p.Workspace
}

func (w *Worker) handleWithRetry(ctx context.Context, msg *nats.Msg) {
	meta, err := msg.Metadata()
	if err != nil {
		w.logger.Error("Failed to get message metadata", zap.Error(err))
		if termErr := msg.Term(); termErr != nil {
			w.logger.Error("Failed to terminate message after metadata error", zap.Error(termErr))
		}
		observer.IncDlqAckFailure("")
		return
	}

	action, delay, workspaceID := w.process(ctx, msg.Header, msg.Data, meta)

	switch action {
	case dlqAck:
		err = msg.Ack()
	case dlqRetry:
		err = msg.NakWithDelay(delay)
	default:
		err = msg.Term()
	}
	if err != nil {
		w.logger.Error("Failed to settle DLQ message", zap.Error(err), zap.Int("action", int(action)))
		observer.IncDlqAckFailure(workspaceID)
	}
}

// process replays one DLQ payload and decides what to do with the DLQ message.
// Retryable failures back off until DLQMaxRetries deliveries; fatal failures and
// exhausted retries are persisted for inspection and terminated.
func (w *Worker) process(ctx context.Context, header nats.Header, data []byte, meta *nats.MsgMetadata) (dlqAction, time.Duration, string) {
	start := time.Now()

	var payload model.DLQPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		w.logger.Error("Failed to unmarshal DLQ payload",
			zap.Error(err),
			zap.Uint64("sequence", meta.Sequence.Stream),
			zap.ByteString("data", data),
		)
		observer.IncDlqAckFailure("")
		return dlqTerm, 0, ""
	}
	defer func() {
		observer.ObserveDlqProcessingDuration(payload.Workspace, time.Since(start))
	}()

	requestID := header.Get(internal_js.HeaderRequestID)
	if requestID == "" {
		requestID = header.Get(ingestion.HeaderOriginalMsgID)
	}
	log := w.logger.With(
		zap.String("original_subject", payload.SourceSubject),
		zap.String("dlq_workspace", payload.Workspace),
		zap.String("request_id", requestID),
		zap.Uint64("num_delivered", meta.NumDelivered),
	)
	log.Info("Processing DLQ message",
		zap.Uint64("stream_sequence", meta.Sequence.Stream),
		zap.Uint64("payload_retry_count", payload.RetryCount),
	)

	routerMetadata := &model.MessageMetadata{
		MessageSubject:   payload.SourceSubject,
		MessageID:        header.Get(ingestion.HeaderOriginalMsgID),
		WorkspaceID:      payload.Workspace,
		RequestID:        requestID,
		StreamSequence:   meta.Sequence.Stream,
		ConsumerSequence: meta.Sequence.Consumer,
		Timestamp:        meta.Timestamp,
		NumDelivered:     meta.NumDelivered,
		Stream:           meta.Stream,
		Consumer:         meta.Consumer,
	}
	handlerCtx := tenant.WithWorkspaceID(ctx, payload.Workspace)
	if requestID != "" {
		handlerCtx = tenant.WithRequestID(handlerCtx, requestID)
	}
	handlerCtx = logger.WithLogger(handlerCtx, log)

	processingErr := w.router.Route(handlerCtx, routerMetadata, payload.OriginalPayload)
	if processingErr == nil {
		log.Info("Successfully processed event from DLQ")
		observer.IncDlqAckSuccess(payload.Workspace)
		return dlqAck, 0, payload.Workspace
	}

	log.Warn("Failed to process event from DLQ", zap.Error(processingErr))

	exhausted := int(meta.NumDelivered) >= w.cfg.NATS.DLQMaxRetries
	if apperrors.IsRetryable(processingErr) && !exhausted {
		delay := calculateBackoffDelay(int(meta.NumDelivered), w.cfg.NATS.DLQBaseDelayMinutes, w.cfg.NATS.DLQMaxDelayMinutes)
		log.Info("Retrying DLQ message with backoff", zap.Duration("delay", delay))
		observer.IncDlqTaskRetry(payload.Workspace)
		return dlqRetry, delay, payload.Workspace
	}

	payload.Error = processingErr.Error()
	payload.ErrorType = SanitizeReason(processingErr, exhausted)
	payload.RetryCount += meta.NumDelivered
	if err := w.exhausted.SaveExhaustedEvent(handlerCtx, payload.Workspace, payload); err != nil {
		log.Error("Failed to save exhausted event, retrying later", zap.Error(err))
		return dlqRetry, saveRetryDelay, payload.Workspace
	}

	log.Warn("Event persisted to exhausted store", zap.String("reason", payload.ErrorType))
	observer.IncDlqTasksDropped(payload.Workspace)
	return dlqTerm, 0, payload.Workspace
}

// SanitizeReason labels why a DLQ message stopped being replayed.
func SanitizeReason(err error, exhausted bool) string {
	if exhausted {
		return "max_retries"
	}
	if apperrors.IsRetryable(err) {
		return "retryable"
	}
	return "fatal"
}

// calculateBackoffDelay doubles the base delay per attempt up to the max.
func calculateBackoffDelay(retryCount int, baseDelayMinutes, maxDelayMinutes int) time.Duration {
	baseDelay := time.Duration(baseDelayMinutes) * time.Minute
	maxDelay := time.Duration(maxDelayMinutes) * time.Minute

	b := &backoff.ExponentialBackOff{
		InitialInterval:     baseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < retryCount; i++ {
		delay = b.NextBackOff()
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

type antsLoggerAdapter struct {
	logger *zap.Logger
}

func newAntsLoggerAdapter(logger *zap.Logger) *antsLoggerAdapter {
	return &antsLoggerAdapter{logger: logger}
}

func (a *antsLoggerAdapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
