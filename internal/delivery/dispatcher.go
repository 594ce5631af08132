// Package delivery hands outbound messages to channel providers over JetStream
// and records the outcome on the message.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/jetstream"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

const poolName = "delivery"

// Dispatcher accepts pending outbound messages. Dispatch never fails: every
// problem ends up as a failed message with a reason.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.Message, recipient string)
}

// FailureFunc is told about every delivery that ended failed.
type FailureFunc func(ctx context.Context, msg model.Message, reason string)

// Task is one message travelling through the pool.
type Task struct {
	Ctx       context.Context // detached from the request that queued it
	Message   model.Message
	Recipient string
}

// PoolDispatcher delivers on an ants worker pool.
type PoolDispatcher struct {
	pool        *ants.PoolWithFunc
	publisher   jetstream.Publisher
	messages    storage.MessageRepo
	workspaceID string
	onFailure   FailureFunc
	newBackOff  func() backoff.BackOff
	baseLogger  *zap.Logger
}

var _ Dispatcher = (*PoolDispatcher)(nil)

// Option customizes a PoolDispatcher.
type Option func(*PoolDispatcher)

// WithFailureFunc registers the hook run after a delivery failed.
func WithFailureFunc(fn FailureFunc) Option {
	return func(d *PoolDispatcher) { d.onFailure = fn }
}

// WithBackOff replaces the publish retry policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(d *PoolDispatcher) { d.newBackOff = fn }
}

// DefaultBackOff retries a publish three times within a few seconds.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// NewPoolDispatcher creates the worker pool.
func NewPoolDispatcher(
	cfg config.WorkerPoolConfig,
	workspaceID string,
	publisher jetstream.Publisher,
	messages storage.MessageRepo,
	baseLogger *zap.Logger,
	opts ...Option,
) (*PoolDispatcher, error) {
	d := &PoolDispatcher{
		publisher:   publisher,
		messages:    messages,
		workspaceID: workspaceID,
		newBackOff:  DefaultBackOff,
		baseLogger:  baseLogger.Named("delivery"),
	}
	for _, opt := range opts {
		opt(d)
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(Task)
		if !ok {
			d.baseLogger.Error("Invalid delivery task type", zap.Any("data", i))
			return
		}
		d.Deliver(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(p interface{}) {
			d.baseLogger.Error("Panic recovered in delivery worker", zap.Any("panic_error", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery pool: %w", err)
	}
	d.pool = pool

	d.baseLogger.Info("Delivery pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return d, nil
}

// OnFailure replaces the failure hook. Call it before the first Dispatch.
func (d *PoolDispatcher) OnFailure(fn FailureFunc) {
	d.onFailure = fn
}

// Dispatch queues msg. A full or closed pool fails the message right away.
func (d *PoolDispatcher) Dispatch(ctx context.Context, msg model.Message, recipient string) {
	task := Task{Ctx: tenant.Detach(ctx), Message: msg, Recipient: recipient}

	observer.IncPoolTasksSubmitted(poolName)
	err := d.pool.Invoke(task)
	observer.SetPoolStats(poolName, d.pool.Running(), d.pool.Waiting())
	if err == nil {
		return
	}

	reason := "delivery queue unavailable"
	if errors.Is(err, ants.ErrPoolOverload) {
		reason = "delivery queue full"
	}
	logger.FromContextOr(task.Ctx, d.baseLogger).Warn("Failed to queue delivery",
		zap.String("message_id", msg.ID),
		zap.Error(err),
	)
	d.fail(task, reason)
}

// Deliver publishes one message and records the outcome. It runs on a worker
// but is exported so callers without a pool can deliver inline.
func (d *PoolDispatcher) Deliver(task Task) {
	msg := task.Message
	log := logger.FromContextOr(task.Ctx, d.baseLogger).With(
		zap.String("message_id", msg.ID),
		zap.String("channel", string(msg.Channel)),
	)
	start := time.Now()

	eventType, ok := model.DeliveryEventType(msg.Channel)
	if !ok {
		d.fail(task, fmt.Sprintf("channel %s has no provider", msg.Channel))
		return
	}
	if task.Recipient == "" {
		d.fail(task, fmt.Sprintf("contact has no %s address", msg.Channel))
		return
	}

	req := model.DeliveryRequest{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		WorkspaceID:    d.workspaceID,
		Channel:        msg.Channel,
		Recipient:      task.Recipient,
		Content:        msg.Content,
		Attempt:        msg.Attempts,
	}
	subject := eventType.Subject(d.workspaceID)
	// A retried message gets a new id so JetStream does not drop it as a duplicate.
	msgID := fmt.Sprintf("%s:%d", msg.ID, msg.Attempts)

	publish := func() error {
		return d.publisher.PublishJSON(task.Ctx, subject, msgID, req)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("Delivery publish failed, retrying", zap.Error(err), zap.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(publish, backoff.WithContext(d.newBackOff(), task.Ctx), notify); err != nil {
		log.Error("Delivery publish exhausted retries", zap.Error(err))
		d.fail(task, fmt.Sprintf("publish failed: %v", err))
		return
	}

	_, err := d.messages.TransitionDelivery(task.Ctx, msg.ID, storage.DeliveryTransition{
		From: model.DeliveryPending,
		To:   model.DeliveryDelivered,
	})
	if err != nil {
		log.Error("Failed to mark message delivered", zap.Error(err))
		return
	}
	observer.IncMessageDelivery(d.workspaceID, string(msg.Channel), string(model.DeliveryDelivered))
	observer.ObserveDeliveryDuration(d.workspaceID, string(msg.Channel), time.Since(start))
	log.Debug("Message delivered", zap.String("subject", subject))
}

func (d *PoolDispatcher) fail(task Task, reason string) {
	log := logger.FromContextOr(task.Ctx, d.baseLogger).With(zap.String("message_id", task.Message.ID))
	observer.IncMessageDelivery(d.workspaceID, string(task.Message.Channel), string(model.DeliveryFailed))

	msg, err := d.messages.TransitionDelivery(task.Ctx, task.Message.ID, storage.DeliveryTransition{
		From:          model.DeliveryPending,
		To:            model.DeliveryFailed,
		FailureReason: reason,
	})
	if err != nil {
		log.Error("Failed to mark message failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	log.Warn("Message delivery failed", zap.String("reason", reason))
	if d.onFailure != nil {
		d.onFailure(task.Ctx, *msg, reason)
	}
}

// Stop waits for queued deliveries up to timeout, then releases the pool.
func (d *PoolDispatcher) Stop(timeout time.Duration) {
	if d.pool == nil {
		return
	}
	d.baseLogger.Info("Releasing delivery pool")
	if err := d.pool.ReleaseTimeout(timeout); err != nil {
		d.baseLogger.Warn("Delivery pool release timed out", zap.Error(err))
	}
}
