package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/jetstream"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // Message processed successfully, ACK it
	ActionNak                          // DLQ failure, NAK immediately
	ActionNakDelay                     // Retryable error, NAK with calculated delay
	ActionDLQ                          // Max retries reached or fatal error, publish to DLQ then ACK
)

// HeaderOriginalMsgID carries the id of the message that was dead-lettered.
const HeaderOriginalMsgID = "Original-Nats-Msg-Id"

const consumerType = "events"

// baseConsumer holds shared components and logic for NATS consumers
type baseConsumer struct {
	client       jetstream.ClientInterface
	router       RouterInterface
	workspaceID  string
	consumerType string
	ctx          context.Context
	cancel       context.CancelFunc
	maxDeliver   int
	dlqSubject   string
	nakBaseDelay time.Duration
	nakMaxDelay  time.Duration
}

func newBaseConsumer(client jetstream.ClientInterface, router RouterInterface, workspaceID, consumerType string, maxDeliver int, dlqSubject string, nakBaseDelay, nakMaxDelay time.Duration) *baseConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithLogger(ctx, logger.Log.With(zap.String("workspace_id", workspaceID)))
	ctx = tenant.WithWorkspaceID(ctx, workspaceID)

	return &baseConsumer{
		client:       client,
		router:       router,
		workspaceID:  workspaceID,
		consumerType: consumerType,
		ctx:          ctx,
		cancel:       cancel,
		maxDeliver:   maxDeliver,
		dlqSubject:   dlqSubject,
		nakBaseDelay: nakBaseDelay,
		nakMaxDelay:  nakMaxDelay,
	}
}

// modifySubjects turns subject stems into the wildcard stream subjects and
// the consumer filters of one workspace.
func modifySubjects(subjects []string, workspaceID string) (streamSubjects, consumerSubjects []string) {
	for _, subject := range subjects {
		streamSubjects = append(streamSubjects, fmt.Sprintf("%s.*", subject))
		consumerSubjects = append(consumerSubjects, fmt.Sprintf("%s.%s", subject, workspaceID))
	}
	return streamSubjects, consumerSubjects
}

// determineAckNakAction decides the fate of a message based on processing result and metadata.
// It returns the action to take (ACK, NAK_DELAY, DLQ) and the delay duration if applicable.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {
	if processingErr == nil {
		return ActionAck, 0
	}

	isRetryable := apperrors.IsRetryable(processingErr)
	numDelivered := metadata.NumDelivered

	if numDelivered >= uint64(maxDeliver) || !isRetryable {
		return ActionDLQ, 0
	}

	delay = nakBaseDelay
	if numDelivered > 1 {
		delay = nakBaseDelay * (1 << (numDelivered - 1))
	}
	if delay > nakMaxDelay {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// handleMessage is the NATS callback: it extracts metadata, processes the
// message and settles it.
func (bc *baseConsumer) handleMessage(msg *nats.Msg) {
	startTime := utils.Now()
	eventType, _ := model.MapToBaseEventType(msg.Subject)

	defer func() {
		observer.ObserveEventProcessingDuration(string(eventType), bc.workspaceID, bc.consumerType, time.Since(startTime))

		if r := recover(); r != nil {
			logger.FromContext(bc.ctx).Error("[panic] Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("subject", msg.Subject),
				zap.Duration("duration", time.Since(startTime)),
				zap.String("consumerType", bc.consumerType),
				zap.Stack("stack"),
			)
			observer.IncEventsFailed(string(eventType), bc.workspaceID, bc.consumerType)
			observer.IncEventProcessingAction(string(eventType), bc.workspaceID, bc.consumerType, "panic_nak", "panic")
			if nakErr := msg.Nak(); nakErr != nil {
				logger.FromContext(bc.ctx).Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	log := logger.FromContext(bc.ctx)
	if eventType == "" {
		log.Warn("Unknown event type", zap.String("subject", msg.Subject))
		if nakErr := msg.Term(); nakErr != nil {
			log.Error("Failed to terminate message for unknown event type", zap.Error(nakErr))
		}
		observer.IncEventProcessingAction("", bc.workspaceID, bc.consumerType, "term_unknown_type", "unknown_event_type")
		return
	}

	metadata, err := msg.Metadata()
	if err != nil {
		log.Error("Failed to read message metadata", zap.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to NAK message", zap.Error(nakErr))
		}
		observer.IncEventProcessingAction(string(eventType), bc.workspaceID, bc.consumerType, "nak_metadata_error", "metadata")
		return
	}

	action, delay := bc.process(msg.Subject, msg.Header, msg.Data, metadata)
	bc.settle(msg, eventType, action, delay)
}

// process routes one message and, on a terminal failure, dead-letters it.
// The returned action is what should be done with the original message.
func (bc *baseConsumer) process(subject string, header nats.Header, data []byte, metadata *nats.MsgMetadata) (AckNakAction, time.Duration) {
	startTime := utils.Now()
	eventType, _ := model.MapToBaseEventType(subject)

	msgID := header.Get(nats.MsgIdHdr)
	if msgID == "" {
		msgID = fmt.Sprintf("msg-%d", metadata.Sequence.Stream)
	}
	internal := &model.MessageMetadata{
		StreamSequence:   metadata.Sequence.Stream,
		ConsumerSequence: metadata.Sequence.Consumer,
		NumDelivered:     metadata.NumDelivered,
		NumPending:       metadata.NumPending,
		Timestamp:        metadata.Timestamp,
		Stream:           metadata.Stream,
		Consumer:         metadata.Consumer,
		Domain:           metadata.Domain,
		MessageID:        msgID,
		MessageSubject:   subject,
		WorkspaceID:      bc.workspaceID,
		RequestID:        header.Get(jetstream.HeaderRequestID),
	}
	if internal.RequestID == "" {
		internal.RequestID = msgID
	}
	if ws := header.Get(jetstream.HeaderWorkspaceID); ws != "" && ws != bc.workspaceID {
		logger.FromContext(bc.ctx).Warn("Workspace header does not match consumer workspace",
			zap.String("header_workspace", ws), zap.String("subject", subject))
	}

	observer.IncEventsReceived(string(eventType), bc.workspaceID, bc.consumerType)
	msgCtx := logger.WithLogger(bc.ctx, logger.FromContext(bc.ctx).With(
		zap.String("nats_message_id", msgID),
		zap.Uint64("stream_sequence", internal.StreamSequence),
		zap.Uint64("consumer_sequence", internal.ConsumerSequence),
		zap.String("subject", subject),
		zap.String("consumerType", bc.consumerType),
	))

	routingStart := utils.Now()
	processingErr := bc.router.Route(msgCtx, internal, data)
	observer.ObserveEventRoutingDuration(string(eventType), bc.workspaceID, bc.consumerType, time.Since(routingStart))

	log := logger.FromContext(msgCtx)
	action, delay := determineAckNakAction(processingErr, metadata, bc.maxDeliver, bc.nakBaseDelay, bc.nakMaxDelay)
	errorType := SanitizeErrorType(processingErr)

	switch action {
	case ActionAck:
		log.Info("Successfully processed message", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsProcessed(string(eventType), bc.workspaceID, bc.consumerType)
		observer.IncEventProcessingAction(string(eventType), bc.workspaceID, bc.consumerType, "ack_success", errorType)
		return ActionAck, 0

	case ActionNakDelay:
		log.Info("NAKing message with delay for redelivery (retryable error)",
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", bc.maxDeliver),
			zap.Duration("nak_delay", delay),
		)
		observer.IncEventsFailed(string(eventType), bc.workspaceID, bc.consumerType)
		observer.IncEventProcessingAction(string(eventType), bc.workspaceID, bc.consumerType, "nak_retry", errorType)
		return ActionNakDelay, delay
	}

	isRetryable := apperrors.IsRetryable(processingErr)
	logReason := "max delivery attempts reached"
	if !isRetryable {
		logReason = "fatal error encountered"
	}
	log.Warn("Sending message to DLQ: "+logReason,
		zap.Error(processingErr),
		zap.Uint64("num_delivered", metadata.NumDelivered),
		zap.Int("max_deliver", bc.maxDeliver),
		zap.Bool("is_retryable", isRetryable),
	)
	observer.IncEventsFailed(string(eventType), bc.workspaceID, bc.consumerType)

	errorTypeString := "fatal"
	if isRetryable {
		errorTypeString = "retryable"
	}
	dlqData, err := json.Marshal(model.DLQPayload{
		SourceSubject:   subject,
		Workspace:       bc.workspaceID,
		OriginalPayload: json.RawMessage(data),
		Error:           processingErr.Error(),
		ErrorType:       errorTypeString,
		RetryCount:      metadata.NumDelivered,
		MaxRetry:        bc.maxDeliver,
		Timestamp:       utils.Now(),
	})
	if err != nil {
		// OriginalPayload must be valid JSON; a garbled body cannot be dead-lettered as is.
		dlqData, err = json.Marshal(model.DLQPayload{
			SourceSubject: subject,
			Workspace:     bc.workspaceID,
			Error:         processingErr.Error(),
			ErrorType:     errorTypeString,
			RetryCount:    metadata.NumDelivered,
			MaxRetry:      bc.maxDeliver,
			Timestamp:     utils.Now(),
		})
	}
	if err != nil {
		log.Error("Failed to marshal DLQ payload", zap.Error(err))
		observer.IncEventProcessingAction(string(eventType), bc.workspaceID, bc.consumerType, "nak_dlq_marshal_fail", "dlq_marshal_fail")
		return ActionNak, 0
	}

	headers := map[string]string{
		HeaderOriginalMsgID:         msgID,
		jetstream.HeaderRequestID:   internal.RequestID,
		jetstream.HeaderWorkspaceID: bc.workspaceID,
	}
	dlqFullSubject := fmt.Sprintf("%s.%s", bc.dlqSubject, bc.workspaceID)
	if err := bc.client.Publish(dlqFullSubject, dlqData, headers); err != nil {
		log.Error("Failed to publish message to DLQ, NAKing original message",
			zap.Error(err),
			zap.String("dlq_subject", dlqFullSubject),
		)
		observer.IncEventProcessingAction(string(eventType), bc.workspaceID, bc.consumerType, "nak_dlq_publish_fail", "dlq_publish_fail")
		return ActionNak, 0
	}

	log.Info("Message published to DLQ", zap.String("dlq_subject", dlqFullSubject))
	observer.IncEventProcessingAction(string(eventType), bc.workspaceID, bc.consumerType, "dlq_published_ack_success", errorType)
	return ActionDLQ, 0
}

// settle acknowledges msg according to action. A dead-lettered message is acked.
func (bc *baseConsumer) settle(msg *nats.Msg, eventType model.EventType, action AckNakAction, delay time.Duration) {
	log := logger.FromContext(bc.ctx)
	var err error
	switch action {
	case ActionAck, ActionDLQ:
		err = msg.Ack()
	case ActionNakDelay:
		err = msg.NakWithDelay(delay)
	default:
		observer.IncEventsFailed(string(eventType), bc.workspaceID, bc.consumerType)
		err = msg.Nak()
	}
	if err != nil {
		log.Error("Failed to settle message", zap.String("subject", msg.Subject), zap.Int("action", int(action)), zap.Error(err))
	}
}

// EventsConsumer consumes the public, inbound and reminder subjects of one workspace.
type EventsConsumer struct {
	base *baseConsumer
	cfg  config.ConsumerNatsConfig
	sub  *nats.Subscription
}

// NewEventsConsumer creates the consumer. The durable name and queue group are
// suffixed with the workspace so that each workspace has its own cursor.
func NewEventsConsumer(client jetstream.ClientInterface, router RouterInterface, cfg config.ConsumerNatsConfig, workspaceID string, dlqSubject string) *EventsConsumer {
	cfg.Consumer = cfg.Consumer + "_" + workspaceID
	cfg.QueueGroup = cfg.QueueGroup + "_" + workspaceID
	base := newBaseConsumer(client, router, workspaceID, consumerType, cfg.MaxDeliver, dlqSubject, cfg.NakBaseDelay, cfg.NakMaxDelay)
	return &EventsConsumer{base: base, cfg: cfg}
}

// Setup configures the NATS stream and consumer
func (c *EventsConsumer) Setup() error {
	log := logger.FromContext(c.base.ctx)
	log.Info("Setting up EventsConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	streamSubjects, consumerSubjects := modifySubjects(c.cfg.SubjectList, c.base.workspaceID)

	streamCfg := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(c.cfg.MaxAge*24) * time.Hour,
	}
	if err := c.base.client.SetupStream(c.base.ctx, streamCfg); err != nil {
		log.Error("Failed to setup events stream", zap.Error(err), zap.String("stream", c.cfg.Stream))
		return fmt.Errorf("failed to setup events stream '%s': %w", c.cfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.cfg.Consumer,
		DeliverGroup:   c.cfg.QueueGroup,
		FilterSubjects: consumerSubjects,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverAllPolicy,
	}
	if err := c.base.client.SetupConsumer(c.base.ctx, c.cfg.Stream, consumerCfg); err != nil {
		log.Error("Failed to setup events consumer", zap.Error(err), zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))
		return fmt.Errorf("failed to setup events consumer '%s' for stream '%s': %w", c.cfg.Consumer, c.cfg.Stream, err)
	}

	log.Info("EventsConsumer setup complete")
	return nil
}

// Start subscribes to the durable push consumer.
func (c *EventsConsumer) Start() error {
	log := logger.FromContext(c.base.ctx)
	log.Info("Starting EventsConsumer subscription...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	sub, err := c.base.client.SubscribePush("", c.cfg.Consumer, c.cfg.QueueGroup, c.cfg.Stream, c.base.handleMessage)
	if err != nil {
		log.Error("Failed to subscribe events consumer", zap.Error(err),
			zap.String("stream", c.cfg.Stream),
			zap.String("consumer", c.cfg.Consumer),
			zap.String("group", c.cfg.QueueGroup),
		)
		return fmt.Errorf("failed to subscribe events consumer '%s': %w", c.cfg.Consumer, err)
	}
	c.sub = sub
	log.Info("EventsConsumer subscribed successfully")
	return nil
}

// Stop drains the subscription and cancels the consumer context.
func (c *EventsConsumer) Stop() {
	log := logger.FromContext(c.base.ctx)
	log.Info("Stopping EventsConsumer...", zap.String("consumer", c.cfg.Consumer))
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining events subscription", zap.Error(err))
		}
	}
	if c.base.cancel != nil {
		c.base.cancel()
	}
	log.Info("EventsConsumer stopped")
}

// SetupOutboundStream makes sure the subjects the service publishes to are
// captured by a stream, so that JetStream publishes are acknowledged.
func SetupOutboundStream(ctx context.Context, client jetstream.ClientInterface, name string, maxAgeDays int) error {
	stems := []model.EventType{model.V1DeliveryEmail, model.V1DeliverySMS, model.V1RemindersSchedule, model.V1RemindersCancel}
	subjects := make([]string, 0, len(stems))
	for _, stem := range stems {
		subjects = append(subjects, fmt.Sprintf("%s.%s.*", model.SubjectPrefix, stem))
	}
	return client.SetupStream(ctx, &nats.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
		Duplicates: 10 * time.Minute,
	})
}

// SanitizeErrorType maps an error to a general category string for metrics.
func SanitizeErrorType(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case apperrors.IsDatabaseError(err):
		return "database"
	case apperrors.IsValidationError(err), apperrors.IsBadRequestError(err):
		return "validation"
	case apperrors.IsNotFoundError(err):
		return "not_found"
	case apperrors.IsDuplicateError(err):
		return "duplicate"
	case apperrors.IsConflictError(err):
		return "conflict"
	case apperrors.IsTimeoutError(err):
		return "timeout"
	case apperrors.IsNATSError(err):
		return "nats"
	case strings.Contains(err.Error(), "panic"):
		return "panic"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	default:
		return "unknown"
	}
}
