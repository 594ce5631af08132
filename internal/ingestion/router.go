package ingestion

import (
	"context"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// EventHandler handles one orchestrator event. The returned error decides
// between ack, nak and the DLQ.
type EventHandler func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error

// Router maps versioned event types such as v1.bookings.public to handlers.
type Router struct {
	handlers map[model.EventType]EventHandler
	fallback EventHandler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[model.EventType]EventHandler)}
}

// Register binds handler to eventType, replacing any earlier binding.
func (r *Router) Register(eventType model.EventType, handler EventHandler) {
	r.handlers[eventType] = handler
}

func (r *Router) RegisterDefault(handler EventHandler) {
	r.fallback = handler
}

// Route scopes ctx to the event's workspace and request, then hands the event
// to the handler registered for its subject.
func (r *Router) Route(ctx context.Context, metadata *model.MessageMetadata, rawEvent []byte) error {
	if metadata.WorkspaceID != "" {
		ctx = tenant.WithWorkspaceID(ctx, metadata.WorkspaceID)
	}
	if metadata.RequestID != "" {
		ctx = tenant.WithRequestID(ctx, metadata.RequestID)
	}

	log := logger.FromContext(ctx).With(
		zap.String("subject", metadata.MessageSubject),
		zap.String("event_id", metadata.MessageID),
	)
	ctx = logger.WithLogger(ctx, log)

	eventType, known := model.MapToBaseEventType(metadata.MessageSubject)
	log.Info("Event received",
		zap.String("event_type", string(eventType)),
		zap.String("payload_size", utils.ByteCountSI(len(rawEvent))),
	)

	handler := r.handlerFor(eventType, known)
	if handler == nil {
		// Nothing can ever process it; acking keeps the consumer moving.
		log.Error("No handler for subject, dropping event")
		return nil
	}
	return handler(ctx, eventType, metadata, rawEvent)
}

func (r *Router) handlerFor(eventType model.EventType, known bool) EventHandler {
	if known {
		if h, ok := r.handlers[eventType]; ok {
			return h
		}
	}
	return r.fallback
}
