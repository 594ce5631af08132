package ingestion

import (
	"context"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

// RouterInterface dispatches decoded JetStream deliveries to use case handlers.
// The DLQ worker replays exhausted events through the same router.
type RouterInterface interface {
	Register(eventType model.EventType, handler EventHandler)
	// RegisterDefault catches subjects with no registered handler.
	RegisterDefault(handler EventHandler)
	Route(ctx context.Context, metadata *model.MessageMetadata, rawEvent []byte) error
}

// ConsumerInterface is the lifecycle of the durable events consumer.
type ConsumerInterface interface {
	// Setup declares the durable consumer on the events stream.
	Setup() error
	Start() error
	Stop()
}

var (
	_ RouterInterface   = (*Router)(nil)
	_ ConsumerInterface = (*EventsConsumer)(nil)
)
