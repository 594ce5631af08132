package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/ingestion/handler"
	"gitlab.com/careops/api/careops-orchestrator/internal/jetstream"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// Processor wires the events consumer, the router and the event handler.
type Processor struct {
	jsClient       jetstream.ClientInterface
	consumer       ConsumerInterface
	eventRouter    RouterInterface
	eventHandler   handler.EventHandlerInterface
	outboundStream string
	outboundMaxAge int
}

// NewProcessor creates a processor for the configured workspace.
func NewProcessor(service handler.EventService, jsClient jetstream.ClientInterface, cfg *config.Config) *Processor {
	router := NewRouter()
	return &Processor{
		jsClient:       jsClient,
		consumer:       NewEventsConsumer(jsClient, router, cfg.NATS.Events, cfg.Workspace.ID, cfg.NATS.DLQSubject),
		eventRouter:    router,
		eventHandler:   handler.NewEventHandler(service),
		outboundStream: cfg.NATS.OutboundStream,
		outboundMaxAge: cfg.NATS.OutboundMaxAgeDays,
	}
}

// GetRouter returns the processor's event router. The DLQ worker replays
// dead-lettered events through it.
func (p *Processor) GetRouter() RouterInterface {
	return p.eventRouter
}

// Setup registers the handlers and declares the streams and the consumer.
func (p *Processor) Setup(ctx context.Context) error {
	for _, eventType := range model.ConsumedEventTypes {
		p.eventRouter.Register(eventType, p.eventHandler.HandleEvent)
	}
	p.eventRouter.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("type", string(eventType)),
			zap.String("subject", metadata.MessageSubject),
		)
		return nil
	})

	if p.outboundStream != "" {
		if err := SetupOutboundStream(ctx, p.jsClient, p.outboundStream, p.outboundMaxAge); err != nil {
			return fmt.Errorf("failed to setup outbound stream: %w", err)
		}
	}
	if err := p.consumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup events consumer: %w", err)
	}

	logger.Log.Info("Processor setup complete")
	return nil
}

// Start starts consuming.
func (p *Processor) Start() error {
	logger.Log.Info("Starting event processor...")
	if err := p.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start events consumer: %w", err)
	}
	logger.Log.Info("Event processor started")
	return nil
}

// Stop drains the consumer.
func (p *Processor) Stop() {
	logger.Log.Info("Stopping event processor...")
	p.consumer.Stop()
	logger.Log.Info("Event processor stopped")
}
