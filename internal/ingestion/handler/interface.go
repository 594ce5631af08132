package handler

import (
	"context"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
)

// EventHandlerInterface defines the common interface for event handlers
type EventHandlerInterface interface {
	// HandleEvent processes an event
	HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error
}

// EventService is what the consumed subjects drive.
type EventService interface {
	SubmitPublicBooking(ctx context.Context, req model.PublicBookingPayload) (*usecase.BookingOutcome, error)
	SubmitContactForm(ctx context.Context, req model.ContactFormPayload) (*usecase.ContactOutcome, error)
	HandleInboundMessage(ctx context.Context, payload model.InboundMessagePayload) (*model.Message, error)
	HandleReminderFired(ctx context.Context, payload model.ReminderFiredPayload) (*model.Message, error)
}

var _ EventHandlerInterface = (*EventHandler)(nil)
