package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// EventHandler turns consumed subjects into orchestrator calls and classifies
// their errors for the ack decision.
type EventHandler struct {
	service EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(service EventService) *EventHandler {
	return &EventHandler{service: service}
}

// HandleEvent processes one consumed event.
func (h *EventHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)
	log.Info("Processing event", zap.String("type", string(eventType)))

	switch eventType {
	case model.V1PublicBookings:
		return h.handleBooking(ctx, rawEvent)
	case model.V1PublicContacts:
		return h.handleContactForm(ctx, rawEvent)
	case model.V1InboundMessages:
		return h.handleInbound(ctx, rawEvent)
	case model.V1RemindersFired:
		return h.handleReminderFired(ctx, rawEvent)
	default:
		log.Error("Unsupported event type", zap.String("eventType", string(eventType)))
		return apperrors.NewFatal(fmt.Errorf("unsupported event type: %s", eventType), "unsupported event type")
	}
}

func (h *EventHandler) handleBooking(ctx context.Context, rawEvent []byte) error {
	var req model.PublicBookingPayload
	if err := json.Unmarshal(rawEvent, &req); err != nil {
		return apperrors.NewFatal(err, "failed to unmarshal booking payload")
	}

	outcome, err := h.service.SubmitPublicBooking(ctx, req)
	if err != nil {
		return apperrors.Classify(err, "submit booking")
	}
	logger.FromContext(ctx).Info("Booking processed",
		zap.String("booking_id", outcome.Booking.ID),
		zap.Bool("replayed", outcome.Replayed),
		zap.Any("steps", outcome.Steps),
	)
	return nil
}

func (h *EventHandler) handleContactForm(ctx context.Context, rawEvent []byte) error {
	var req model.ContactFormPayload
	if err := json.Unmarshal(rawEvent, &req); err != nil {
		return apperrors.NewFatal(err, "failed to unmarshal contact form payload")
	}

	outcome, err := h.service.SubmitContactForm(ctx, req)
	if err != nil {
		return apperrors.Classify(err, "submit contact form")
	}
	logger.FromContext(ctx).Info("Contact form processed",
		zap.String("contact_id", outcome.Contact.ID),
		zap.String("conversation_id", outcome.Conversation.ID),
	)
	return nil
}

func (h *EventHandler) handleInbound(ctx context.Context, rawEvent []byte) error {
	var payload model.InboundMessagePayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		return apperrors.NewFatal(err, "failed to unmarshal inbound message payload")
	}

	msg, err := h.service.HandleInboundMessage(ctx, payload)
	if err != nil {
		return apperrors.Classify(err, "append inbound message")
	}
	logger.FromContext(ctx).Info("Inbound message appended",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", msg.ConversationID),
	)
	return nil
}

func (h *EventHandler) handleReminderFired(ctx context.Context, rawEvent []byte) error {
	var payload model.ReminderFiredPayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		return apperrors.NewFatal(err, "failed to unmarshal reminder payload")
	}

	msg, err := h.service.HandleReminderFired(ctx, payload)
	if err != nil {
		return apperrors.Classify(err, "reminder %s", payload.ReminderID)
	}
	if msg == nil {
		logger.FromContext(ctx).Info("Reminder produced no message", zap.String("reminder_id", payload.ReminderID))
		return nil
	}
	logger.FromContext(ctx).Info("Reminder message sent", zap.String("reminder_id", payload.ReminderID), zap.String("message_id", msg.ID))
	return nil
}
