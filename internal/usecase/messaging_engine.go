package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/delivery"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/internal/validator"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// ErrAutomationPaused marks an automated message skipped because staff took over the thread.
var ErrAutomationPaused = errors.New("automation paused on conversation")

// MessagingEngine appends messages to threads and hands outbound ones to delivery.
type MessagingEngine struct {
	conversations storage.ConversationRepo
	messages      storage.MessageRepo
	contacts      storage.ContactRepo
	bookings      storage.BookingRepo
	dispatcher    delivery.Dispatcher
	state         *WorkspaceState
	dashboard     *DashboardService
	now           Clock
}

// NewMessagingEngine creates the engine.
func NewMessagingEngine(
	repos storage.Repositories,
	dispatcher delivery.Dispatcher,
	state *WorkspaceState,
	dashboard *DashboardService,
	now Clock,
) *MessagingEngine {
	return &MessagingEngine{
		conversations: repos.Conversations,
		messages:      repos.Messages,
		contacts:      repos.Contacts,
		bookings:      repos.Bookings,
		dispatcher:    dispatcher,
		state:         state,
		dashboard:     dashboard,
		now:           now,
	}
}

// AddMessageToConversation appends in under the conversation row lock. A staff
// message pauses active automation in the same transaction. Messages on email
// or sms leave pending and are handed to the dispatcher.
func (e *MessagingEngine) AddMessageToConversation(ctx context.Context, conversationID string, in model.MessageInput) (*model.Message, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	msg := model.Message{
		ID:             model.NewMessageID(),
		WorkspaceID:    workspaceID,
		Sender:         in.Sender,
		Content:        in.Content,
		Channel:        in.Channel,
		Type:           in.Type,
		DeliveryStatus: in.InitialDeliveryStatus(),
		Timestamp:      e.now(),
	}
	if msg.DeliveryStatus == model.DeliveryPending {
		msg.Attempts = 1
	}

	conv, saved, err := e.conversations.AppendMessage(ctx, conversationID, msg)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(zap.String("conversation_id", conv.ID), zap.String("message_id", saved.ID))
	if saved.Sender == model.SenderStaff && conv.AutomationStatus == model.AutomationPaused {
		log.Debug("Staff reply, automation paused")
	}
	e.dashboard.Invalidate(ctx)

	if saved.DeliveryStatus == model.DeliveryPending {
		e.dispatch(ctx, conv, *saved)
	}
	return saved, nil
}

// SendBookingConfirmation posts the confirmation on the preferred channel.
func (e *MessagingEngine) SendBookingConfirmation(ctx context.Context, booking *model.Booking, conv *model.Conversation) (*model.Message, error) {
	content := fmt.Sprintf("Hi %s, your booking for %s is confirmed for %s at %s.",
		booking.CustomerName, booking.Service, booking.Date, booking.Time)
	return e.sendAutomated(ctx, conv, model.MessageBookingConfirmation, content)
}

// SendWelcome greets a contact who used the contact form.
func (e *MessagingEngine) SendWelcome(ctx context.Context, contact *model.Contact, conv *model.Conversation) (*model.Message, error) {
	content := fmt.Sprintf("Hi %s! Thanks for reaching out. We've received your message and will get back to you soon.", contact.Name)
	return e.sendAutomated(ctx, conv, model.MessageWelcome, content)
}

// SendFormReminder tells the customer how many forms are waiting.
func (e *MessagingEngine) SendFormReminder(ctx context.Context, conv *model.Conversation, n int) (*model.Message, error) {
	content := fmt.Sprintf("We've sent you %d form(s) to complete before your appointment.", n)
	return e.sendAutomated(ctx, conv, model.MessageFormReminder, content)
}

// SendReminderMessage posts the appointment reminder for a fired reminder. It
// returns a nil message when the reminder, booking or thread no longer wants it.
func (e *MessagingEngine) SendReminderMessage(ctx context.Context, reminder *model.Reminder) (*model.Message, error) {
	log := logger.FromContext(ctx).With(zap.String("reminder_id", reminder.ID), zap.String("booking_id", reminder.BookingID))
	if reminder.Status == model.ReminderCancelled {
		log.Info("Reminder cancelled, not sending")
		return nil, nil
	}

	booking, err := e.bookings.FindByID(ctx, reminder.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == model.BookingCancelled {
		log.Info("Booking cancelled, not sending reminder")
		return nil, nil
	}

	conv, err := e.conversations.FindLatestByContact(ctx, booking.ContactID)
	if err != nil {
		return nil, err
	}

	content := fmt.Sprintf("Hi %s, reminder: your booking for %s is on %s at %s.",
		booking.CustomerName, booking.Service, booking.Date, booking.Time)
	msg, err := e.sendAutomated(ctx, conv, model.MessageAutomated, content)
	if errors.Is(err, ErrAutomationPaused) {
		log.Info("Automation paused, not sending reminder")
		return nil, nil
	}
	return msg, err
}

// ResumeAutomation is the only way out of Paused.
func (e *MessagingEngine) ResumeAutomation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return e.conversations.Mutate(ctx, conversationID, func(c *model.Conversation) (bool, error) {
		switch c.AutomationStatus {
		case model.AutomationPaused:
			c.AutomationStatus = model.AutomationActive
			return true, nil
		case model.AutomationActive:
			return false, nil
		default:
			return false, fmt.Errorf("%w: automation was never enabled on conversation %s", apperrors.ErrValidation, c.ID)
		}
	})
}

// RetryMessage moves a failed message back to pending and dispatches it again.
func (e *MessagingEngine) RetryMessage(ctx context.Context, messageID string) (*model.Message, error) {
	msg, err := e.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.CanRetry() {
		return nil, fmt.Errorf("%w: message %s is %s, only failed messages can be retried", apperrors.ErrValidation, msg.ID, msg.DeliveryStatus)
	}

	msg, err = e.messages.TransitionDelivery(ctx, messageID, storage.DeliveryTransition{
		From:         model.DeliveryFailed,
		To:           model.DeliveryPending,
		CountAttempt: true,
	})
	if errors.Is(err, apperrors.ErrConflict) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}
	if err != nil {
		return nil, err
	}

	conv, err := e.conversations.FindByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, conv, *msg)
	return msg, nil
}

// MarkConversationRead zeroes the unread counter. The cached unread
// projection moves first and is restored if the write fails.
func (e *MessagingEngine) MarkConversationRead(ctx context.Context, conversationID string) Result[*model.Conversation] {
	conv, err := e.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return Fail[*model.Conversation](err)
	}
	if conv.UnreadCount == 0 {
		return Ok(conv)
	}

	staged := e.dashboard.adjust(ctx, func(m *model.DashboardMetrics) { m.DecUnreadConversations() })
	conv, err = e.conversations.Mutate(ctx, conversationID, func(c *model.Conversation) (bool, error) {
		if c.UnreadCount == 0 {
			return false, nil
		}
		c.UnreadCount = 0
		return true, nil
	})
	if err != nil {
		staged.rollback(ctx)
		return Fail[*model.Conversation](err)
	}
	return Ok(conv)
}

// GetConversation returns a thread with its messages in seq order.
func (e *MessagingEngine) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return e.conversations.FindWithMessages(ctx, id)
}

// sendAutomated appends a system message on the preferred channel unless
// staff paused automation on the thread.
func (e *MessagingEngine) sendAutomated(ctx context.Context, conv *model.Conversation, msgType model.MessageType, content string) (*model.Message, error) {
	if !conv.AutomationAllowed() {
		return nil, fmt.Errorf("%w: %s", ErrAutomationPaused, conv.ID)
	}
	contact, err := e.contacts.FindByID(ctx, conv.ContactID)
	if err != nil {
		return nil, err
	}
	snap, err := e.state.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	return e.AddMessageToConversation(ctx, conv.ID, model.MessageInput{
		Sender:  model.SenderSystem,
		Content: content,
		Channel: PreferredChannel(snap, contact),
		Type:    msgType,
	})
}

// dispatch resolves the recipient and hands the message over. Lookup errors
// leave the recipient empty so the dispatcher records the failure.
func (e *MessagingEngine) dispatch(ctx context.Context, conv *model.Conversation, msg model.Message) {
	recipient := ""
	contact, err := e.contacts.FindByID(ctx, conv.ContactID)
	if err != nil {
		logger.FromContext(ctx).Warn("Recipient lookup failed", zap.String("contact_id", conv.ContactID), zap.Error(err))
	} else {
		recipient = contact.PreferredRecipient(msg.Channel)
	}
	e.dispatcher.Dispatch(ctx, msg, recipient)
}

// PreferredChannel picks email, then sms, among connected channels the
// contact can be reached on, falling back to the in-app system channel.
func PreferredChannel(snap *model.WorkspaceSnapshot, contact *model.Contact) model.Channel {
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelSMS} {
		if snap.ChannelConnected(ch) && contact.PreferredRecipient(ch) != "" {
			return ch
		}
	}
	return model.ChannelSystem
}
