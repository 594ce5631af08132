package api

import (
	"context"
	"time"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
)

// BookingService drives the booking workflow.
type BookingService interface {
	SubmitPublicBooking(ctx context.Context, req model.PublicBookingPayload) (*usecase.BookingOutcome, error)
	SubmitContactForm(ctx context.Context, req model.ContactFormPayload) (*usecase.ContactOutcome, error)
	GetBooking(ctx context.Context, bookingID string) (*usecase.BookingDetails, error)
	BookingsForDay(ctx context.Context, date model.Date) ([]model.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID string, status model.BookingStatus) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	RetryStep(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error)
	ExecuteStep(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error)
	CalendarMonth(ctx context.Context, year int, month time.Month) ([]usecase.CalendarCell, error)
	CheckSlot(ctx context.Context, date model.Date, slot string) (bool, error)
}

// ContactService resolves contacts and their conversations.
type ContactService interface {
	FindOrCreateContact(ctx context.Context, in model.ContactInput) (*model.Contact, error)
	GetContact(ctx context.Context, id string) (*model.Contact, error)
	FindOrCreateConversation(ctx context.Context, contactID, contactName string, overrides model.ConversationOverrides) (*model.Conversation, error)
}

// MessagingService is the inbox side of the messaging engine.
type MessagingService interface {
	AddMessageToConversation(ctx context.Context, conversationID string, in model.MessageInput) (*model.Message, error)
	MarkConversationRead(ctx context.Context, conversationID string) usecase.Result[*model.Conversation]
	ResumeAutomation(ctx context.Context, conversationID string) (*model.Conversation, error)
	RetryMessage(ctx context.Context, messageID string) (*model.Message, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
}

// WorkspaceService edits the workspace configuration and gates activation.
type WorkspaceService interface {
	UpsertService(ctx context.Context, svc model.Service) (*model.Service, error)
	SetAvailability(ctx context.Context, cfg model.AvailabilityConfig) (*model.AvailabilityConfig, error)
	SetIntegration(ctx context.Context, channel model.Channel, connected bool, provider string) (*model.Integration, error)
	GetActivationChecklist(ctx context.Context) (model.ActivationChecklist, error)
	CanActivateWorkspace(ctx context.Context) (bool, error)
	ActivateWorkspace(ctx context.Context) (model.ActivationResult, error)
}

// InventoryService tracks resource stock.
type InventoryService interface {
	DeductResourceUsage(ctx context.Context, serviceID string) ([]model.Resource, error)
	UpsertResource(ctx context.Context, r model.Resource) (*model.Resource, error)
	ListResources(ctx context.Context) ([]model.Resource, error)
}

// FormsService manages form templates and submissions.
type FormsService interface {
	UpsertFormTemplate(ctx context.Context, t model.FormTemplate) (*model.FormTemplate, error)
	CompleteFormSubmission(ctx context.Context, id string) (*model.FormSubmission, error)
}

// AlertService lists and acknowledges alerts.
type AlertService interface {
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
	MarkAlertRead(ctx context.Context, id string) usecase.Result[*model.Alert]
	DismissAlert(ctx context.Context, id string) error
	Sweep(ctx context.Context) (usecase.SweepReport, error)
}

// DashboardService serves the dashboard counters.
type DashboardService interface {
	Metrics(ctx context.Context) (*model.DashboardMetrics, error)
}

// ExhaustedService lists events the DLQ gave up on.
type ExhaustedService interface {
	ListExhausted(ctx context.Context, limit int) ([]model.ExhaustedEvent, error)
}

// Services bundles everything the HTTP handlers call.
type Services struct {
	Bookings  BookingService
	Contacts  ContactService
	Messaging MessagingService
	Workspace WorkspaceService
	Inventory InventoryService
	Forms     FormsService
	Alerts    AlertService
	Dashboard DashboardService
	Exhausted ExhaustedService
}
