package storage

import (
	"context"
	"time"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

// ContactRepo defines contact storage operations
type ContactRepo interface {
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	FindByEmail(ctx context.Context, email string) (*model.Contact, error)
	FindByPhone(ctx context.Context, phone string) (*model.Contact, error)
	Create(ctx context.Context, contact model.Contact) error
	FillIdentity(ctx context.Context, id string, in model.ContactInput) (*model.Contact, error)
}

// ConversationRepo defines conversation and message append operations
type ConversationRepo interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindWithMessages(ctx context.Context, id string) (*model.Conversation, error)
	FindLatestByContact(ctx context.Context, contactID string) (*model.Conversation, error)
	Create(ctx context.Context, conv model.Conversation) error
	Mutate(ctx context.Context, id string, fn ConversationMutation) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg model.Message) (*model.Conversation, *model.Message, error)
	ListAwaitingStaff(ctx context.Context) ([]model.Conversation, error)
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	FindByID(ctx context.Context, id string) (*model.Message, error)
	TransitionDelivery(ctx context.Context, id string, t DeliveryTransition) (*model.Message, error)
}

// BookingRepo defines booking storage operations
type BookingRepo interface {
	Create(ctx context.Context, booking model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindBySubmissionID(ctx context.Context, submissionID string) (*model.Booking, error)
	ListBetween(ctx context.Context, from, to model.Date) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, model.BookingStatus, error)
}

// AutomationStepRepo defines the per-step outcome records of a booking
type AutomationStepRepo interface {
	Record(ctx context.Context, step model.AutomationStep) error
	Claim(ctx context.Context, bookingID string, step model.AutomationStepName, staleBefore time.Time) (bool, error)
	Find(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error)
	List(ctx context.Context, bookingID string) ([]model.AutomationStep, error)
}

// ResourceRepo defines inventory storage operations
type ResourceRepo interface {
	Upsert(ctx context.Context, resource model.Resource) error
	FindByID(ctx context.Context, id string) (*model.Resource, error)
	List(ctx context.Context) ([]model.Resource, error)
	DeductForService(ctx context.Context, serviceID string) ([]model.Resource, error)
	DeductForBooking(ctx context.Context, bookingID, serviceID string) ([]model.Resource, bool, error)
}

// AlertRepo defines alert storage operations
type AlertRepo interface {
	Raise(ctx context.Context, candidate model.AlertCandidate, now time.Time) (*model.Alert, AlertOutcome, error)
	Resolve(ctx context.Context, dedupKey string, now time.Time) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Alert, error)
	List(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
	ListUnclearedByType(ctx context.Context, alertType model.AlertType) ([]model.Alert, error)
	MarkRead(ctx context.Context, id string) (*model.Alert, error)
	Dismiss(ctx context.Context, id string, now time.Time) error
}

// FormRepo defines form template and submission storage operations
type FormRepo interface {
	UpsertTemplate(ctx context.Context, template model.FormTemplate) error
	ListActiveTemplatesForService(ctx context.Context, serviceID string) ([]model.FormTemplate, error)
	UpsertSubmission(ctx context.Context, submission model.FormSubmission) (*model.FormSubmission, bool, error)
	ListByBooking(ctx context.Context, bookingID string) ([]model.FormSubmission, error)
	ListOutstandingSentBefore(ctx context.Context, cutoff time.Time) ([]model.FormSubmission, error)
	Complete(ctx context.Context, id string, now time.Time) (*model.FormSubmission, error)
}

// ReminderRepo defines reminder storage operations
type ReminderRepo interface {
	Upsert(ctx context.Context, reminder model.Reminder) (*model.Reminder, error)
	FindByID(ctx context.Context, id string) (*model.Reminder, error)
	ListByBooking(ctx context.Context, bookingID string) ([]model.Reminder, error)
	CancelForBooking(ctx context.Context, bookingID string) ([]model.Reminder, error)
	MarkFired(ctx context.Context, id string) (*model.Reminder, bool, error)
}

// WorkspaceRepo defines workspace configuration and activation operations
type WorkspaceRepo interface {
	Ensure(ctx context.Context, workspace model.Workspace) error
	Find(ctx context.Context) (*model.Workspace, error)
	LoadSnapshot(ctx context.Context) (*model.WorkspaceSnapshot, error)
	Activate(ctx context.Context, now time.Time) (model.ActivationResult, error)
	UpsertService(ctx context.Context, service model.Service) error
	SetAvailability(ctx context.Context, cfg model.AvailabilityConfig) error
	SetIntegration(ctx context.Context, integration model.Integration) error
}

// DashboardRepo computes the dashboard projection
type DashboardRepo interface {
	Counts(ctx context.Context, today model.Date, formsOverdueBefore time.Time) (*model.DashboardMetrics, error)
}

// ExhaustedEventRepo defines exhausted event storage operations
type ExhaustedEventRepo interface {
	Save(ctx context.Context, event model.ExhaustedEvent) error
	ListUnresolved(ctx context.Context, limit int) ([]model.ExhaustedEvent, error)
}

// Repositories bundles every repository the use cases need.
type Repositories struct {
	Contacts      ContactRepo
	Conversations ConversationRepo
	Messages      MessageRepo
	Bookings      BookingRepo
	Steps         AutomationStepRepo
	Resources     ResourceRepo
	Alerts        AlertRepo
	Forms         FormRepo
	Reminders     ReminderRepo
	Workspace     WorkspaceRepo
	Dashboard     DashboardRepo
	Exhausted     ExhaustedEventRepo
}
