// Package mock holds testify mocks of the storage repositories.
package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
)

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

var _ storage.ContactRepo = (*ContactRepoMock)(nil)

func (m *ContactRepoMock) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) FindByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) Create(ctx context.Context, contact model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

func (m *ContactRepoMock) FillIdentity(ctx context.Context, id string, in model.ContactInput) (*model.Contact, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

var _ storage.ConversationRepo = (*ConversationRepoMock)(nil)

func (m *ConversationRepoMock) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) FindWithMessages(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) FindLatestByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) Create(ctx context.Context, conv model.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

func (m *ConversationRepoMock) Mutate(ctx context.Context, id string, fn storage.ConversationMutation) (*model.Conversation, error) {
	args := m.Called(ctx, id, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) AppendMessage(ctx context.Context, conversationID string, msg model.Message) (*model.Conversation, *model.Message, error) {
	args := m.Called(ctx, conversationID, msg)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.Conversation), args.Get(1).(*model.Message), args.Error(2)
}

func (m *ConversationRepoMock) ListAwaitingStaff(ctx context.Context) ([]model.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

var _ storage.MessageRepo = (*MessageRepoMock)(nil)

func (m *MessageRepoMock) FindByID(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepoMock) TransitionDelivery(ctx context.Context, id string, t storage.DeliveryTransition) (*model.Message, error) {
	args := m.Called(ctx, id, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// BookingRepoMock mocks the BookingRepo interface
type BookingRepoMock struct {
	mock.Mock
}

var _ storage.BookingRepo = (*BookingRepoMock)(nil)

func (m *BookingRepoMock) Create(ctx context.Context, booking model.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *BookingRepoMock) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *BookingRepoMock) FindBySubmissionID(ctx context.Context, submissionID string) (*model.Booking, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *BookingRepoMock) ListBetween(ctx context.Context, from, to model.Date) ([]model.Booking, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *BookingRepoMock) UpdateStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, model.BookingStatus, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*model.Booking), args.Get(1).(model.BookingStatus), args.Error(2)
}

// AutomationStepRepoMock mocks the AutomationStepRepo interface
type AutomationStepRepoMock struct {
	mock.Mock
}

var _ storage.AutomationStepRepo = (*AutomationStepRepoMock)(nil)

func (m *AutomationStepRepoMock) Record(ctx context.Context, step model.AutomationStep) error {
	args := m.Called(ctx, step)
	return args.Error(0)
}

func (m *AutomationStepRepoMock) Claim(ctx context.Context, bookingID string, step model.AutomationStepName, staleBefore time.Time) (bool, error) {
	args := m.Called(ctx, bookingID, step, staleBefore)
	return args.Bool(0), args.Error(1)
}

func (m *AutomationStepRepoMock) Find(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error) {
	args := m.Called(ctx, bookingID, step)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AutomationStep), args.Error(1)
}

func (m *AutomationStepRepoMock) List(ctx context.Context, bookingID string) ([]model.AutomationStep, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AutomationStep), args.Error(1)
}

// ResourceRepoMock mocks the ResourceRepo interface
type ResourceRepoMock struct {
	mock.Mock
}

var _ storage.ResourceRepo = (*ResourceRepoMock)(nil)

func (m *ResourceRepoMock) Upsert(ctx context.Context, resource model.Resource) error {
	args := m.Called(ctx, resource)
	return args.Error(0)
}

func (m *ResourceRepoMock) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Resource), args.Error(1)
}

func (m *ResourceRepoMock) List(ctx context.Context) ([]model.Resource, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Resource), args.Error(1)
}

func (m *ResourceRepoMock) DeductForService(ctx context.Context, serviceID string) ([]model.Resource, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Resource), args.Error(1)
}

func (m *ResourceRepoMock) DeductForBooking(ctx context.Context, bookingID, serviceID string) ([]model.Resource, bool, error) {
	args := m.Called(ctx, bookingID, serviceID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]model.Resource), args.Bool(1), args.Error(2)
}

// AlertRepoMock mocks the AlertRepo interface
type AlertRepoMock struct {
	mock.Mock
}

var _ storage.AlertRepo = (*AlertRepoMock)(nil)

func (m *AlertRepoMock) Raise(ctx context.Context, candidate model.AlertCandidate, now time.Time) (*model.Alert, storage.AlertOutcome, error) {
	args := m.Called(ctx, candidate, now)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*model.Alert), args.Get(1).(storage.AlertOutcome), args.Error(2)
}

func (m *AlertRepoMock) Resolve(ctx context.Context, dedupKey string, now time.Time) (bool, error) {
	args := m.Called(ctx, dedupKey, now)
	return args.Bool(0), args.Error(1)
}

func (m *AlertRepoMock) FindByID(ctx context.Context, id string) (*model.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Alert), args.Error(1)
}

func (m *AlertRepoMock) List(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Alert), args.Error(1)
}

func (m *AlertRepoMock) ListUnclearedByType(ctx context.Context, alertType model.AlertType) ([]model.Alert, error) {
	args := m.Called(ctx, alertType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Alert), args.Error(1)
}

func (m *AlertRepoMock) MarkRead(ctx context.Context, id string) (*model.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Alert), args.Error(1)
}

func (m *AlertRepoMock) Dismiss(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

// FormRepoMock mocks the FormRepo interface
type FormRepoMock struct {
	mock.Mock
}

var _ storage.FormRepo = (*FormRepoMock)(nil)

func (m *FormRepoMock) UpsertTemplate(ctx context.Context, template model.FormTemplate) error {
	args := m.Called(ctx, template)
	return args.Error(0)
}

func (m *FormRepoMock) ListActiveTemplatesForService(ctx context.Context, serviceID string) ([]model.FormTemplate, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FormTemplate), args.Error(1)
}

func (m *FormRepoMock) UpsertSubmission(ctx context.Context, submission model.FormSubmission) (*model.FormSubmission, bool, error) {
	args := m.Called(ctx, submission)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.FormSubmission), args.Bool(1), args.Error(2)
}

func (m *FormRepoMock) ListByBooking(ctx context.Context, bookingID string) ([]model.FormSubmission, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FormSubmission), args.Error(1)
}

func (m *FormRepoMock) ListOutstandingSentBefore(ctx context.Context, cutoff time.Time) ([]model.FormSubmission, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FormSubmission), args.Error(1)
}

func (m *FormRepoMock) Complete(ctx context.Context, id string, now time.Time) (*model.FormSubmission, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FormSubmission), args.Error(1)
}

// ReminderRepoMock mocks the ReminderRepo interface
type ReminderRepoMock struct {
	mock.Mock
}

var _ storage.ReminderRepo = (*ReminderRepoMock)(nil)

func (m *ReminderRepoMock) Upsert(ctx context.Context, reminder model.Reminder) (*model.Reminder, error) {
	args := m.Called(ctx, reminder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reminder), args.Error(1)
}

func (m *ReminderRepoMock) FindByID(ctx context.Context, id string) (*model.Reminder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reminder), args.Error(1)
}

func (m *ReminderRepoMock) ListByBooking(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Reminder), args.Error(1)
}

func (m *ReminderRepoMock) CancelForBooking(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Reminder), args.Error(1)
}

func (m *ReminderRepoMock) MarkFired(ctx context.Context, id string) (*model.Reminder, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Reminder), args.Bool(1), args.Error(2)
}

// WorkspaceRepoMock mocks the WorkspaceRepo interface
type WorkspaceRepoMock struct {
	mock.Mock
}

var _ storage.WorkspaceRepo = (*WorkspaceRepoMock)(nil)

func (m *WorkspaceRepoMock) Ensure(ctx context.Context, workspace model.Workspace) error {
	args := m.Called(ctx, workspace)
	return args.Error(0)
}

func (m *WorkspaceRepoMock) Find(ctx context.Context) (*model.Workspace, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Workspace), args.Error(1)
}

func (m *WorkspaceRepoMock) LoadSnapshot(ctx context.Context) (*model.WorkspaceSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkspaceSnapshot), args.Error(1)
}

func (m *WorkspaceRepoMock) Activate(ctx context.Context, now time.Time) (model.ActivationResult, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(model.ActivationResult), args.Error(1)
}

func (m *WorkspaceRepoMock) UpsertService(ctx context.Context, service model.Service) error {
	args := m.Called(ctx, service)
	return args.Error(0)
}

func (m *WorkspaceRepoMock) SetAvailability(ctx context.Context, cfg model.AvailabilityConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *WorkspaceRepoMock) SetIntegration(ctx context.Context, integration model.Integration) error {
	args := m.Called(ctx, integration)
	return args.Error(0)
}

// DashboardRepoMock mocks the DashboardRepo interface
type DashboardRepoMock struct {
	mock.Mock
}

var _ storage.DashboardRepo = (*DashboardRepoMock)(nil)

func (m *DashboardRepoMock) Counts(ctx context.Context, today model.Date, formsOverdueBefore time.Time) (*model.DashboardMetrics, error) {
	args := m.Called(ctx, today, formsOverdueBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DashboardMetrics), args.Error(1)
}

// ExhaustedEventRepoMock mocks the ExhaustedEventRepo interface
type ExhaustedEventRepoMock struct {
	mock.Mock
}

var _ storage.ExhaustedEventRepo = (*ExhaustedEventRepoMock)(nil)

func (m *ExhaustedEventRepoMock) Save(ctx context.Context, event model.ExhaustedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *ExhaustedEventRepoMock) ListUnresolved(ctx context.Context, limit int) ([]model.ExhaustedEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ExhaustedEvent), args.Error(1)
}

// Repositories bundles fresh mocks for every repository.
type Repositories struct {
	Contacts      *ContactRepoMock
	Conversations *ConversationRepoMock
	Messages      *MessageRepoMock
	Bookings      *BookingRepoMock
	Steps         *AutomationStepRepoMock
	Resources     *ResourceRepoMock
	Alerts        *AlertRepoMock
	Forms         *FormRepoMock
	Reminders     *ReminderRepoMock
	Workspace     *WorkspaceRepoMock
	Dashboard     *DashboardRepoMock
	Exhausted     *ExhaustedEventRepoMock
}

// NewRepositories creates a mock for every repository.
func NewRepositories() *Repositories {
	return &Repositories{
		Contacts:      new(ContactRepoMock),
		Conversations: new(ConversationRepoMock),
		Messages:      new(MessageRepoMock),
		Bookings:      new(BookingRepoMock),
		Steps:         new(AutomationStepRepoMock),
		Resources:     new(ResourceRepoMock),
		Alerts:        new(AlertRepoMock),
		Forms:         new(FormRepoMock),
		Reminders:     new(ReminderRepoMock),
		Workspace:     new(WorkspaceRepoMock),
		Dashboard:     new(DashboardRepoMock),
		Exhausted:     new(ExhaustedEventRepoMock),
	}
}

// Storage exposes the mocks as storage.Repositories.
func (r *Repositories) Storage() storage.Repositories {
	return storage.Repositories{
		Contacts:      r.Contacts,
		Conversations: r.Conversations,
		Messages:      r.Messages,
		Bookings:      r.Bookings,
		Steps:         r.Steps,
		Resources:     r.Resources,
		Alerts:        r.Alerts,
		Forms:         r.Forms,
		Reminders:     r.Reminders,
		Workspace:     r.Workspace,
		Dashboard:     r.Dashboard,
		Exhausted:     r.Exhausted,
	}
}
