package storage

import (
	"context"
	"time"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

// NewRepositories adapts one PostgresRepo to every repository interface.
func NewRepositories(postgres *PostgresRepo) Repositories {
	return Repositories{
		Contacts:      NewContactRepoAdapter(postgres),
		Conversations: NewConversationRepoAdapter(postgres),
		Messages:      NewMessageRepoAdapter(postgres),
		Bookings:      NewBookingRepoAdapter(postgres),
		Steps:         NewAutomationStepRepoAdapter(postgres),
		Resources:     NewResourceRepoAdapter(postgres),
		Alerts:        NewAlertRepoAdapter(postgres),
		Forms:         NewFormRepoAdapter(postgres),
		Reminders:     NewReminderRepoAdapter(postgres),
		Workspace:     NewWorkspaceRepoAdapter(postgres),
		Dashboard:     NewDashboardRepoAdapter(postgres),
		Exhausted:     NewExhaustedEventRepoAdapter(postgres),
	}
}

// ContactRepoAdapter adapts the PostgresRepo to the ContactRepo interface
type ContactRepoAdapter struct {
	postgres *PostgresRepo
}

var _ ContactRepo = (*ContactRepoAdapter)(nil)

// NewContactRepoAdapter creates a new contact repository adapter
func NewContactRepoAdapter(postgres *PostgresRepo) ContactRepo {
	return &ContactRepoAdapter{postgres: postgres}
}

func (a *ContactRepoAdapter) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return a.postgres.FindContactByID(ctx, id)
}

func (a *ContactRepoAdapter) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	return a.postgres.FindContactByEmail(ctx, email)
}

func (a *ContactRepoAdapter) FindByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	return a.postgres.FindContactByPhone(ctx, phone)
}

func (a *ContactRepoAdapter) Create(ctx context.Context, contact model.Contact) error {
	return a.postgres.CreateContact(ctx, contact)
}

func (a *ContactRepoAdapter) FillIdentity(ctx context.Context, id string, in model.ContactInput) (*model.Contact, error) {
	return a.postgres.FillContactIdentity(ctx, id, in)
}

// ConversationRepoAdapter adapts the PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	postgres *PostgresRepo
}

var _ ConversationRepo = (*ConversationRepoAdapter)(nil)

// NewConversationRepoAdapter creates a new conversation repository adapter
func NewConversationRepoAdapter(postgres *PostgresRepo) ConversationRepo {
	return &ConversationRepoAdapter{postgres: postgres}
}

func (a *ConversationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationByID(ctx, id)
}

func (a *ConversationRepoAdapter) FindWithMessages(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationWithMessages(ctx, id)
}

func (a *ConversationRepoAdapter) FindLatestByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	return a.postgres.FindLatestConversationByContact(ctx, contactID)
}

func (a *ConversationRepoAdapter) Create(ctx context.Context, conv model.Conversation) error {
	return a.postgres.CreateConversation(ctx, conv)
}

func (a *ConversationRepoAdapter) Mutate(ctx context.Context, id string, fn ConversationMutation) (*model.Conversation, error) {
	return a.postgres.MutateConversation(ctx, id, fn)
}

func (a *ConversationRepoAdapter) AppendMessage(ctx context.Context, conversationID string, msg model.Message) (*model.Conversation, *model.Message, error) {
	return a.postgres.AppendMessage(ctx, conversationID, msg)
}

func (a *ConversationRepoAdapter) ListAwaitingStaff(ctx context.Context) ([]model.Conversation, error) {
	return a.postgres.ListConversationsAwaitingStaff(ctx)
}

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

var _ MessageRepo = (*MessageRepoAdapter)(nil)

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

func (a *MessageRepoAdapter) FindByID(ctx context.Context, id string) (*model.Message, error) {
	return a.postgres.FindMessageByID(ctx, id)
}

func (a *MessageRepoAdapter) TransitionDelivery(ctx context.Context, id string, t DeliveryTransition) (*model.Message, error) {
	return a.postgres.TransitionMessageDelivery(ctx, id, t)
}

// BookingRepoAdapter adapts the PostgresRepo to the BookingRepo interface
type BookingRepoAdapter struct {
	postgres *PostgresRepo
}

var _ BookingRepo = (*BookingRepoAdapter)(nil)

// NewBookingRepoAdapter creates a new booking repository adapter
func NewBookingRepoAdapter(postgres *PostgresRepo) BookingRepo {
	return &BookingRepoAdapter{postgres: postgres}
}

func (a *BookingRepoAdapter) Create(ctx context.Context, booking model.Booking) error {
	return a.postgres.CreateBooking(ctx, booking)
}

func (a *BookingRepoAdapter) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return a.postgres.FindBookingByID(ctx, id)
}

func (a *BookingRepoAdapter) FindBySubmissionID(ctx context.Context, submissionID string) (*model.Booking, error) {
	return a.postgres.FindBookingBySubmissionID(ctx, submissionID)
}

func (a *BookingRepoAdapter) ListBetween(ctx context.Context, from, to model.Date) ([]model.Booking, error) {
	return a.postgres.ListBookingsBetween(ctx, from, to)
}

func (a *BookingRepoAdapter) UpdateStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, model.BookingStatus, error) {
	return a.postgres.UpdateBookingStatus(ctx, id, status)
}

// AutomationStepRepoAdapter adapts the PostgresRepo to the AutomationStepRepo interface
type AutomationStepRepoAdapter struct {
	postgres *PostgresRepo
}

var _ AutomationStepRepo = (*AutomationStepRepoAdapter)(nil)

// NewAutomationStepRepoAdapter creates a new automation step repository adapter
func NewAutomationStepRepoAdapter(postgres *PostgresRepo) AutomationStepRepo {
	return &AutomationStepRepoAdapter{postgres: postgres}
}

func (a *AutomationStepRepoAdapter) Record(ctx context.Context, step model.AutomationStep) error {
	return a.postgres.RecordAutomationStep(ctx, step)
}

func (a *AutomationStepRepoAdapter) Claim(ctx context.Context, bookingID string, step model.AutomationStepName, staleBefore time.Time) (bool, error) {
	return a.postgres.ClaimAutomationStep(ctx, bookingID, step, staleBefore)
}

func (a *AutomationStepRepoAdapter) Find(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error) {
	return a.postgres.FindAutomationStep(ctx, bookingID, step)
}

func (a *AutomationStepRepoAdapter) List(ctx context.Context, bookingID string) ([]model.AutomationStep, error) {
	return a.postgres.ListAutomationSteps(ctx, bookingID)
}

// ResourceRepoAdapter adapts the PostgresRepo to the ResourceRepo interface
type ResourceRepoAdapter struct {
	postgres *PostgresRepo
}

var _ ResourceRepo = (*ResourceRepoAdapter)(nil)

// NewResourceRepoAdapter creates a new resource repository adapter
func NewResourceRepoAdapter(postgres *PostgresRepo) ResourceRepo {
	return &ResourceRepoAdapter{postgres: postgres}
}

func (a *ResourceRepoAdapter) Upsert(ctx context.Context, resource model.Resource) error {
	return a.postgres.UpsertResource(ctx, resource)
}

func (a *ResourceRepoAdapter) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	return a.postgres.FindResource(ctx, id)
}

func (a *ResourceRepoAdapter) List(ctx context.Context) ([]model.Resource, error) {
	return a.postgres.ListResources(ctx)
}

func (a *ResourceRepoAdapter) DeductForService(ctx context.Context, serviceID string) ([]model.Resource, error) {
	return a.postgres.DeductForService(ctx, serviceID)
}

func (a *ResourceRepoAdapter) DeductForBooking(ctx context.Context, bookingID, serviceID string) ([]model.Resource, bool, error) {
	return a.postgres.DeductForBooking(ctx, bookingID, serviceID)
}

// AlertRepoAdapter adapts the PostgresRepo to the AlertRepo interface
type AlertRepoAdapter struct {
	postgres *PostgresRepo
}

var _ AlertRepo = (*AlertRepoAdapter)(nil)

// NewAlertRepoAdapter creates a new alert repository adapter
func NewAlertRepoAdapter(postgres *PostgresRepo) AlertRepo {
	return &AlertRepoAdapter{postgres: postgres}
}

func (a *AlertRepoAdapter) Raise(ctx context.Context, candidate model.AlertCandidate, now time.Time) (*model.Alert, AlertOutcome, error) {
	return a.postgres.RaiseAlert(ctx, candidate, now)
}

func (a *AlertRepoAdapter) Resolve(ctx context.Context, dedupKey string, now time.Time) (bool, error) {
	return a.postgres.ResolveAlert(ctx, dedupKey, now)
}

func (a *AlertRepoAdapter) FindByID(ctx context.Context, id string) (*model.Alert, error) {
	return a.postgres.FindAlert(ctx, id)
}

func (a *AlertRepoAdapter) List(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	return a.postgres.ListAlerts(ctx, filter)
}

func (a *AlertRepoAdapter) ListUnclearedByType(ctx context.Context, alertType model.AlertType) ([]model.Alert, error) {
	return a.postgres.ListUnclearedAlertsByType(ctx, alertType)
}

func (a *AlertRepoAdapter) MarkRead(ctx context.Context, id string) (*model.Alert, error) {
	return a.postgres.MarkAlertRead(ctx, id)
}

func (a *AlertRepoAdapter) Dismiss(ctx context.Context, id string, now time.Time) error {
	return a.postgres.DismissAlert(ctx, id, now)
}

// FormRepoAdapter adapts the PostgresRepo to the FormRepo interface
type FormRepoAdapter struct {
	postgres *PostgresRepo
}

var _ FormRepo = (*FormRepoAdapter)(nil)

// NewFormRepoAdapter creates a new form repository adapter
func NewFormRepoAdapter(postgres *PostgresRepo) FormRepo {
	return &FormRepoAdapter{postgres: postgres}
}

func (a *FormRepoAdapter) UpsertTemplate(ctx context.Context, template model.FormTemplate) error {
	return a.postgres.UpsertFormTemplate(ctx, template)
}

func (a *FormRepoAdapter) ListActiveTemplatesForService(ctx context.Context, serviceID string) ([]model.FormTemplate, error) {
	return a.postgres.ListActiveTemplatesForService(ctx, serviceID)
}

func (a *FormRepoAdapter) UpsertSubmission(ctx context.Context, submission model.FormSubmission) (*model.FormSubmission, bool, error) {
	return a.postgres.UpsertFormSubmission(ctx, submission)
}

func (a *FormRepoAdapter) ListByBooking(ctx context.Context, bookingID string) ([]model.FormSubmission, error) {
	return a.postgres.ListFormsByBooking(ctx, bookingID)
}

func (a *FormRepoAdapter) ListOutstandingSentBefore(ctx context.Context, cutoff time.Time) ([]model.FormSubmission, error) {
	return a.postgres.ListOutstandingFormsSentBefore(ctx, cutoff)
}

func (a *FormRepoAdapter) Complete(ctx context.Context, id string, now time.Time) (*model.FormSubmission, error) {
	return a.postgres.CompleteFormSubmission(ctx, id, now)
}

// ReminderRepoAdapter adapts the PostgresRepo to the ReminderRepo interface
type ReminderRepoAdapter struct {
	postgres *PostgresRepo
}

var _ ReminderRepo = (*ReminderRepoAdapter)(nil)

// NewReminderRepoAdapter creates a new reminder repository adapter
func NewReminderRepoAdapter(postgres *PostgresRepo) ReminderRepo {
	return &ReminderRepoAdapter{postgres: postgres}
}

func (a *ReminderRepoAdapter) Upsert(ctx context.Context, reminder model.Reminder) (*model.Reminder, error) {
	return a.postgres.UpsertReminder(ctx, reminder)
}

func (a *ReminderRepoAdapter) FindByID(ctx context.Context, id string) (*model.Reminder, error) {
	return a.postgres.FindReminder(ctx, id)
}

func (a *ReminderRepoAdapter) ListByBooking(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	return a.postgres.ListRemindersByBooking(ctx, bookingID)
}

func (a *ReminderRepoAdapter) CancelForBooking(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	return a.postgres.CancelRemindersForBooking(ctx, bookingID)
}

func (a *ReminderRepoAdapter) MarkFired(ctx context.Context, id string) (*model.Reminder, bool, error) {
	return a.postgres.MarkReminderFired(ctx, id)
}

// WorkspaceRepoAdapter adapts the PostgresRepo to the WorkspaceRepo interface
type WorkspaceRepoAdapter struct {
	postgres *PostgresRepo
}

var _ WorkspaceRepo = (*WorkspaceRepoAdapter)(nil)

// NewWorkspaceRepoAdapter creates a new workspace repository adapter
func NewWorkspaceRepoAdapter(postgres *PostgresRepo) WorkspaceRepo {
	return &WorkspaceRepoAdapter{postgres: postgres}
}

func (a *WorkspaceRepoAdapter) Ensure(ctx context.Context, workspace model.Workspace) error {
	return a.postgres.EnsureWorkspace(ctx, workspace)
}

func (a *WorkspaceRepoAdapter) Find(ctx context.Context) (*model.Workspace, error) {
	return a.postgres.FindWorkspace(ctx)
}

func (a *WorkspaceRepoAdapter) LoadSnapshot(ctx context.Context) (*model.WorkspaceSnapshot, error) {
	return a.postgres.LoadSnapshot(ctx)
}

func (a *WorkspaceRepoAdapter) Activate(ctx context.Context, now time.Time) (model.ActivationResult, error) {
	return a.postgres.ActivateWorkspace(ctx, now)
}

func (a *WorkspaceRepoAdapter) UpsertService(ctx context.Context, service model.Service) error {
	return a.postgres.UpsertService(ctx, service)
}

func (a *WorkspaceRepoAdapter) SetAvailability(ctx context.Context, cfg model.AvailabilityConfig) error {
	return a.postgres.SetAvailability(ctx, cfg)
}

func (a *WorkspaceRepoAdapter) SetIntegration(ctx context.Context, integration model.Integration) error {
	return a.postgres.SetIntegration(ctx, integration)
}

// DashboardRepoAdapter adapts the PostgresRepo to the DashboardRepo interface
type DashboardRepoAdapter struct {
	postgres *PostgresRepo
}

var _ DashboardRepo = (*DashboardRepoAdapter)(nil)

// NewDashboardRepoAdapter creates a new dashboard repository adapter
func NewDashboardRepoAdapter(postgres *PostgresRepo) DashboardRepo {
	return &DashboardRepoAdapter{postgres: postgres}
}

func (a *DashboardRepoAdapter) Counts(ctx context.Context, today model.Date, formsOverdueBefore time.Time) (*model.DashboardMetrics, error) {
	return a.postgres.DashboardCounts(ctx, today, formsOverdueBefore)
}

// ExhaustedEventRepoAdapter adapts the PostgresRepo to the ExhaustedEventRepo interface
type ExhaustedEventRepoAdapter struct {
	postgres *PostgresRepo
}

var _ ExhaustedEventRepo = (*ExhaustedEventRepoAdapter)(nil)

// NewExhaustedEventRepoAdapter creates a new exhausted event repository adapter
func NewExhaustedEventRepoAdapter(postgres *PostgresRepo) ExhaustedEventRepo {
	return &ExhaustedEventRepoAdapter{postgres: postgres}
}

func (a *ExhaustedEventRepoAdapter) Save(ctx context.Context, event model.ExhaustedEvent) error {
	return a.postgres.SaveExhaustedEvent(ctx, event)
}

func (a *ExhaustedEventRepoAdapter) ListUnresolved(ctx context.Context, limit int) ([]model.ExhaustedEvent, error) {
	return a.postgres.ListUnresolvedExhaustedEvents(ctx, limit)
}
