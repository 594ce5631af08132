package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
)

// MockServices implements every api service interface so a test can wire one
// mock into all fields of api.Services.
type MockServices struct {
	mock.Mock
}

func (m *MockServices) SubmitPublicBooking(ctx context.Context, req model.PublicBookingPayload) (*usecase.BookingOutcome, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*usecase.BookingOutcome)
	return out, args.Error(1)
}

func (m *MockServices) SubmitContactForm(ctx context.Context, req model.ContactFormPayload) (*usecase.ContactOutcome, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*usecase.ContactOutcome)
	return out, args.Error(1)
}

func (m *MockServices) GetBooking(ctx context.Context, bookingID string) (*usecase.BookingDetails, error) {
	args := m.Called(ctx, bookingID)
	out, _ := args.Get(0).(*usecase.BookingDetails)
	return out, args.Error(1)
}

func (m *MockServices) BookingsForDay(ctx context.Context, date model.Date) ([]model.Booking, error) {
	args := m.Called(ctx, date)
	out, _ := args.Get(0).([]model.Booking)
	return out, args.Error(1)
}

func (m *MockServices) UpdateBookingStatus(ctx context.Context, bookingID string, status model.BookingStatus) (*model.Booking, error) {
	args := m.Called(ctx, bookingID, status)
	out, _ := args.Get(0).(*model.Booking)
	return out, args.Error(1)
}

func (m *MockServices) CancelBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	args := m.Called(ctx, bookingID)
	out, _ := args.Get(0).(*model.Booking)
	return out, args.Error(1)
}

func (m *MockServices) RetryStep(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error) {
	args := m.Called(ctx, bookingID, step)
	out, _ := args.Get(0).(*model.AutomationStep)
	return out, args.Error(1)
}

func (m *MockServices) ExecuteStep(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error) {
	args := m.Called(ctx, bookingID, step)
	out, _ := args.Get(0).(*model.AutomationStep)
	return out, args.Error(1)
}

func (m *MockServices) CalendarMonth(ctx context.Context, year int, month time.Month) ([]usecase.CalendarCell, error) {
	args := m.Called(ctx, year, month)
	out, _ := args.Get(0).([]usecase.CalendarCell)
	return out, args.Error(1)
}

func (m *MockServices) CheckSlot(ctx context.Context, date model.Date, slot string) (bool, error) {
	args := m.Called(ctx, date, slot)
	return args.Bool(0), args.Error(1)
}

func (m *MockServices) FindOrCreateContact(ctx context.Context, in model.ContactInput) (*model.Contact, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*model.Contact)
	return out, args.Error(1)
}

func (m *MockServices) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*model.Contact)
	return out, args.Error(1)
}

func (m *MockServices) FindOrCreateConversation(ctx context.Context, contactID, contactName string, overrides model.ConversationOverrides) (*model.Conversation, error) {
	args := m.Called(ctx, contactID, contactName, overrides)
	out, _ := args.Get(0).(*model.Conversation)
	return out, args.Error(1)
}

func (m *MockServices) AddMessageToConversation(ctx context.Context, conversationID string, in model.MessageInput) (*model.Message, error) {
	args := m.Called(ctx, conversationID, in)
	out, _ := args.Get(0).(*model.Message)
	return out, args.Error(1)
}

func (m *MockServices) MarkConversationRead(ctx context.Context, conversationID string) usecase.Result[*model.Conversation] {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(usecase.Result[*model.Conversation])
}

func (m *MockServices) ResumeAutomation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	args := m.Called(ctx, conversationID)
	out, _ := args.Get(0).(*model.Conversation)
	return out, args.Error(1)
}

func (m *MockServices) RetryMessage(ctx context.Context, messageID string) (*model.Message, error) {
	args := m.Called(ctx, messageID)
	out, _ := args.Get(0).(*model.Message)
	return out, args.Error(1)
}

func (m *MockServices) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*model.Conversation)
	return out, args.Error(1)
}

func (m *MockServices) UpsertService(ctx context.Context, svc model.Service) (*model.Service, error) {
	args := m.Called(ctx, svc)
	out, _ := args.Get(0).(*model.Service)
	return out, args.Error(1)
}

func (m *MockServices) SetAvailability(ctx context.Context, cfg model.AvailabilityConfig) (*model.AvailabilityConfig, error) {
	args := m.Called(ctx, cfg)
	out, _ := args.Get(0).(*model.AvailabilityConfig)
	return out, args.Error(1)
}

func (m *MockServices) SetIntegration(ctx context.Context, channel model.Channel, connected bool, provider string) (*model.Integration, error) {
	args := m.Called(ctx, channel, connected, provider)
	out, _ := args.Get(0).(*model.Integration)
	return out, args.Error(1)
}

func (m *MockServices) GetActivationChecklist(ctx context.Context) (model.ActivationChecklist, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.ActivationChecklist), args.Error(1)
}

func (m *MockServices) CanActivateWorkspace(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockServices) ActivateWorkspace(ctx context.Context) (model.ActivationResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.ActivationResult), args.Error(1)
}

func (m *MockServices) DeductResourceUsage(ctx context.Context, serviceID string) ([]model.Resource, error) {
	args := m.Called(ctx, serviceID)
	out, _ := args.Get(0).([]model.Resource)
	return out, args.Error(1)
}

func (m *MockServices) UpsertResource(ctx context.Context, r model.Resource) (*model.Resource, error) {
	args := m.Called(ctx, r)
	out, _ := args.Get(0).(*model.Resource)
	return out, args.Error(1)
}

func (m *MockServices) ListResources(ctx context.Context) ([]model.Resource, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]model.Resource)
	return out, args.Error(1)
}

func (m *MockServices) UpsertFormTemplate(ctx context.Context, t model.FormTemplate) (*model.FormTemplate, error) {
	args := m.Called(ctx, t)
	out, _ := args.Get(0).(*model.FormTemplate)
	return out, args.Error(1)
}

func (m *MockServices) CompleteFormSubmission(ctx context.Context, id string) (*model.FormSubmission, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*model.FormSubmission)
	return out, args.Error(1)
}

func (m *MockServices) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	args := m.Called(ctx, filter)
	out, _ := args.Get(0).([]model.Alert)
	return out, args.Error(1)
}

func (m *MockServices) MarkAlertRead(ctx context.Context, id string) usecase.Result[*model.Alert] {
	args := m.Called(ctx, id)
	return args.Get(0).(usecase.Result[*model.Alert])
}

func (m *MockServices) DismissAlert(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockServices) Sweep(ctx context.Context) (usecase.SweepReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(usecase.SweepReport), args.Error(1)
}

func (m *MockServices) Metrics(ctx context.Context) (*model.DashboardMetrics, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(*model.DashboardMetrics)
	return out, args.Error(1)
}

func (m *MockServices) ListExhausted(ctx context.Context, limit int) ([]model.ExhaustedEvent, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).([]model.ExhaustedEvent)
	return out, args.Error(1)
}
