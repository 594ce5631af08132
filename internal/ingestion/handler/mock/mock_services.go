package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
)

// MockEventService is a mock for the handler.EventService interface
type MockEventService struct {
	mock.Mock
}

// SubmitPublicBooking mocks the SubmitPublicBooking method
func (m *MockEventService) SubmitPublicBooking(ctx context.Context, req model.PublicBookingPayload) (*usecase.BookingOutcome, error) {
	args := m.Called(ctx, req)
	outcome, _ := args.Get(0).(*usecase.BookingOutcome)
	return outcome, args.Error(1)
}

// SubmitContactForm mocks the SubmitContactForm method
func (m *MockEventService) SubmitContactForm(ctx context.Context, req model.ContactFormPayload) (*usecase.ContactOutcome, error) {
	args := m.Called(ctx, req)
	outcome, _ := args.Get(0).(*usecase.ContactOutcome)
	return outcome, args.Error(1)
}

// HandleInboundMessage mocks the HandleInboundMessage method
func (m *MockEventService) HandleInboundMessage(ctx context.Context, payload model.InboundMessagePayload) (*model.Message, error) {
	args := m.Called(ctx, payload)
	msg, _ := args.Get(0).(*model.Message)
	return msg, args.Error(1)
}

// HandleReminderFired mocks the HandleReminderFired method
func (m *MockEventService) HandleReminderFired(ctx context.Context, payload model.ReminderFiredPayload) (*model.Message, error) {
	args := m.Called(ctx, payload)
	msg, _ := args.Get(0).(*model.Message)
	return msg, args.Error(1)
}
