package handler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/ingestion/handler"
	mockhandler "gitlab.com/careops/api/careops-orchestrator/internal/ingestion/handler/mock"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

func setupEventTest(t *testing.T) (context.Context, *model.MessageMetadata, *mockhandler.MockEventService, *handler.EventHandler) {
	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))
	metadata := &model.MessageMetadata{
		MessageID:   "nats-msg-1",
		WorkspaceID: "ws-test",
		Timestamp:   time.Now(),
		Stream:      "careops_events",
		Consumer:    "careops_orchestrator_ws-test",
	}
	svc := new(mockhandler.MockEventService)
	return ctx, metadata, svc, handler.NewEventHandler(svc)
}

func TestEventHandler_HandleEvent_Routing(t *testing.T) {
	booking := &usecase.BookingOutcome{
		Booking: &model.Booking{ID: "b-1"},
		Steps:   map[model.AutomationStepName]model.StepStatus{model.StepConfirmation: model.StepSucceeded},
	}
	contact := &usecase.ContactOutcome{Contact: &model.Contact{ID: "c-1"}, Conversation: &model.Conversation{ID: "conv-1"}}
	message := &model.Message{ID: "m-1", ConversationID: "conv-1"}

	testCases := []struct {
		name       string
		eventType  model.EventType
		payload    []byte
		expectCall string
		returns    []interface{}
	}{
		{
			name:       "public booking",
			eventType:  model.V1PublicBookings,
			payload:    []byte(`{"name":"Ana","email":"ana@example.com","service_id":"svc-1","date":"2024-06-10","time":"10:00 AM"}`),
			expectCall: "SubmitPublicBooking",
			returns:    []interface{}{booking, nil},
		},
		{
			name:       "contact form",
			eventType:  model.V1PublicContacts,
			payload:    []byte(`{"name":"Ana","email":"ana@example.com","message":"hi"}`),
			expectCall: "SubmitContactForm",
			returns:    []interface{}{contact, nil},
		},
		{
			name:       "inbound message",
			eventType:  model.V1InboundMessages,
			payload:    []byte(`{"email":"ana@example.com","channel":"email","content":"see you"}`),
			expectCall: "HandleInboundMessage",
			returns:    []interface{}{message, nil},
		},
		{
			name:       "reminder fired",
			eventType:  model.V1RemindersFired,
			payload:    []byte(`{"reminder_id":"r-1","booking_id":"b-1"}`),
			expectCall: "HandleReminderFired",
			returns:    []interface{}{message, nil},
		},
		{
			name:       "reminder fired without message",
			eventType:  model.V1RemindersFired,
			payload:    []byte(`{"reminder_id":"r-2","booking_id":"b-1"}`),
			expectCall: "HandleReminderFired",
			returns:    []interface{}{nil, nil},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, metadata, svc, h := setupEventTest(t)
			metadata.MessageSubject = tc.eventType.Subject("ws-test")
			svc.On(tc.expectCall, mock.Anything, mock.Anything).Return(tc.returns...).Once()

			err := h.HandleEvent(ctx, tc.eventType, metadata, tc.payload)

			require.NoError(t, err)
			svc.AssertExpectations(t)
		})
	}
}

func TestEventHandler_HandleEvent_DecodesPayload(t *testing.T) {
	ctx, metadata, svc, h := setupEventTest(t)
	expected := model.PublicBookingPayload{
		SubmissionID: "sub-1",
		Name:         "Ana",
		Email:        "ana@example.com",
		ServiceID:    "svc-1",
		Date:         "2024-06-10",
		Time:         "10:00 AM",
	}
	svc.On("SubmitPublicBooking", mock.Anything, expected).
		Return(&usecase.BookingOutcome{Booking: &model.Booking{ID: "b-1"}}, nil).Once()

	payload := []byte(`{"submission_id":"sub-1","name":"Ana","email":"ana@example.com","service_id":"svc-1","date":"2024-06-10","time":"10:00 AM"}`)
	require.NoError(t, h.HandleEvent(ctx, model.V1PublicBookings, metadata, payload))
	svc.AssertExpectations(t)
}

func TestEventHandler_HandleEvent_Errors(t *testing.T) {
	testCases := []struct {
		name            string
		eventType       model.EventType
		payload         []byte
		serviceErr      error
		expectFatal     bool
		expectRetryable bool
	}{
		{
			name:        "unsupported event type",
			eventType:   model.V1DeliveryEmail,
			payload:     []byte(`{}`),
			expectFatal: true,
		},
		{
			name:        "malformed json",
			eventType:   model.V1PublicBookings,
			payload:     []byte(`{"name":`),
			expectFatal: true,
		},
		{
			name:        "validation failure is fatal",
			eventType:   model.V1PublicBookings,
			payload:     []byte(`{"name":"Ana"}`),
			serviceErr:  fmt.Errorf("%w: email or phone is required", apperrors.ErrValidation),
			expectFatal: true,
		},
		{
			name:        "inactive workspace is fatal",
			eventType:   model.V1PublicContacts,
			payload:     []byte(`{"name":"Ana","email":"ana@example.com"}`),
			serviceErr:  apperrors.ErrWorkspaceInactive,
			expectFatal: true,
		},
		{
			name:            "database failure is retryable",
			eventType:       model.V1InboundMessages,
			payload:         []byte(`{"email":"ana@example.com","channel":"email","content":"hi"}`),
			serviceErr:      fmt.Errorf("%w: connection reset", apperrors.ErrDatabase),
			expectRetryable: true,
		},
		{
			name:            "failed reminder send is retryable",
			eventType:       model.V1RemindersFired,
			payload:         []byte(`{"reminder_id":"r-1","booking_id":"b-1"}`),
			serviceErr:      fmt.Errorf("%w: find conversation: connection reset", apperrors.ErrDatabase),
			expectRetryable: true,
		},
		{
			name:            "nats failure is retryable",
			eventType:       model.V1RemindersFired,
			payload:         []byte(`{"reminder_id":"r-1","booking_id":"b-1"}`),
			serviceErr:      fmt.Errorf("%w: no responders", apperrors.ErrNATS),
			expectRetryable: true,
		},
	}

	methods := map[model.EventType]string{
		model.V1PublicBookings:  "SubmitPublicBooking",
		model.V1PublicContacts:  "SubmitContactForm",
		model.V1InboundMessages: "HandleInboundMessage",
		model.V1RemindersFired:  "HandleReminderFired",
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, metadata, svc, h := setupEventTest(t)
			if tc.serviceErr != nil {
				svc.On(methods[tc.eventType], mock.Anything, mock.Anything).Return(nil, tc.serviceErr).Once()
			}

			err := h.HandleEvent(ctx, tc.eventType, metadata, tc.payload)

			require.Error(t, err)
			assert.Equal(t, tc.expectFatal, apperrors.IsFatal(err), "fatal classification")
			assert.Equal(t, tc.expectRetryable, apperrors.IsRetryable(err), "retryable classification")
			if tc.serviceErr != nil {
				assert.True(t, errors.Is(err, tc.serviceErr))
			} else {
				svc.AssertNotCalled(t, "SubmitPublicBooking", mock.Anything, mock.Anything)
			}
			svc.AssertExpectations(t)
		})
	}
}
