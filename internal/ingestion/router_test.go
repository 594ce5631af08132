package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	handlermock "gitlab.com/careops/api/careops-orchestrator/internal/ingestion/handler/mock"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// forward adapts a handler mock to the router's func type.
func forward(m *handlermock.MockEventHandler) EventHandler {
	return m.HandleEvent
}

func testCtx(t *testing.T) context.Context {
	return logger.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func TestRouter_Register(t *testing.T) {
	router := NewRouter()
	router.Register(model.V1PublicBookings, forward(new(handlermock.MockEventHandler)))
	assert.NotNil(t, router.handlers[model.V1PublicBookings])

	router.RegisterDefault(forward(new(handlermock.MockEventHandler)))
	assert.NotNil(t, router.fallback)
}

func TestRouter_Route_MatchesFullSubject(t *testing.T) {
	router := NewRouter()
	handler := new(handlermock.MockEventHandler)
	router.Register(model.V1PublicBookings, forward(handler))

	rawEvent := []byte(`{"name":"Ana"}`)
	metadata := &model.MessageMetadata{
		MessageSubject: model.V1PublicBookings.Subject("ws-1"),
		MessageID:      "msg-123",
		WorkspaceID:    "ws-1",
	}
	handler.On("HandleEvent", mock.Anything, model.V1PublicBookings, metadata, rawEvent).Return(nil)

	require.NoError(t, router.Route(testCtx(t), metadata, rawEvent))
	handler.AssertExpectations(t)
}

func TestRouter_Route_DefaultHandler(t *testing.T) {
	router := NewRouter()
	fallback := new(handlermock.MockEventHandler)
	router.RegisterDefault(forward(fallback))

	rawEvent := []byte(`{}`)
	metadata := &model.MessageMetadata{MessageSubject: "invalid.subject.format", MessageID: "msg-456"}
	fallback.On("HandleEvent", mock.Anything, model.EventType(""), metadata, rawEvent).Return(nil)

	require.NoError(t, router.Route(testCtx(t), metadata, rawEvent))
	fallback.AssertExpectations(t)
}

func TestRouter_Route_NoHandler(t *testing.T) {
	router := NewRouter()
	metadata := &model.MessageMetadata{MessageSubject: "another.invalid.subject", MessageID: "msg-789"}

	assert.NoError(t, router.Route(testCtx(t), metadata, []byte(`{}`)))
}

func TestRouter_Route_PropagatesHandlerError(t *testing.T) {
	router := NewRouter()
	handler := new(handlermock.MockEventHandler)
	router.Register(model.V1InboundMessages, forward(handler))

	rawEvent := []byte(`{}`)
	metadata := &model.MessageMetadata{MessageSubject: model.V1InboundMessages.Subject("ws-1"), MessageID: "msg-1"}
	expectedErr := errors.New("handler error")
	handler.On("HandleEvent", mock.Anything, model.V1InboundMessages, metadata, rawEvent).Return(expectedErr)

	err := router.Route(testCtx(t), metadata, rawEvent)
	assert.Equal(t, expectedErr, err)
	handler.AssertExpectations(t)
}

func TestRouter_Route_ScopesContext(t *testing.T) {
	router := NewRouter()
	var gotWorkspace, gotRequest string
	router.Register(model.V1RemindersFired, func(ctx context.Context, _ model.EventType, _ *model.MessageMetadata, _ []byte) error {
		gotWorkspace, _ = tenant.FromContext(ctx)
		gotRequest, _ = tenant.FromRequestIDContext(ctx)
		return nil
	})

	metadata := &model.MessageMetadata{
		MessageSubject: model.V1RemindersFired.Subject("ws-9"),
		MessageID:      "msg-1",
		WorkspaceID:    "ws-9",
		RequestID:      "req-7",
	}
	require.NoError(t, router.Route(testCtx(t), metadata, []byte(`{}`)))
	assert.Equal(t, "ws-9", gotWorkspace)
	assert.Equal(t, "req-7", gotRequest)
}

func TestRouter_Route_VersionParsing(t *testing.T) {
	router := NewRouter()
	var version string
	router.Register(model.V1PublicContacts, func(_ context.Context, eventType model.EventType, _ *model.MessageMetadata, _ []byte) error {
		version = eventType.GetVersion()
		return nil
	})

	metadata := &model.MessageMetadata{MessageSubject: model.V1PublicContacts.Subject("ws-1")}
	require.NoError(t, router.Route(testCtx(t), metadata, []byte(`{}`)))
	assert.Equal(t, "v1", version)
}
