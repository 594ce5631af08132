package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

// MockEventHandler mocks handler.EventHandlerInterface. Its HandleEvent method
// value also satisfies ingestion.EventHandler, so router tests register it directly.
type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}
