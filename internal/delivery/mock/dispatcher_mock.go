package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/careops/api/careops-orchestrator/internal/delivery"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

// DispatcherMock mocks the delivery.Dispatcher interface
type DispatcherMock struct {
	mock.Mock
}

var _ delivery.Dispatcher = (*DispatcherMock)(nil)

func (m *DispatcherMock) Dispatch(ctx context.Context, msg model.Message, recipient string) {
	m.Called(ctx, msg, recipient)
}
