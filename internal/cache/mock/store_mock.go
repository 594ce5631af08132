// Package mock holds testify mocks of the cache store and locker.
package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/careops/api/careops-orchestrator/internal/cache"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

// StoreMock mocks the cache.Store interface
type StoreMock struct {
	mock.Mock
}

var _ cache.Store = (*StoreMock)(nil)

func (m *StoreMock) GetSnapshot(ctx context.Context) (*model.WorkspaceSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkspaceSnapshot), args.Error(1)
}

func (m *StoreMock) SetSnapshot(ctx context.Context, snap *model.WorkspaceSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *StoreMock) InvalidateSnapshot(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StoreMock) GetDashboard(ctx context.Context) (*model.DashboardMetrics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DashboardMetrics), args.Error(1)
}

func (m *StoreMock) SetDashboard(ctx context.Context, metrics *model.DashboardMetrics) error {
	args := m.Called(ctx, metrics)
	return args.Error(0)
}

func (m *StoreMock) InvalidateDashboard(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// LockerMock mocks a distributed locker. Unless configured otherwise fn runs.
type LockerMock struct {
	mock.Mock
}

func (m *LockerMock) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, name, ttl)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}
