package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

func TestDashboardMetrics_RecomputesOnMissAndCaches(t *testing.T) {
	h := newHarness(t)
	h.store.bookings = append(h.store.bookings, &model.Booking{
		ID:     "bk-today",
		Date:   model.NewDate(testNow),
		Status: model.BookingConfirmed,
	})

	m, err := h.dashboard.Metrics(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.TodayBookings)
	assert.Equal(t, testNow, m.ComputedAt)
	require.NotNil(t, h.cache.dashboard)

	h.store.bookings = nil
	m, err = h.dashboard.Metrics(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.TodayBookings, "served from cache")

	h.dashboard.Invalidate(h.ctx)
	m, err = h.dashboard.Metrics(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, m.TodayBookings)
}

func TestDashboardMetrics_CacheWriteFailureStillAnswers(t *testing.T) {
	h := newHarness(t)
	h.cache.setErr = errors.New("redis down")

	m, err := h.dashboard.Metrics(h.ctx)
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Nil(t, h.cache.dashboard)
}

func TestProjection_RollbackWithoutCachedCopyIsNoop(t *testing.T) {
	h := newHarness(t)

	staged := h.dashboard.adjust(h.ctx, func(m *model.DashboardMetrics) { m.DecUnreadAlerts() })
	staged.rollback(h.ctx)
	assert.Nil(t, h.cache.dashboard)
}

func TestBookingWritesInvalidateTheDashboard(t *testing.T) {
	h := newHarness(t)
	h.cache.dashboard = &model.DashboardMetrics{TodayBookings: 7}

	h.book("sub-1")
	assert.Nil(t, h.cache.dashboard)
}
