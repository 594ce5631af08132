package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/cache"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// DashboardService serves the cached dashboard projection.
type DashboardService struct {
	repo     storage.DashboardRepo
	cache    cache.Store
	settings Settings
	now      Clock
}

// NewDashboardService creates the dashboard service.
func NewDashboardService(repo storage.DashboardRepo, store cache.Store, settings Settings, now Clock) *DashboardService {
	return &DashboardService{repo: repo, cache: store, settings: settings, now: now}
}

// Metrics returns the cached projection, recomputing it on a miss.
func (s *DashboardService) Metrics(ctx context.Context) (*model.DashboardMetrics, error) {
	metrics, err := s.cache.GetDashboard(ctx)
	switch {
	case err == nil:
		return metrics, nil
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		logger.FromContext(ctx).Warn("Dashboard cache read failed, recomputing", zap.Error(err))
	}
	return s.Refresh(ctx)
}

// Refresh recomputes the projection from the database and caches it.
func (s *DashboardService) Refresh(ctx context.Context) (*model.DashboardMetrics, error) {
	now := s.now()
	today := model.NewDate(now.In(s.settings.location()))
	metrics, err := s.repo.Counts(ctx, today, now.Add(-s.settings.Automation.FormOverdueAfter))
	if err != nil {
		return nil, err
	}
	metrics.ComputedAt = now
	if err := s.cache.SetDashboard(ctx, metrics); err != nil {
		logger.FromContext(ctx).Warn("Failed to cache dashboard metrics", zap.Error(err))
	}
	return metrics, nil
}

// Invalidate drops the cached projection after a write that changes counts.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if err := s.cache.InvalidateDashboard(ctx); err != nil {
		logger.FromContext(ctx).Warn("Failed to invalidate dashboard metrics", zap.Error(err))
	}
}

// projection is a staged optimistic adjustment of the cached metrics.
type projection struct {
	svc      *DashboardService
	original *model.DashboardMetrics
}

// adjust applies fn to the cached projection ahead of the commit. Without a
// cached copy there is nothing to adjust and rollback is a no-op.
func (s *DashboardService) adjust(ctx context.Context, fn func(m *model.DashboardMetrics)) *projection {
	current, err := s.cache.GetDashboard(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.FromContext(ctx).Warn("Dashboard projection unavailable", zap.Error(err))
		}
		return &projection{svc: s}
	}

	original := *current
	fn(current)
	if err := s.cache.SetDashboard(ctx, current); err != nil {
		logger.FromContext(ctx).Warn("Failed to stage dashboard projection", zap.Error(err))
		return &projection{svc: s}
	}
	return &projection{svc: s, original: &original}
}

// rollback restores the projection captured before adjust. When even that
// write fails the key is dropped so the next read recomputes.
func (p *projection) rollback(ctx context.Context) {
	if p.original == nil {
		return
	}
	if err := p.svc.cache.SetDashboard(ctx, p.original); err != nil {
		logger.FromContext(ctx).Warn("Failed to restore dashboard projection", zap.Error(err))
		p.svc.Invalidate(ctx)
	}
}

// formsCutoffs returns the sentAt bounds for the Warning and Critical form alerts.
func (s Settings) formsCutoffs(now time.Time) (warning, critical time.Time) {
	return now.Add(-s.Automation.FormOverdueAfter), now.Add(-s.Automation.FormCriticalAfter)
}

// staleRunning reports whether a running step was left behind by a worker
// that died before recording the outcome.
func (s Settings) staleRunning(rec model.AutomationStep, now time.Time) bool {
	return rec.Status == model.StepRunning && rec.UpdatedAt.Before(now.Add(-s.Automation.StepStaleAfter))
}
