package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/cache"
	"gitlab.com/careops/api/careops-orchestrator/internal/calendar"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/internal/validator"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// WorkspaceState is the read-through view of workspace configuration. Redis
// holds a copy; Postgres stays authoritative and every configuration command
// drops the cached copy once it commits.
type WorkspaceState struct {
	repo  storage.WorkspaceRepo
	cache cache.Store
}

// NewWorkspaceState creates the state service.
func NewWorkspaceState(repo storage.WorkspaceRepo, store cache.Store) *WorkspaceState {
	return &WorkspaceState{repo: repo, cache: store}
}

// Snapshot returns the cached snapshot or loads and caches it. Cache errors
// only cost a database read.
func (s *WorkspaceState) Snapshot(ctx context.Context) (*model.WorkspaceSnapshot, error) {
	log := logger.FromContext(ctx)

	snap, err := s.cache.GetSnapshot(ctx)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		log.Warn("Snapshot cache read failed, falling back to database", zap.Error(err))
	}

	snap, err = s.repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetSnapshot(ctx, snap); err != nil {
		log.Warn("Failed to cache workspace snapshot", zap.Error(err))
	}
	return snap, nil
}

// Invalidate drops the cached snapshot. Failures are logged; the TTL bounds
// how long a stale copy can live.
func (s *WorkspaceState) Invalidate(ctx context.Context) {
	if err := s.cache.InvalidateSnapshot(ctx); err != nil {
		logger.FromContext(ctx).Warn("Failed to invalidate workspace snapshot", zap.Error(err))
	}
}

// UpsertService creates or replaces a bookable service. An empty id gets a new one.
func (s *WorkspaceState) UpsertService(ctx context.Context, svc model.Service) (*model.Service, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	svc.Name = strings.TrimSpace(svc.Name)
	if err := validator.Validate(svc); err != nil {
		return nil, err
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	svc.WorkspaceID = workspaceID

	if err := s.repo.UpsertService(ctx, svc); err != nil {
		return nil, err
	}
	s.Invalidate(ctx)
	return &svc, nil
}

// SetAvailability replaces the bookable weekdays and slots.
func (s *WorkspaceState) SetAvailability(ctx context.Context, cfg model.AvailabilityConfig) (*model.AvailabilityConfig, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	if err := validator.Validate(cfg); err != nil {
		return nil, err
	}
	cfg.WorkspaceID = workspaceID
	cfg.DaysOfWeek = canonicalDays(cfg.DaysOfWeek)
	cfg.TimeSlots = dedupe(cfg.TimeSlots)

	if err := s.repo.SetAvailability(ctx, cfg); err != nil {
		return nil, err
	}
	s.Invalidate(ctx)
	return &cfg, nil
}

// SetIntegration records whether a delivery channel is connected.
func (s *WorkspaceState) SetIntegration(ctx context.Context, channel model.Channel, connected bool, provider string) (*model.Integration, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	if !channel.External() {
		return nil, fmt.Errorf("%w: channel %q cannot be integrated", apperrors.ErrValidation, channel)
	}
	integration := model.Integration{
		WorkspaceID: workspaceID,
		Channel:     channel,
		Connected:   connected,
		Provider:    strings.TrimSpace(provider),
	}
	if err := s.repo.SetIntegration(ctx, integration); err != nil {
		return nil, err
	}
	s.Invalidate(ctx)
	return &integration, nil
}

// canonicalDays stores weekdays as full names in Monday-first order.
func canonicalDays(days []string) []string {
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if w, err := calendar.ParseWeekday(d); err == nil {
			seen[calendar.MondayIndex(w)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for i := range calendar.WeekdayOrder {
		if seen[i] {
			out = append(out, calendar.WeekdayName(i))
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
