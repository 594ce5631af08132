package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
)

// KeyPrefix namespaces every key the service writes.
const KeyPrefix = "careops"

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

const (
	kindSnapshot  = "snapshot"
	kindDashboard = "dashboard"
)

// Store caches the workspace snapshot and dashboard projection. The database
// stays authoritative; entries only expire or get invalidated.
type Store interface {
	GetSnapshot(ctx context.Context) (*model.WorkspaceSnapshot, error)
	SetSnapshot(ctx context.Context, snap *model.WorkspaceSnapshot) error
	InvalidateSnapshot(ctx context.Context) error
	GetDashboard(ctx context.Context) (*model.DashboardMetrics, error)
	SetDashboard(ctx context.Context, metrics *model.DashboardMetrics) error
	InvalidateDashboard(ctx context.Context) error
}

// RedisStore implements Store on Redis with JSON values.
type RedisStore struct {
	client       *Client
	workspaceID  string
	snapshotTTL  time.Duration
	dashboardTTL time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store for one workspace.
func NewRedisStore(client *Client, workspaceID string, snapshotTTL, dashboardTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:       client,
		workspaceID:  workspaceID,
		snapshotTTL:  snapshotTTL,
		dashboardTTL: dashboardTTL,
	}
}

// Key builds "careops:<workspace>:<kind>".
func Key(workspaceID, kind string) string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, workspaceID, kind)
}

func (s *RedisStore) GetSnapshot(ctx context.Context) (*model.WorkspaceSnapshot, error) {
	var snap model.WorkspaceSnapshot
	if err := s.getJSON(ctx, kindSnapshot, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *RedisStore) SetSnapshot(ctx context.Context, snap *model.WorkspaceSnapshot) error {
	return s.setJSON(ctx, kindSnapshot, snap, s.snapshotTTL)
}

func (s *RedisStore) InvalidateSnapshot(ctx context.Context) error {
	return s.del(ctx, kindSnapshot)
}

func (s *RedisStore) GetDashboard(ctx context.Context) (*model.DashboardMetrics, error) {
	var metrics model.DashboardMetrics
	if err := s.getJSON(ctx, kindDashboard, &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

func (s *RedisStore) SetDashboard(ctx context.Context, metrics *model.DashboardMetrics) error {
	return s.setJSON(ctx, kindDashboard, metrics, s.dashboardTTL)
}

func (s *RedisStore) InvalidateDashboard(ctx context.Context) error {
	return s.del(ctx, kindDashboard)
}

func (s *RedisStore) getJSON(ctx context.Context, kind string, dst interface{}) error {
	raw, err := s.client.rdb.Get(ctx, Key(s.workspaceID, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		observer.IncCacheRequest(kind, "miss")
		return ErrCacheMiss
	}
	if err != nil {
		observer.IncCacheRequest(kind, "error")
		return fmt.Errorf("%w: get %s: %w", apperrors.ErrCache, kind, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		observer.IncCacheRequest(kind, "error")
		return fmt.Errorf("%w: decode %s: %w", apperrors.ErrCache, kind, err)
	}
	observer.IncCacheRequest(kind, "hit")
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, kind string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", apperrors.ErrCache, kind, err)
	}
	if err := s.client.rdb.Set(ctx, Key(s.workspaceID, kind), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", apperrors.ErrCache, kind, err)
	}
	return nil
}

func (s *RedisStore) del(ctx context.Context, kind string) error {
	if err := s.client.rdb.Del(ctx, Key(s.workspaceID, kind)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %w", apperrors.ErrCache, kind, err)
	}
	return nil
}
