package usecase

import (
	"context"
	"time"

	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// Clock returns the current instant. Tests pin it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
var SystemClock Clock = utils.Now

// Settings are the workspace-level knobs every use case reads.
type Settings struct {
	WorkspaceID string
	Location    *time.Location
	Automation  config.AutomationConfig
}

// SettingsFromConfig extracts the use case settings from the service config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		WorkspaceID: cfg.Workspace.ID,
		Location:    cfg.Location(),
		Automation:  cfg.Automation,
	}
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Locker runs fn while holding a named distributed lock.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error
}
