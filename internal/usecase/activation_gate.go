package usecase

import (
	"context"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// ActivationGate decides when a workspace may go live. Activation is one-way.
type ActivationGate struct {
	state    *WorkspaceState
	repo     storage.WorkspaceRepo
	settings Settings
	now      Clock
}

// NewActivationGate creates the gate.
func NewActivationGate(state *WorkspaceState, repo storage.WorkspaceRepo, settings Settings, now Clock) *ActivationGate {
	return &ActivationGate{state: state, repo: repo, settings: settings, now: now}
}

// GetActivationChecklist derives the checklist from the current snapshot.
func (g *ActivationGate) GetActivationChecklist(ctx context.Context) (model.ActivationChecklist, error) {
	snap, err := g.state.Snapshot(ctx)
	if err != nil {
		return model.ActivationChecklist{}, err
	}
	return snap.Checklist(), nil
}

// CanActivateWorkspace is true when every checklist item is met.
func (g *ActivationGate) CanActivateWorkspace(ctx context.Context) (bool, error) {
	checklist, err := g.GetActivationChecklist(ctx)
	if err != nil {
		return false, err
	}
	return checklist.Complete(), nil
}

// ActivateWorkspace re-checks the checklist under the workspace row lock and
// activates. An incomplete checklist is a result, not an error.
func (g *ActivationGate) ActivateWorkspace(ctx context.Context) (model.ActivationResult, error) {
	log := logger.FromContext(ctx)

	result, err := g.repo.Activate(ctx, g.now())
	if err != nil {
		return model.ActivationResult{}, err
	}

	switch {
	case result.AlreadyActive:
		observer.IncActivationAttempt(g.settings.WorkspaceID, "already_active")
		log.Info("Workspace already active")
	case result.Activated:
		observer.IncActivationAttempt(g.settings.WorkspaceID, "activated")
		log.Info("Workspace activated")
		g.state.Invalidate(ctx)
	default:
		observer.IncActivationAttempt(g.settings.WorkspaceID, "blocked")
		log.Info("Workspace activation blocked", zap.Strings("missing", result.Missing))
	}
	return result, nil
}
