package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// EnsureWorkspace creates the workspace row on first start. An existing row is
// left alone.
func (r *PostgresRepo) EnsureWorkspace(ctx context.Context, workspace model.Workspace) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	workspace.ID = workspaceID
	return r.withTx(ctx, "EnsureWorkspace", "workspace", func(tx *gorm.DB) error {
		return checkConstraintViolation(tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&workspace).Error)
	})
}

// FindWorkspace returns the workspace row.
func (r *PostgresRepo) FindWorkspace(ctx context.Context) (*model.Workspace, error) {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return nil, err
	}
	var workspace model.Workspace
	err = r.withRead(ctx, "FindWorkspace", "workspace", func(db *gorm.DB) error {
		if err := db.Where("id = ?", workspaceID).First(&workspace).Error; err != nil {
			return notFoundOr(err, "workspace "+workspaceID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &workspace, nil
}

func loadSnapshot(db *gorm.DB, workspaceID string, lock bool) (*model.WorkspaceSnapshot, error) {
	snap := &model.WorkspaceSnapshot{}

	q := db
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("id = ?", workspaceID).First(&snap.Workspace).Error; err != nil {
		return nil, notFoundOr(err, "workspace "+workspaceID)
	}
	if err := db.Order("channel ASC").Find(&snap.Integrations).Error; err != nil {
		return nil, checkConstraintViolation(err)
	}
	if err := db.Order("name ASC").Find(&snap.Services).Error; err != nil {
		return nil, checkConstraintViolation(err)
	}
	err := db.Where("workspace_id = ?", workspaceID).First(&snap.Availability).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		snap.Availability = model.AvailabilityConfig{WorkspaceID: workspaceID}
	case err != nil:
		return nil, checkConstraintViolation(err)
	}
	snap.LoadedAt = utils.Now()
	return snap, nil
}

// LoadSnapshot reads the workspace configuration in one pass.
func (r *PostgresRepo) LoadSnapshot(ctx context.Context) (*model.WorkspaceSnapshot, error) {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return nil, err
	}
	var snap *model.WorkspaceSnapshot
	err = r.withRead(ctx, "LoadSnapshot", "workspace", func(db *gorm.DB) error {
		var loadErr error
		snap, loadErr = loadSnapshot(db, workspaceID, false)
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ActivateWorkspace flips the workspace to active under a row lock when the
// checklist is complete. A blocked attempt writes nothing and is reported in
// the result.
func (r *PostgresRepo) ActivateWorkspace(ctx context.Context, now time.Time) (model.ActivationResult, error) {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return model.ActivationResult{}, err
	}

	var result model.ActivationResult
	err = r.withTx(ctx, "ActivateWorkspace", "workspace", func(tx *gorm.DB) error {
		snap, err := loadSnapshot(tx, workspaceID, true)
		if err != nil {
			return err
		}
		checklist := snap.Checklist()
		result = model.ActivationResult{Checklist: checklist}

		if snap.Workspace.Activated {
			result.Activated = true
			result.AlreadyActive = true
			result.ActivatedAt = snap.Workspace.ActivatedAt
			return nil
		}
		if !checklist.Complete() {
			result.Missing = checklist.Missing()
			return nil
		}

		res := tx.Model(&model.Workspace{}).Where("id = ? AND activated = ?", workspaceID, false).
			Updates(map[string]interface{}{"activated": true, "activated_at": now, "updated_at": now})
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: workspace %s changed during activation", apperrors.ErrConflict, workspaceID)
		}
		activatedAt := now
		result.Activated = true
		result.ActivatedAt = &activatedAt
		return nil
	})
	if err != nil {
		return model.ActivationResult{}, err
	}
	if result.Activated && !result.AlreadyActive {
		logger.FromContext(ctx).Info("Workspace activated", zap.Time("activated_at", now))
	}
	return result, nil
}

// UpsertService creates or replaces a bookable service.
func (r *PostgresRepo) UpsertService(ctx context.Context, service model.Service) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	service.WorkspaceID = workspaceID
	return r.withTx(ctx, "UpsertService", "service", func(tx *gorm.DB) error {
		return checkConstraintViolation(tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "duration", "location", "description", "updated_at"}),
		}).Create(&service).Error)
	})
}

// SetAvailability replaces the availability row.
func (r *PostgresRepo) SetAvailability(ctx context.Context, cfg model.AvailabilityConfig) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	cfg.WorkspaceID = workspaceID
	return r.withTx(ctx, "SetAvailability", "availability", func(tx *gorm.DB) error {
		return checkConstraintViolation(tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"days_of_week", "time_slots", "updated_at"}),
		}).Create(&cfg).Error)
	})
}

// SetIntegration records whether a channel is connected.
func (r *PostgresRepo) SetIntegration(ctx context.Context, integration model.Integration) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	integration.WorkspaceID = workspaceID
	return r.withTx(ctx, "SetIntegration", "integration", func(tx *gorm.DB) error {
		return checkConstraintViolation(tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{"connected", "provider", "updated_at"}),
		}).Create(&integration).Error)
	})
}
