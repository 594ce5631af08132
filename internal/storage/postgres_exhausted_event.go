package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// SaveExhaustedEvent persists an event that failed every DLQ retry.
func (r *PostgresRepo) SaveExhaustedEvent(ctx context.Context, event model.ExhaustedEvent) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	if event.WorkspaceID == "" {
		event.WorkspaceID = workspaceID
	}
	if event.WorkspaceID != workspaceID {
		return fmt.Errorf("%w: exhausted event workspace %s does not match %s", apperrors.ErrBadRequest, event.WorkspaceID, workspaceID)
	}

	err = r.withTx(ctx, "SaveExhaustedEvent", "exhausted_event", func(tx *gorm.DB) error {
		event.ID = 0
		return checkConstraintViolation(tx.Create(&event).Error)
	})
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save exhausted event",
			zap.String("source_subject", event.SourceSubject),
			zap.Error(err))
		return err
	}

	logger.FromContext(ctx).Info("Successfully saved exhausted event", zap.Uint("event_id", event.ID), zap.String("source_subject", event.SourceSubject))
	return nil
}

// ListUnresolvedExhaustedEvents returns exhausted events awaiting inspection, newest first.
func (r *PostgresRepo) ListUnresolvedExhaustedEvents(ctx context.Context, limit int) ([]model.ExhaustedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []model.ExhaustedEvent
	err := r.withRead(ctx, "ListUnresolvedExhaustedEvents", "exhausted_event", func(db *gorm.DB) error {
		return checkConstraintViolation(db.Where("resolved = ?", false).Order("created_at DESC").Limit(limit).Find(&events).Error)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
