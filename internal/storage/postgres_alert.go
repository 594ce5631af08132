package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

const defaultAlertListLimit = 100

// AlertOutcome says what RaiseAlert did with a candidate.
type AlertOutcome string

const (
	AlertCreated    AlertOutcome = "created"
	AlertUpdated    AlertOutcome = "updated"
	AlertEscalated  AlertOutcome = "escalated"
	AlertUnchanged  AlertOutcome = "unchanged"
	AlertSuppressed AlertOutcome = "suppressed"
)

const heldAlertCondition = "dedup_key = ? AND dismissed_at IS NOT NULL AND cleared_at IS NULL"

// RaiseAlert makes the candidate's alert exist. The open alert with the same
// dedup key is locked and updated in place, so a key never gets a second row.
// Escalation marks the alert unread again. An alert staff dismissed stays
// dismissed until its condition clears, unless the candidate is more severe.
func (r *PostgresRepo) RaiseAlert(ctx context.Context, candidate model.AlertCandidate, now time.Time) (*model.Alert, AlertOutcome, error) {
	alert, outcome, err := r.raiseAlert(ctx, candidate, now)
	if errors.Is(err, apperrors.ErrDuplicate) {
		// A concurrent raise inserted the open row first; update that one.
		logger.FromContext(ctx).Debug("Alert created concurrently, raising again", zap.String("dedup_key", candidate.DedupKey()))
		alert, outcome, err = r.raiseAlert(ctx, candidate, now)
	}
	if err != nil {
		return nil, "", err
	}
	alert.FillRelated()
	return alert, outcome, nil
}

func (r *PostgresRepo) raiseAlert(ctx context.Context, candidate model.AlertCandidate, now time.Time) (*model.Alert, AlertOutcome, error) {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return nil, "", err
	}
	key := candidate.DedupKey()

	var (
		alert   model.Alert
		outcome AlertOutcome
	)
	err = r.withTx(ctx, "RaiseAlert", "alert", func(tx *gorm.DB) error {
		alert = model.Alert{}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("dedup_key = ? AND dismissed_at IS NULL", key).First(&alert).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			held, err := holdsDismissal(tx, key, candidate.Severity, now)
			if err != nil {
				return err
			}
			if held != nil {
				alert = *held
				outcome = AlertSuppressed
				return nil
			}

			alert = model.Alert{
				ID:          uuid.NewString(),
				WorkspaceID: workspaceID,
				Type:        candidate.Type,
				Severity:    candidate.Severity,
				Message:     candidate.Message,
				Timestamp:   now,
				DedupKey:    key,
			}
			if candidate.Related != nil {
				alert.RelatedEntityType = candidate.Related.Type
				alert.RelatedEntityID = candidate.Related.ID
			}
			outcome = AlertCreated
			return checkConstraintViolation(tx.Create(&alert).Error)
		}
		if err != nil {
			return checkConstraintViolation(err)
		}

		if alert.Severity == candidate.Severity && alert.Message == candidate.Message {
			outcome = AlertUnchanged
			return nil
		}

		updates := map[string]interface{}{
			"severity":   candidate.Severity,
			"message":    candidate.Message,
			"updated_at": now,
		}
		outcome = AlertUpdated
		if alert.Severity.Escalates(candidate.Severity) {
			updates["read"] = false
			updates["timestamp"] = now
			alert.Read = false
			alert.Timestamp = now
			outcome = AlertEscalated
		}
		alert.Severity = candidate.Severity
		alert.Message = candidate.Message
		return checkConstraintViolation(tx.Model(&model.Alert{}).Where("id = ?", alert.ID).Updates(updates).Error)
	})
	if err != nil {
		return nil, "", err
	}
	return &alert, outcome, nil
}

// holdsDismissal returns the dismissed, uncleared alert of key when it still
// covers a candidate of severity. A more severe candidate clears it instead.
func holdsDismissal(tx *gorm.DB, key string, severity model.AlertSeverity, now time.Time) (*model.Alert, error) {
	var held model.Alert
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(heldAlertCondition, key).Order("dismissed_at DESC").First(&held).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	if !held.Severity.Escalates(severity) {
		return &held, nil
	}
	err = tx.Model(&model.Alert{}).Where(heldAlertCondition, key).
		Updates(map[string]interface{}{"cleared_at": now, "updated_at": now}).Error
	return nil, checkConstraintViolation(err)
}

// ResolveAlert clears every alert of the key whose condition was still
// standing, dismissing the open one. A later raise of the same key creates a
// fresh alert.
func (r *PostgresRepo) ResolveAlert(ctx context.Context, dedupKey string, now time.Time) (bool, error) {
	resolved := false
	err := r.withTx(ctx, "ResolveAlert", "alert", func(tx *gorm.DB) error {
		res := tx.Model(&model.Alert{}).Where("dedup_key = ? AND cleared_at IS NULL", dedupKey).
			Updates(map[string]interface{}{
				"dismissed_at": gorm.Expr("COALESCE(dismissed_at, ?)", now),
				"cleared_at":   now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		resolved = res.RowsAffected > 0
		return nil
	})
	if resolved {
		logger.FromContext(ctx).Debug("Alert resolved", zap.String("dedup_key", dedupKey))
	}
	return resolved, err
}

// FindAlert finds an undismissed alert by ID.
func (r *PostgresRepo) FindAlert(ctx context.Context, id string) (*model.Alert, error) {
	var alert model.Alert
	err := r.withRead(ctx, "FindAlert", "alert", func(db *gorm.DB) error {
		if err := db.Where("id = ? AND dismissed_at IS NULL", id).First(&alert).Error; err != nil {
			return notFoundOr(err, "alert_id "+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	alert.FillRelated()
	return &alert, nil
}

// ListAlerts returns undismissed alerts, newest first.
func (r *PostgresRepo) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAlertListLimit
	}

	var alerts []model.Alert
	err := r.withRead(ctx, "ListAlerts", "alert", func(db *gorm.DB) error {
		q := db.Where("dismissed_at IS NULL")
		if filter.Type != "" {
			q = q.Where("type = ?", filter.Type)
		}
		if filter.Severity != "" {
			q = q.Where("severity = ?", filter.Severity)
		}
		if filter.UnreadOnly {
			q = q.Where("read = ?", false)
		}
		return checkConstraintViolation(q.Order("\"timestamp\" DESC").Limit(limit).Find(&alerts).Error)
	})
	if err != nil {
		return nil, err
	}
	for i := range alerts {
		alerts[i].FillRelated()
	}
	return alerts, nil
}

// ListUnclearedAlertsByType returns every alert of a type whose condition
// has not cleared, including the ones staff dismissed.
func (r *PostgresRepo) ListUnclearedAlertsByType(ctx context.Context, alertType model.AlertType) ([]model.Alert, error) {
	var alerts []model.Alert
	err := r.withRead(ctx, "ListUnclearedAlertsByType", "alert", func(db *gorm.DB) error {
		return checkConstraintViolation(db.Where("type = ? AND cleared_at IS NULL", alertType).Find(&alerts).Error)
	})
	if err != nil {
		return nil, err
	}
	for i := range alerts {
		alerts[i].FillRelated()
	}
	return alerts, nil
}

// MarkAlertRead sets read on an undismissed alert and returns it.
func (r *PostgresRepo) MarkAlertRead(ctx context.Context, id string) (*model.Alert, error) {
	var alert model.Alert
	err := r.withTx(ctx, "MarkAlertRead", "alert", func(tx *gorm.DB) error {
		alert = model.Alert{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND dismissed_at IS NULL", id).First(&alert).Error; err != nil {
			return notFoundOr(err, "alert_id "+id)
		}
		if alert.Read {
			return nil
		}
		alert.Read = true
		return checkConstraintViolation(tx.Model(&model.Alert{}).Where("id = ?", id).Update("read", true).Error)
	})
	if err != nil {
		return nil, err
	}
	alert.FillRelated()
	return &alert, nil
}

// DismissAlert hides an alert from every read path.
func (r *PostgresRepo) DismissAlert(ctx context.Context, id string, now time.Time) error {
	return r.withTx(ctx, "DismissAlert", "alert", func(tx *gorm.DB) error {
		res := tx.Model(&model.Alert{}).Where("id = ? AND dismissed_at IS NULL", id).
			Updates(map[string]interface{}{"dismissed_at": now, "updated_at": now})
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}
