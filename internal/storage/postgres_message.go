package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// DeliveryTransition moves a message between delivery states. Only
// pending→delivered, pending→failed and failed→pending exist.
type DeliveryTransition struct {
	From          model.DeliveryStatus
	To            model.DeliveryStatus
	FailureReason string
	// CountAttempt increments the attempts counter.
	CountAttempt bool
}

func (t DeliveryTransition) valid() bool {
	switch t.From {
	case model.DeliveryPending:
		return t.To == model.DeliveryDelivered || t.To == model.DeliveryFailed
	case model.DeliveryFailed:
		return t.To == model.DeliveryPending
	}
	return false
}

// FindMessageByID finds a message by its ID.
func (r *PostgresRepo) FindMessageByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.withRead(ctx, "FindMessageByID", "message", func(db *gorm.DB) error {
		if err := db.Where("id = ?", id).First(&msg).Error; err != nil {
			return notFoundOr(err, "message_id "+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// TransitionMessageDelivery applies t when the message is currently in t.From.
// A message in any other state yields ErrConflict.
func (r *PostgresRepo) TransitionMessageDelivery(ctx context.Context, id string, t DeliveryTransition) (*model.Message, error) {
	if !t.valid() {
		return nil, fmt.Errorf("%w: delivery transition %s -> %s", apperrors.ErrBadRequest, t.From, t.To)
	}

	var msg model.Message
	err := r.withTx(ctx, "TransitionMessageDelivery", "message", func(tx *gorm.DB) error {
		msg = model.Message{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&msg).Error; err != nil {
			return notFoundOr(err, "message_id "+id)
		}
		if msg.DeliveryStatus != t.From {
			return fmt.Errorf("%w: message %s is %s, not %s", apperrors.ErrConflict, id, msg.DeliveryStatus, t.From)
		}

		msg.DeliveryStatus = t.To
		msg.FailureReason = t.FailureReason
		if t.CountAttempt {
			msg.Attempts++
		}
		msg.UpdatedAt = utils.Now()
		return checkConstraintViolation(tx.Model(&model.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
			"delivery_status": msg.DeliveryStatus,
			"failure_reason":  msg.FailureReason,
			"attempts":        msg.Attempts,
			"updated_at":      msg.UpdatedAt,
		}).Error)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
