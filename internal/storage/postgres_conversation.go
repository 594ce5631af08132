package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// ConversationMutation edits a locked conversation and reports whether it
// changed. Returning an error aborts the transaction.
type ConversationMutation func(c *model.Conversation) (bool, error)

// FindConversationByID loads a conversation without its messages.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.withRead(ctx, "FindConversationByID", "conversation", func(db *gorm.DB) error {
		if err := db.Where("id = ?", id).First(&conv).Error; err != nil {
			return notFoundOr(err, "conversation_id "+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindConversationWithMessages loads a conversation and its messages ordered by seq.
func (r *PostgresRepo) FindConversationWithMessages(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.withRead(ctx, "FindConversationWithMessages", "conversation", func(db *gorm.DB) error {
		if err := db.Where("id = ?", id).First(&conv).Error; err != nil {
			return notFoundOr(err, "conversation_id "+id)
		}
		var messages []model.Message
		if err := db.Where("conversation_id = ?", id).Order("seq ASC").Find(&messages).Error; err != nil {
			return checkConstraintViolation(err)
		}
		conv.Messages = messages
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindLatestConversationByContact returns the most recent conversation of a
// contact regardless of status.
func (r *PostgresRepo) FindLatestConversationByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.withRead(ctx, "FindLatestConversationByContact", "conversation", func(db *gorm.DB) error {
		if err := db.Where("contact_id = ?", contactID).Order("created_at DESC").Limit(1).Take(&conv).Error; err != nil {
			return notFoundOr(err, "conversation for contact "+contactID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation inserts a new, empty conversation.
func (r *PostgresRepo) CreateConversation(ctx context.Context, conv model.Conversation) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	if conv.WorkspaceID != workspaceID {
		return fmt.Errorf("%w: conversation workspace %s does not match %s", apperrors.ErrBadRequest, conv.WorkspaceID, workspaceID)
	}
	return r.withTx(ctx, "CreateConversation", "conversation", func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	})
}

// MutateConversation locks the conversation row, applies fn and persists the
// conversation state when fn reports a change.
func (r *PostgresRepo) MutateConversation(ctx context.Context, id string, fn ConversationMutation) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.withTx(ctx, "MutateConversation", "conversation", func(tx *gorm.DB) error {
		conv = model.Conversation{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&conv).Error; err != nil {
			return notFoundOr(err, "conversation_id "+id)
		}
		changed, err := fn(&conv)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return saveConversationState(tx, &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage assigns the next seq under a row lock, inserts the message and
// updates the conversation counters in one transaction.
func (r *PostgresRepo) AppendMessage(ctx context.Context, conversationID string, msg model.Message) (*model.Conversation, *model.Message, error) {
	var conv model.Conversation
	err := r.withTx(ctx, "AppendMessage", "message", func(tx *gorm.DB) error {
		conv = model.Conversation{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", conversationID).First(&conv).Error; err != nil {
			return notFoundOr(err, "conversation_id "+conversationID)
		}

		if msg.Timestamp.IsZero() {
			msg.Timestamp = utils.Now()
		}
		conv.Record(&msg)
		if err := tx.Create(&msg).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return saveConversationState(tx, &conv)
	})
	if err != nil {
		return nil, nil, err
	}
	logger.FromContext(ctx).Debug("Message appended",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", msg.ID),
		zap.Int64("seq", msg.Seq),
		zap.String("automation_status", string(conv.AutomationStatus)),
	)
	return &conv, &msg, nil
}

func saveConversationState(tx *gorm.DB, conv *model.Conversation) error {
	conv.UpdatedAt = utils.Now()
	err := tx.Model(&model.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]interface{}{
		"status":              conv.Status,
		"automation_status":   conv.AutomationStatus,
		"related_booking_id":  conv.RelatedBookingID,
		"message_count":       conv.MessageCount,
		"unread_count":        conv.UnreadCount,
		"last_message_sender": conv.LastMessageSender,
		"last_message_at":     conv.LastMessageAt,
		"updated_at":          conv.UpdatedAt,
	}).Error
	return checkConstraintViolation(err)
}

// ListConversationsAwaitingStaff returns conversations whose last message came
// from the customer.
func (r *PostgresRepo) ListConversationsAwaitingStaff(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.withRead(ctx, "ListConversationsAwaitingStaff", "conversation", func(db *gorm.DB) error {
		return checkConstraintViolation(db.Where("last_message_sender = ? AND status <> ?", model.SenderCustomer, model.ConversationClosed).
			Order("last_message_at ASC").Find(&convs).Error)
	})
	if err != nil {
		return nil, err
	}
	return convs, nil
}
