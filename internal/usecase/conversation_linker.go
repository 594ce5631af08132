package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/internal/validator"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// ConversationLinker keeps one thread per contact.
type ConversationLinker struct {
	contacts      storage.ContactRepo
	conversations storage.ConversationRepo
}

// NewConversationLinker creates the linker.
func NewConversationLinker(contacts storage.ContactRepo, conversations storage.ConversationRepo) *ConversationLinker {
	return &ConversationLinker{contacts: contacts, conversations: conversations}
}

// FindOrCreateConversation returns the contact's latest conversation with the
// overrides applied, or a new one. A paused thread stays paused whatever the
// overrides say.
func (l *ConversationLinker) FindOrCreateConversation(ctx context.Context, contactID, contactName string, overrides model.ConversationOverrides) (*model.Conversation, error) {
	if contactID == "" {
		return nil, fmt.Errorf("%w: contact_id is required", apperrors.ErrValidation)
	}
	if err := validator.Validate(overrides); err != nil {
		return nil, err
	}
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	log := logger.FromContext(ctx).With(zap.String("contact_id", contactID))

	existing, err := l.conversations.FindLatestByContact(ctx, contactID)
	switch {
	case err == nil:
		return l.relink(ctx, existing, overrides)
	case !apperrors.IsNotFoundError(err):
		return nil, err
	}

	contact, err := l.contacts.FindByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contactName == "" {
		contactName = contact.Name
	}

	conv := model.Conversation{
		ID:               uuid.NewString(),
		WorkspaceID:      workspaceID,
		ContactID:        contact.ID,
		ContactName:      contactName,
		Status:           model.ConversationNew,
		AutomationStatus: model.AutomationNone,
	}
	overrides.Apply(&conv)
	err = l.conversations.Create(ctx, conv)
	if errors.Is(err, apperrors.ErrDuplicate) {
		// Lost a race with a concurrent first message; the winner's thread is the thread.
		log.Debug("Conversation created concurrently, re-reading")
		winner, lookupErr := l.conversations.FindLatestByContact(ctx, contactID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return l.relink(ctx, winner, overrides)
	}
	if err != nil {
		return nil, err
	}
	log.Info("Conversation created", zap.String("conversation_id", conv.ID))
	return &conv, nil
}

func (l *ConversationLinker) relink(ctx context.Context, existing *model.Conversation, overrides model.ConversationOverrides) (*model.Conversation, error) {
	if !overridesChange(existing, overrides) {
		return existing, nil
	}
	return l.conversations.Mutate(ctx, existing.ID, func(c *model.Conversation) (bool, error) {
		return overrides.Apply(c), nil
	})
}

// overridesChange checks on a copy so unchanged threads skip the row lock.
func overridesChange(c *model.Conversation, overrides model.ConversationOverrides) bool {
	probe := *c
	return overrides.Apply(&probe)
}
