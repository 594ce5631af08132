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

// ContactResolver maps a submitter's identity onto exactly one contact.
type ContactResolver struct {
	contacts storage.ContactRepo
}

// NewContactResolver creates the resolver.
func NewContactResolver(contacts storage.ContactRepo) *ContactResolver {
	return &ContactResolver{contacts: contacts}
}

// FindOrCreateContact returns the contact owning the normalized email, else
// the one owning the normalized phone, else a new contact. An existing
// contact only gains identity fields it lacked; its name never changes.
func (r *ContactResolver) FindOrCreateContact(ctx context.Context, in model.ContactInput) (*model.Contact, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	in = in.Normalized()
	if in.Email == "" && in.Phone == "" {
		return nil, fmt.Errorf("%w: email or phone is required", apperrors.ErrValidation)
	}

	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	log := logger.FromContext(ctx)

	existing, err := r.lookup(ctx, in)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return r.merge(ctx, existing, in)
	}

	contact := model.Contact{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Name:        in.DisplayName(),
		Email:       in.Email,
		Phone:       in.Phone,
	}
	err = r.contacts.Create(ctx, contact)
	if errors.Is(err, apperrors.ErrDuplicate) {
		// Lost a race with a concurrent submission; the winner is the contact.
		log.Debug("Contact created concurrently, re-resolving", zap.String("email", in.Email), zap.String("phone", in.Phone))
		winner, lookupErr := r.lookup(ctx, in)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if winner == nil {
			return nil, fmt.Errorf("%w: contact vanished after duplicate insert", apperrors.ErrConflict)
		}
		return r.merge(ctx, winner, in)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Contact created", zap.String("contact_id", contact.ID))
	return &contact, nil
}

// GetContact loads a contact by id.
func (r *ContactResolver) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	return r.contacts.FindByID(ctx, id)
}

// lookup tries email then phone. A nil contact with a nil error means no match.
func (r *ContactResolver) lookup(ctx context.Context, in model.ContactInput) (*model.Contact, error) {
	if in.Email != "" {
		c, err := r.contacts.FindByEmail(ctx, in.Email)
		if err == nil {
			return c, nil
		}
		if !apperrors.IsNotFoundError(err) {
			return nil, err
		}
	}
	if in.Phone != "" {
		c, err := r.contacts.FindByPhone(ctx, in.Phone)
		if err == nil {
			return c, nil
		}
		if !apperrors.IsNotFoundError(err) {
			return nil, err
		}
	}
	return nil, nil
}

func (r *ContactResolver) merge(ctx context.Context, existing *model.Contact, in model.ContactInput) (*model.Contact, error) {
	probe := *existing
	if !probe.FillMissingIdentity(in) {
		return existing, nil
	}
	return r.contacts.FillIdentity(ctx, existing.ID, in)
}
