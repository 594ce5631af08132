package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// FindContactByID finds a contact by its ID.
func (r *PostgresRepo) FindContactByID(ctx context.Context, id string) (*model.Contact, error) {
	var contact model.Contact
	err := r.withRead(ctx, "FindContactByID", "contact", func(db *gorm.DB) error {
		if err := db.Where("id = ?", id).First(&contact).Error; err != nil {
			return notFoundOr(err, "contact_id "+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindContactByEmail looks a contact up by normalized email.
func (r *PostgresRepo) FindContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	return r.findContactBy(ctx, "FindContactByEmail", "email", model.NormalizeEmail(email))
}

// FindContactByPhone looks a contact up by normalized phone.
func (r *PostgresRepo) FindContactByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	return r.findContactBy(ctx, "FindContactByPhone", "phone", model.NormalizePhone(phone))
}

func (r *PostgresRepo) findContactBy(ctx context.Context, opName, column, value string) (*model.Contact, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty %s", apperrors.ErrNotFound, column)
	}
	var contact model.Contact
	err := r.withRead(ctx, opName, "contact", func(db *gorm.DB) error {
		if err := db.Where(column+" = ?", value).First(&contact).Error; err != nil {
			return notFoundOr(err, column+" "+value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// CreateContact inserts a new contact. A unique index hit surfaces as ErrDuplicate.
func (r *PostgresRepo) CreateContact(ctx context.Context, contact model.Contact) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	if contact.WorkspaceID != workspaceID {
		return fmt.Errorf("%w: contact workspace %s does not match %s", apperrors.ErrBadRequest, contact.WorkspaceID, workspaceID)
	}

	return r.withTx(ctx, "CreateContact", "contact", func(tx *gorm.DB) error {
		if err := tx.Create(&contact).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	})
}

// FillContactIdentity locks the contact and fills identity fields it lacks,
// skipping any value another contact already owns.
func (r *PostgresRepo) FillContactIdentity(ctx context.Context, id string, in model.ContactInput) (*model.Contact, error) {
	in = in.Normalized()
	var contact model.Contact
	err := r.withTx(ctx, "FillContactIdentity", "contact", func(tx *gorm.DB) error {
		contact = model.Contact{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&contact).Error; err != nil {
			return notFoundOr(err, "contact_id "+id)
		}

		candidate := model.ContactInput{}
		if contact.Email == "" && in.Email != "" {
			owned, err := identityOwned(tx, "email", in.Email, id)
			if err != nil {
				return err
			}
			if !owned {
				candidate.Email = in.Email
			}
		}
		if contact.Phone == "" && in.Phone != "" {
			owned, err := identityOwned(tx, "phone", in.Phone, id)
			if err != nil {
				return err
			}
			if !owned {
				candidate.Phone = in.Phone
			}
		}

		if !contact.FillMissingIdentity(candidate) {
			return nil
		}
		if err := tx.Model(&model.Contact{}).Where("id = ?", id).
			Updates(map[string]interface{}{"email": contact.Email, "phone": contact.Phone}).Error; err != nil {
			return checkConstraintViolation(err)
		}
		logger.FromContext(ctx).Debug("Filled missing contact identity", zap.String("contact_id", id))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func identityOwned(tx *gorm.DB, column, value, exceptID string) (bool, error) {
	var other model.Contact
	err := tx.Select("id").Where(column+" = ? AND id <> ?", value, exceptID).First(&other).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, checkConstraintViolation(err)
}
