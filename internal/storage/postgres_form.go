package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

// UpsertFormTemplate creates or replaces a form template.
func (r *PostgresRepo) UpsertFormTemplate(ctx context.Context, template model.FormTemplate) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	template.WorkspaceID = workspaceID
	return r.withTx(ctx, "UpsertFormTemplate", "form_template", func(tx *gorm.DB) error {
		return checkConstraintViolation(tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "status", "linked_booking_types", "updated_at"}),
		}).Create(&template).Error)
	})
}

// ListActiveTemplatesForService returns Active templates linked to serviceID.
func (r *PostgresRepo) ListActiveTemplatesForService(ctx context.Context, serviceID string) ([]model.FormTemplate, error) {
	var templates []model.FormTemplate
	err := r.withRead(ctx, "ListActiveTemplatesForService", "form_template", func(db *gorm.DB) error {
		return checkConstraintViolation(db.
			Where("status = ? AND linked_booking_types @> ?::jsonb", model.FormTemplateActive, containsJSON(serviceID)).
			Order("name ASC").Find(&templates).Error)
	})
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// UpsertFormSubmission inserts the submission unless one exists for the same
// template and booking, and returns the stored row. created is false when the
// form had already been sent.
func (r *PostgresRepo) UpsertFormSubmission(ctx context.Context, submission model.FormSubmission) (*model.FormSubmission, bool, error) {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return nil, false, err
	}
	submission.WorkspaceID = workspaceID

	var (
		stored  model.FormSubmission
		created bool
	)
	err = r.withTx(ctx, "UpsertFormSubmission", "form_submission", func(tx *gorm.DB) error {
		row := submission
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "template_id"}, {Name: "booking_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		created = res.RowsAffected == 1
		if created {
			stored = row
			return nil
		}
		stored = model.FormSubmission{}
		return notFoundOr(tx.Where("template_id = ? AND booking_id = ?", submission.TemplateID, submission.BookingID).
			First(&stored).Error, "form submission")
	})
	if err != nil {
		return nil, false, err
	}
	return &stored, created, nil
}

// ListFormsByBooking returns every form sent for a booking.
func (r *PostgresRepo) ListFormsByBooking(ctx context.Context, bookingID string) ([]model.FormSubmission, error) {
	var forms []model.FormSubmission
	err := r.withRead(ctx, "ListFormsByBooking", "form_submission", func(db *gorm.DB) error {
		return checkConstraintViolation(db.Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&forms).Error)
	})
	if err != nil {
		return nil, err
	}
	return forms, nil
}

// ListOutstandingFormsSentBefore returns Pending or Sent forms whose sentAt is
// older than cutoff.
func (r *PostgresRepo) ListOutstandingFormsSentBefore(ctx context.Context, cutoff time.Time) ([]model.FormSubmission, error) {
	var forms []model.FormSubmission
	err := r.withRead(ctx, "ListOutstandingFormsSentBefore", "form_submission", func(db *gorm.DB) error {
		return checkConstraintViolation(db.
			Where("status IN ? AND sent_at < ?", []model.FormSubmissionStatus{model.FormPending, model.FormSent}, cutoff).
			Order("sent_at ASC").Find(&forms).Error)
	})
	if err != nil {
		return nil, err
	}
	return forms, nil
}

// CompleteFormSubmission marks a form completed.
func (r *PostgresRepo) CompleteFormSubmission(ctx context.Context, id string, now time.Time) (*model.FormSubmission, error) {
	var form model.FormSubmission
	err := r.withTx(ctx, "CompleteFormSubmission", "form_submission", func(tx *gorm.DB) error {
		form = model.FormSubmission{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&form).Error; err != nil {
			return notFoundOr(err, "form_submission_id "+id)
		}
		if form.Status == model.FormCompleted {
			return nil
		}
		form.Status = model.FormCompleted
		form.CompletedAt = &now
		return checkConstraintViolation(tx.Model(&model.FormSubmission{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":       form.Status,
			"completed_at": form.CompletedAt,
			"updated_at":   now,
		}).Error)
	})
	if err != nil {
		return nil, err
	}
	return &form, nil
}
