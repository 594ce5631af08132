package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// CreateBooking inserts a booking. A repeated submission id surfaces as ErrDuplicate.
func (r *PostgresRepo) CreateBooking(ctx context.Context, booking model.Booking) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	if booking.WorkspaceID != workspaceID {
		return fmt.Errorf("%w: booking workspace %s does not match %s", apperrors.ErrBadRequest, booking.WorkspaceID, workspaceID)
	}
	return r.withTx(ctx, "CreateBooking", "booking", func(tx *gorm.DB) error {
		return checkConstraintViolation(tx.Create(&booking).Error)
	})
}

// FindBookingByID finds a booking by its ID.
func (r *PostgresRepo) FindBookingByID(ctx context.Context, id string) (*model.Booking, error) {
	var booking model.Booking
	err := r.withRead(ctx, "FindBookingByID", "booking", func(db *gorm.DB) error {
		if err := db.Where("id = ?", id).First(&booking).Error; err != nil {
			return notFoundOr(err, "booking_id "+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindBookingBySubmissionID finds the booking created for a public submission.
func (r *PostgresRepo) FindBookingBySubmissionID(ctx context.Context, submissionID string) (*model.Booking, error) {
	if submissionID == "" {
		return nil, fmt.Errorf("%w: empty submission id", apperrors.ErrNotFound)
	}
	var booking model.Booking
	err := r.withRead(ctx, "FindBookingBySubmissionID", "booking", func(db *gorm.DB) error {
		if err := db.Where("submission_id = ?", submissionID).First(&booking).Error; err != nil {
			return notFoundOr(err, "submission_id "+submissionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookingsBetween returns bookings whose date lies in [from, to], ordered by date.
func (r *PostgresRepo) ListBookingsBetween(ctx context.Context, from, to model.Date) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.withRead(ctx, "ListBookingsBetween", "booking", func(db *gorm.DB) error {
		return checkConstraintViolation(db.Where("date >= ? AND date <= ?", from, to).
			Order("date ASC").Order("created_at ASC").Find(&bookings).Error)
	})
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// UpdateBookingStatus sets the status under a row lock and returns the booking
// with the status it had before. Last write wins.
func (r *PostgresRepo) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, model.BookingStatus, error) {
	var (
		booking  model.Booking
		previous model.BookingStatus
	)
	err := r.withTx(ctx, "UpdateBookingStatus", "booking", func(tx *gorm.DB) error {
		booking = model.Booking{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&booking).Error; err != nil {
			return notFoundOr(err, "booking_id "+id)
		}
		previous = booking.Status
		if previous == status {
			return nil
		}

		now := utils.Now()
		booking.Status = status
		booking.UpdatedAt = now
		if status == model.BookingCancelled {
			booking.CancelledAt = &now
		}
		return checkConstraintViolation(tx.Model(&model.Booking{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":       booking.Status,
			"cancelled_at": booking.CancelledAt,
			"updated_at":   booking.UpdatedAt,
		}).Error)
	})
	if err != nil {
		return nil, "", err
	}
	return &booking, previous, nil
}

// RecordAutomationStep upserts the outcome of a step, counting the attempt.
func (r *PostgresRepo) RecordAutomationStep(ctx context.Context, step model.AutomationStep) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	step.WorkspaceID = workspaceID
	step.Attempts = 1
	step.UpdatedAt = utils.Now()

	return r.withTx(ctx, "RecordAutomationStep", "automation_step", func(tx *gorm.DB) error {
		return checkConstraintViolation(tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "booking_id"}, {Name: "step"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":     step.Status,
				"error":      step.Error,
				"updated_at": step.UpdatedAt,
				"attempts":   gorm.Expr("automation_steps.attempts + 1"),
			}),
		}).Create(&step).Error)
	})
}

// ClaimAutomationStep marks a step running unless it already succeeded or is
// running. A running row last touched before staleBefore belongs to a worker
// that died and is claimed again. It reports whether the caller now owns the
// step.
func (r *PostgresRepo) ClaimAutomationStep(ctx context.Context, bookingID string, step model.AutomationStepName, staleBefore time.Time) (bool, error) {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return false, err
	}

	claimed := false
	err = r.withTx(ctx, "ClaimAutomationStep", "automation_step", func(tx *gorm.DB) error {
		seed := model.AutomationStep{
			BookingID:   bookingID,
			Step:        step,
			WorkspaceID: workspaceID,
			Status:      model.StepPending,
			UpdatedAt:   utils.Now(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return checkConstraintViolation(err)
		}

		res := tx.Model(&model.AutomationStep{}).
			Where("booking_id = ? AND step = ? AND (status NOT IN ? OR (status = ? AND updated_at < ?))",
				bookingID, step, []model.StepStatus{model.StepSucceeded, model.StepRunning}, model.StepRunning, staleBefore).
			Updates(map[string]interface{}{"status": model.StepRunning, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		claimed = res.RowsAffected == 1
		return nil
	})
	return claimed, err
}

// FindAutomationStep returns one step record of a booking.
func (r *PostgresRepo) FindAutomationStep(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error) {
	var rec model.AutomationStep
	err := r.withRead(ctx, "FindAutomationStep", "automation_step", func(db *gorm.DB) error {
		if err := db.Where("booking_id = ? AND step = ?", bookingID, step).First(&rec).Error; err != nil {
			return notFoundOr(err, fmt.Sprintf("step %s of booking %s", step, bookingID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAutomationSteps returns every step record of a booking.
func (r *PostgresRepo) ListAutomationSteps(ctx context.Context, bookingID string) ([]model.AutomationStep, error) {
	var steps []model.AutomationStep
	err := r.withRead(ctx, "ListAutomationSteps", "automation_step", func(db *gorm.DB) error {
		return checkConstraintViolation(db.Where("booking_id = ?", bookingID).Order("step ASC").Find(&steps).Error)
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}
