package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

// UpsertReminder registers the reminder for (booking, offset). An existing
// Scheduled or Cancelled row takes the new fire time and becomes Scheduled; a
// Fired row is returned untouched.
func (r *PostgresRepo) UpsertReminder(ctx context.Context, reminder model.Reminder) (*model.Reminder, error) {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return nil, err
	}
	reminder.WorkspaceID = workspaceID

	var stored model.Reminder
	err = r.withTx(ctx, "UpsertReminder", "reminder", func(tx *gorm.DB) error {
		stored = model.Reminder{}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("booking_id = ? AND \"offset\" = ?", reminder.BookingID, reminder.Offset).First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stored = reminder
			return checkConstraintViolation(tx.Create(&stored).Error)
		}
		if err != nil {
			return checkConstraintViolation(err)
		}
		if stored.Status == model.ReminderFired {
			return nil
		}
		stored.FireAt = reminder.FireAt
		stored.Status = model.ReminderScheduled
		return checkConstraintViolation(tx.Model(&model.Reminder{}).Where("id = ?", stored.ID).Updates(map[string]interface{}{
			"fire_at":    stored.FireAt,
			"status":     stored.Status,
			"updated_at": time.Now().UTC(),
		}).Error)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// FindReminder finds a reminder by ID.
func (r *PostgresRepo) FindReminder(ctx context.Context, id string) (*model.Reminder, error) {
	var reminder model.Reminder
	err := r.withRead(ctx, "FindReminder", "reminder", func(db *gorm.DB) error {
		if err := db.Where("id = ?", id).First(&reminder).Error; err != nil {
			return notFoundOr(err, "reminder_id "+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// ListRemindersByBooking returns a booking's reminders, earliest first.
func (r *PostgresRepo) ListRemindersByBooking(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.withRead(ctx, "ListRemindersByBooking", "reminder", func(db *gorm.DB) error {
		return checkConstraintViolation(db.Where("booking_id = ?", bookingID).Order("fire_at ASC").Find(&reminders).Error)
	})
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

// CancelRemindersForBooking cancels every Scheduled reminder of the booking and
// returns the ones it cancelled.
func (r *PostgresRepo) CancelRemindersForBooking(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	var cancelled []model.Reminder
	err := r.withTx(ctx, "CancelRemindersForBooking", "reminder", func(tx *gorm.DB) error {
		cancelled = nil
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("booking_id = ? AND status = ?", bookingID, model.ReminderScheduled).
			Order("fire_at ASC").Find(&cancelled).Error; err != nil {
			return checkConstraintViolation(err)
		}
		if len(cancelled) == 0 {
			return nil
		}
		ids := make([]string, 0, len(cancelled))
		for i := range cancelled {
			cancelled[i].Status = model.ReminderCancelled
			ids = append(ids, cancelled[i].ID)
		}
		return checkConstraintViolation(tx.Model(&model.Reminder{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"status":     model.ReminderCancelled,
			"updated_at": time.Now().UTC(),
		}).Error)
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// MarkReminderFired records that the scheduler fired a reminder. Cancelled and
// already fired reminders are returned unchanged so callers can skip them.
func (r *PostgresRepo) MarkReminderFired(ctx context.Context, id string) (*model.Reminder, bool, error) {
	var (
		reminder model.Reminder
		fired    bool
	)
	err := r.withTx(ctx, "MarkReminderFired", "reminder", func(tx *gorm.DB) error {
		reminder = model.Reminder{}
		fired = false
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&reminder).Error; err != nil {
			return notFoundOr(err, "reminder_id "+id)
		}
		if reminder.Status != model.ReminderScheduled {
			return nil
		}
		reminder.Status = model.ReminderFired
		fired = true
		return checkConstraintViolation(tx.Model(&model.Reminder{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":     model.ReminderFired,
			"updated_at": time.Now().UTC(),
		}).Error)
	})
	if err != nil {
		return nil, false, err
	}
	return &reminder, fired, nil
}
