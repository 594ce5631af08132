package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/calendar"
	"gitlab.com/careops/api/careops-orchestrator/internal/jetstream"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// ReminderScheduler registers reminder intents with the external scheduler.
// It never waits for a reminder to fire.
type ReminderScheduler struct {
	reminders storage.ReminderRepo
	publisher jetstream.Publisher
	settings  Settings
	now       Clock
}

// NewReminderScheduler creates the scheduler.
func NewReminderScheduler(reminders storage.ReminderRepo, publisher jetstream.Publisher, settings Settings, now Clock) *ReminderScheduler {
	return &ReminderScheduler{reminders: reminders, publisher: publisher, settings: settings, now: now}
}

// ScheduleReminders registers the 24h and 1h reminders of booking. Reminders
// whose fire time has passed are skipped; re-running refreshes the existing
// rows and JetStream drops the duplicate intents.
func (s *ReminderScheduler) ScheduleReminders(ctx context.Context, booking *model.Booking) ([]model.Reminder, error) {
	log := logger.FromContext(ctx).With(zap.String("booking_id", booking.ID))
	if booking.Status == model.BookingCancelled {
		return []model.Reminder{}, nil
	}

	at, err := calendar.AppointmentTime(booking.Date.Time, booking.Time, s.settings.location())
	if err != nil {
		return nil, fmt.Errorf("%w: booking %s: %w", apperrors.ErrValidation, booking.ID, err)
	}
	now := s.now()
	subject := model.V1RemindersSchedule.Subject(s.settings.WorkspaceID)

	scheduled := make([]model.Reminder, 0, len(model.ReminderOffsets))
	for _, offset := range model.ReminderOffsets {
		fireAt := at.Add(-offset.Duration()).UTC()
		if !fireAt.After(now) {
			log.Debug("Reminder time already passed", zap.String("offset", string(offset)), zap.Time("fire_at", fireAt))
			observer.IncReminders(s.settings.WorkspaceID, "skipped", 1)
			continue
		}

		saved, err := s.reminders.Upsert(ctx, model.Reminder{
			ID:          uuid.NewString(),
			WorkspaceID: booking.WorkspaceID,
			BookingID:   booking.ID,
			Offset:      offset,
			FireAt:      fireAt,
			Status:      model.ReminderScheduled,
		})
		if err != nil {
			return scheduled, err
		}
		if saved.Status != model.ReminderScheduled {
			continue
		}

		if err := s.publisher.PublishJSON(ctx, subject, saved.ID, intentFor(saved)); err != nil {
			return scheduled, err
		}
		scheduled = append(scheduled, *saved)
	}

	observer.IncReminders(s.settings.WorkspaceID, "scheduled", len(scheduled))
	log.Info("Reminders scheduled", zap.Int("count", len(scheduled)))
	return scheduled, nil
}

// CancelReminders cancels every scheduled reminder of the booking and tells
// the external scheduler.
func (s *ReminderScheduler) CancelReminders(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	cancelled, err := s.reminders.CancelForBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	subject := model.V1RemindersCancel.Subject(s.settings.WorkspaceID)
	for i := range cancelled {
		r := &cancelled[i]
		if err := s.publisher.PublishJSON(ctx, subject, r.ID+":cancel", intentFor(r)); err != nil {
			return cancelled, err
		}
	}

	observer.IncReminders(s.settings.WorkspaceID, "cancelled", len(cancelled))
	logger.FromContext(ctx).Info("Reminders cancelled", zap.String("booking_id", bookingID), zap.Int("count", len(cancelled)))
	return cancelled, nil
}

// ListReminders returns the reminders registered for a booking.
func (s *ReminderScheduler) ListReminders(ctx context.Context, bookingID string) ([]model.Reminder, error) {
	return s.reminders.ListByBooking(ctx, bookingID)
}

// GetReminder loads one reminder.
func (s *ReminderScheduler) GetReminder(ctx context.Context, reminderID string) (*model.Reminder, error) {
	return s.reminders.FindByID(ctx, reminderID)
}

// MarkFired flips a scheduled reminder to Fired. fired is false when the
// reminder was cancelled or already fired.
func (s *ReminderScheduler) MarkFired(ctx context.Context, reminderID string) (*model.Reminder, bool, error) {
	r, fired, err := s.reminders.MarkFired(ctx, reminderID)
	if err != nil {
		return nil, false, err
	}
	if fired {
		observer.IncReminders(s.settings.WorkspaceID, "fired", 1)
	}
	return r, fired, nil
}

func intentFor(r *model.Reminder) model.ReminderIntent {
	return model.ReminderIntent{
		ReminderID:  r.ID,
		BookingID:   r.BookingID,
		WorkspaceID: r.WorkspaceID,
		Offset:      r.Offset,
		FireAt:      r.FireAt,
	}
}
