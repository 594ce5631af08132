package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/calendar"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/validator"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// Related entity types used in alert dedup keys.
const (
	EntityBooking      = "booking"
	EntityConversation = "conversation"
	EntityResource     = "resource"
	EntityChannel      = "channel"
)

// AlertService raises, resolves and lists deduplicated alerts.
type AlertService struct {
	alerts    storage.AlertRepo
	forms     storage.FormRepo
	dashboard *DashboardService
	settings  Settings
	now       Clock
}

// NewAlertService creates the alert service.
func NewAlertService(repos storage.Repositories, dashboard *DashboardService, settings Settings, now Clock) *AlertService {
	return &AlertService{
		alerts:    repos.Alerts,
		forms:     repos.Forms,
		dashboard: dashboard,
		settings:  settings,
		now:       now,
	}
}

// Raise makes sure an open alert exists for the candidate's dedup key. It
// returns nil when staff dismissed the alert and its condition has not
// cleared since.
func (s *AlertService) Raise(ctx context.Context, candidate model.AlertCandidate) (*model.Alert, error) {
	alert, outcome, err := s.alerts.Raise(ctx, candidate, s.now())
	if err != nil {
		return nil, err
	}
	switch outcome {
	case storage.AlertUnchanged:
		return alert, nil
	case storage.AlertSuppressed:
		logger.FromContext(ctx).Debug("Alert dismissed until its condition clears", zap.String("dedup_key", alert.DedupKey))
		return nil, nil
	}

	if outcome == storage.AlertCreated || outcome == storage.AlertEscalated {
		observer.IncAlertRaised(s.settings.WorkspaceID, string(alert.Type), string(alert.Severity))
	}
	logger.FromContext(ctx).Info("Alert raised",
		zap.String("dedup_key", alert.DedupKey),
		zap.String("severity", string(alert.Severity)),
		zap.String("outcome", string(outcome)),
	)
	s.dashboard.Invalidate(ctx)
	return alert, nil
}

// Resolve clears the alert for key, if any, so a recurrence raises fresh even
// after a dismissal.
func (s *AlertService) Resolve(ctx context.Context, key string) error {
	resolved, err := s.alerts.Resolve(ctx, key, s.now())
	if err != nil {
		return err
	}
	if resolved {
		logger.FromContext(ctx).Info("Alert resolved", zap.String("dedup_key", key))
		s.dashboard.Invalidate(ctx)
	}
	return nil
}

// EvaluateResource raises or resolves the stock alert of one resource. It
// returns the open alert, or nil when stock is healthy or the alert is
// dismissed.
func (s *AlertService) EvaluateResource(ctx context.Context, r model.Resource) (*model.Alert, error) {
	related := &model.RelatedEntity{Type: EntityResource, ID: r.ID}
	severity, low := r.StockSeverity()
	if !low {
		return nil, s.Resolve(ctx, model.AlertDedupKey(model.AlertInventory, related))
	}

	message := fmt.Sprintf("Out of stock: %s", r.Name)
	if severity == model.SeverityWarning {
		message = fmt.Sprintf("Low stock: %s (%d left, threshold %d)", r.Name, r.Quantity, r.Threshold)
	}
	return s.Raise(ctx, model.AlertCandidate{
		Type:     model.AlertInventory,
		Severity: severity,
		Message:  message,
		Related:  related,
	})
}

// GenerateAlertsForBooking raises the booking and forms alerts that apply to
// booking right now.
func (s *AlertService) GenerateAlertsForBooking(ctx context.Context, booking *model.Booking) ([]model.Alert, error) {
	if booking.Status == model.BookingCancelled {
		return []model.Alert{}, nil
	}
	at, err := calendar.AppointmentTime(booking.Date.Time, booking.Time, s.settings.location())
	if err != nil {
		return nil, fmt.Errorf("%w: booking %s: %w", apperrors.ErrValidation, booking.ID, err)
	}
	now := s.now()
	until := at.Sub(now)
	related := &model.RelatedEntity{Type: EntityBooking, ID: booking.ID}

	submissions, err := s.forms.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	pending := 0
	for i := range submissions {
		if submissions[i].Outstanding() {
			pending++
		}
	}

	var candidates []model.AlertCandidate
	if until > 0 && until <= 24*time.Hour {
		candidates = append(candidates, model.AlertCandidate{
			Type:     model.AlertBooking,
			Severity: model.SeverityInfo,
			Message:  fmt.Sprintf("Upcoming booking: %s - %s", booking.CustomerName, booking.Service),
			Related:  related,
		})
	}
	switch {
	case pending == 0:
		if err := s.Resolve(ctx, model.AlertDedupKey(model.AlertForms, related)); err != nil {
			return nil, err
		}
	case until <= 0:
		candidates = append(candidates, model.AlertCandidate{
			Type:     model.AlertForms,
			Severity: model.SeverityCritical,
			Message:  fmt.Sprintf("Overdue: %d form(s) still pending for %s", pending, booking.CustomerName),
			Related:  related,
		})
	case until <= 48*time.Hour:
		candidates = append(candidates, model.AlertCandidate{
			Type:     model.AlertForms,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("%d form(s) pending for %s", pending, booking.CustomerName),
			Related:  related,
		})
	}

	raised := make([]model.Alert, 0, len(candidates))
	for _, c := range candidates {
		alert, err := s.Raise(ctx, c)
		if err != nil {
			return raised, err
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}
	return raised, nil
}

// NotifyDeliveryFailure raises the per-channel integration alert. It is the
// dispatcher's failure hook, so it only logs.
func (s *AlertService) NotifyDeliveryFailure(ctx context.Context, msg model.Message, reason string) {
	_, err := s.Raise(ctx, model.AlertCandidate{
		Type:     model.AlertIntegration,
		Severity: model.SeverityWarning,
		Message:  fmt.Sprintf("%s delivery failed: %s", msg.Channel, reason),
		Related:  &model.RelatedEntity{Type: EntityChannel, ID: string(msg.Channel)},
	})
	if err != nil {
		logger.FromContext(ctx).Error("Failed to raise delivery alert", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// ListAlerts returns undismissed alerts, newest first.
func (s *AlertService) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	if err := validator.Validate(filter); err != nil {
		return nil, err
	}
	return s.alerts.List(ctx, filter)
}

// MarkAlertRead marks the alert read. The cached unread counter moves first
// and is restored if the write fails.
func (s *AlertService) MarkAlertRead(ctx context.Context, id string) Result[*model.Alert] {
	alert, err := s.alerts.FindByID(ctx, id)
	if err != nil {
		return Fail[*model.Alert](err)
	}
	if alert.Read {
		return Ok(alert)
	}

	staged := s.dashboard.adjust(ctx, func(m *model.DashboardMetrics) { m.DecUnreadAlerts() })
	alert, err = s.alerts.MarkRead(ctx, id)
	if err != nil {
		staged.rollback(ctx)
		return Fail[*model.Alert](err)
	}
	return Ok(alert)
}

// DismissAlert hides the alert from every read path.
func (s *AlertService) DismissAlert(ctx context.Context, id string) error {
	if err := s.alerts.Dismiss(ctx, id, s.now()); err != nil {
		return err
	}
	s.dashboard.Invalidate(ctx)
	return nil
}
