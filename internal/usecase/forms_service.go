package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/internal/validator"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// FormsService sends the intake forms linked to a booked service.
type FormsService struct {
	forms     storage.FormRepo
	engine    *MessagingEngine
	dashboard *DashboardService
	now       Clock
}

// NewFormsService creates the forms service.
func NewFormsService(forms storage.FormRepo, engine *MessagingEngine, dashboard *DashboardService, now Clock) *FormsService {
	return &FormsService{forms: forms, engine: engine, dashboard: dashboard, now: now}
}

// SendFormsForBooking records one submission per active template linked to
// the booked service and, when any exist, posts a single form reminder.
// Re-running it neither duplicates submissions nor resets their state.
func (s *FormsService) SendFormsForBooking(ctx context.Context, booking *model.Booking, conv *model.Conversation) ([]model.FormSubmission, error) {
	templates, err := s.forms.ListActiveTemplatesForService(ctx, booking.ServiceID)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return []model.FormSubmission{}, nil
	}

	now := s.now()
	sent := make([]model.FormSubmission, 0, len(templates))
	created := 0
	for _, t := range templates {
		sub, isNew, err := s.forms.UpsertSubmission(ctx, model.FormSubmission{
			ID:           uuid.NewString(),
			WorkspaceID:  booking.WorkspaceID,
			TemplateID:   t.ID,
			TemplateName: t.Name,
			BookingID:    booking.ID,
			ContactID:    booking.ContactID,
			ContactName:  booking.CustomerName,
			Status:       model.FormSent,
			SentAt:       &now,
		})
		if err != nil {
			return sent, err
		}
		if isNew {
			created++
		}
		sent = append(sent, *sub)
	}
	logger.FromContext(ctx).Info("Forms sent for booking",
		zap.String("booking_id", booking.ID),
		zap.Int("forms", len(sent)),
		zap.Int("new", created),
	)
	if created > 0 {
		s.dashboard.Invalidate(ctx)
	}

	_, err = s.engine.SendFormReminder(ctx, conv, len(sent))
	if errors.Is(err, ErrAutomationPaused) {
		logger.FromContext(ctx).Info("Automation paused, form reminder not posted", zap.String("booking_id", booking.ID))
		return sent, nil
	}
	return sent, err
}

// PendingFormsForBooking lists the forms the customer still owes.
func (s *FormsService) PendingFormsForBooking(ctx context.Context, bookingID string) ([]model.FormSubmission, error) {
	all, err := s.forms.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	pending := make([]model.FormSubmission, 0, len(all))
	for _, sub := range all {
		if sub.Outstanding() {
			pending = append(pending, sub)
		}
	}
	return pending, nil
}

// CompleteFormSubmission records the customer's completed form.
func (s *FormsService) CompleteFormSubmission(ctx context.Context, id string) (*model.FormSubmission, error) {
	sub, err := s.forms.Complete(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.dashboard.Invalidate(ctx)
	return sub, nil
}

// UpsertFormTemplate creates or replaces an intake form template.
func (s *FormsService) UpsertFormTemplate(ctx context.Context, t model.FormTemplate) (*model.FormTemplate, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	t.Name = strings.TrimSpace(t.Name)
	if err := validator.Validate(t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.WorkspaceID = workspaceID
	t.LinkedBookingTypes = dedupe(t.LinkedBookingTypes)

	if err := s.forms.UpsertTemplate(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}
