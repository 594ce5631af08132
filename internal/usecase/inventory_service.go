package usecase

import (
	"context"
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

// InventoryService consumes linked resources and keeps their stock alerts current.
type InventoryService struct {
	resources storage.ResourceRepo
	alerts    *AlertService
}

// NewInventoryService creates the inventory service.
func NewInventoryService(resources storage.ResourceRepo, alerts *AlertService) *InventoryService {
	return &InventoryService{resources: resources, alerts: alerts}
}

// DeductResourceUsage takes one unit from every resource linked to serviceID,
// never going below zero, then re-evaluates their stock alerts. The deduction
// is committed before alerts are evaluated; an alert error is returned
// alongside the deducted resources.
func (s *InventoryService) DeductResourceUsage(ctx context.Context, serviceID string) ([]model.Resource, error) {
	if strings.TrimSpace(serviceID) == "" {
		return nil, fmt.Errorf("%w: service_id is required", apperrors.ErrValidation)
	}
	resources, err := s.resources.DeductForService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Deducted linked resources",
		zap.String("service_id", serviceID),
		zap.Int("resources", len(resources)),
	)
	return resources, s.evaluate(ctx, resources)
}

// DeductForBooking runs the claimed deduction step of booking. The step is
// completed in the transaction that moves the stock, so a booking deducts at
// most once. Alerts are evaluated after the commit and a failure there is only
// logged; the sweeper re-evaluates stock on its next tick.
func (s *InventoryService) DeductForBooking(ctx context.Context, booking *model.Booking) ([]model.Resource, error) {
	log := logger.FromContext(ctx).With(zap.String("booking_id", booking.ID), zap.String("service_id", booking.ServiceID))
	resources, deducted, err := s.resources.DeductForBooking(ctx, booking.ID, booking.ServiceID)
	if err != nil {
		return nil, err
	}
	if !deducted {
		log.Info("Deduction already completed")
		return nil, nil
	}
	log.Info("Deducted linked resources", zap.Int("resources", len(resources)))
	if err := s.evaluate(ctx, resources); err != nil {
		log.Warn("Stock alerts not evaluated after deduction", zap.Error(err))
	}
	return resources, nil
}

// UpsertResource creates or replaces an inventory item and evaluates its stock.
func (s *InventoryService) UpsertResource(ctx context.Context, r model.Resource) (*model.Resource, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	r.Name = strings.TrimSpace(r.Name)
	if err := validator.Validate(r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.WorkspaceID = workspaceID
	r.LinkedServiceIDs = dedupe(r.LinkedServiceIDs)

	if err := s.resources.Upsert(ctx, r); err != nil {
		return nil, err
	}
	if _, err := s.alerts.EvaluateResource(ctx, r); err != nil {
		return &r, err
	}
	return &r, nil
}

// ListResources returns every inventory item.
func (s *InventoryService) ListResources(ctx context.Context) ([]model.Resource, error) {
	return s.resources.List(ctx)
}

// EvaluateAll re-checks the stock alert of every resource.
func (s *InventoryService) EvaluateAll(ctx context.Context) error {
	resources, err := s.resources.List(ctx)
	if err != nil {
		return err
	}
	return s.evaluate(ctx, resources)
}

func (s *InventoryService) evaluate(ctx context.Context, resources []model.Resource) error {
	for _, r := range resources {
		if _, err := s.alerts.EvaluateResource(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
