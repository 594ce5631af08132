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

// containsJSON encodes a single id for a jsonb @> containment check.
func containsJSON(id string) string {
	return string(utils.MustMarshalJSON([]string{id}))
}

// UpsertResource creates or replaces an inventory item.
func (r *PostgresRepo) UpsertResource(ctx context.Context, resource model.Resource) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}
	resource.WorkspaceID = workspaceID
	return r.withTx(ctx, "UpsertResource", "resource", func(tx *gorm.DB) error {
		return checkConstraintViolation(tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "quantity", "threshold", "unit", "linked_service_ids", "updated_at"}),
		}).Create(&resource).Error)
	})
}

// FindResource finds an inventory item by ID.
func (r *PostgresRepo) FindResource(ctx context.Context, id string) (*model.Resource, error) {
	var resource model.Resource
	err := r.withRead(ctx, "FindResource", "resource", func(db *gorm.DB) error {
		if err := db.Where("id = ?", id).First(&resource).Error; err != nil {
			return notFoundOr(err, "resource_id "+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// ListResources returns every inventory item ordered by name.
func (r *PostgresRepo) ListResources(ctx context.Context) ([]model.Resource, error) {
	var resources []model.Resource
	err := r.withRead(ctx, "ListResources", "resource", func(db *gorm.DB) error {
		return checkConstraintViolation(db.Order("name ASC").Find(&resources).Error)
	})
	if err != nil {
		return nil, err
	}
	return resources, nil
}

// DeductForService takes one unit of every resource linked to serviceID while
// holding row locks on them. Quantities stop at zero. All linked resources are
// returned, including those that were already empty.
func (r *PostgresRepo) DeductForService(ctx context.Context, serviceID string) ([]model.Resource, error) {
	if serviceID == "" {
		return nil, fmt.Errorf("%w: service id is required", apperrors.ErrValidation)
	}

	var touched []model.Resource
	err := r.withTx(ctx, "DeductForService", "resource", func(tx *gorm.DB) error {
		var err error
		touched, err = deductLinked(tx, serviceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// DeductForBooking completes the running deduction step of bookingID and
// deducts the linked resources in the same transaction. deducted is false, and
// nothing is touched, when the step is no longer running.
func (r *PostgresRepo) DeductForBooking(ctx context.Context, bookingID, serviceID string) ([]model.Resource, bool, error) {
	if serviceID == "" {
		return nil, false, fmt.Errorf("%w: service id is required", apperrors.ErrValidation)
	}

	var (
		touched  []model.Resource
		deducted bool
	)
	err := r.withTx(ctx, "DeductForBooking", "resource", func(tx *gorm.DB) error {
		touched, deducted = nil, false
		res := tx.Model(&model.AutomationStep{}).
			Where("booking_id = ? AND step = ? AND status = ?", bookingID, model.StepDeduction, model.StepRunning).
			Updates(map[string]interface{}{"status": model.StepSucceeded, "error": "", "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		var err error
		touched, err = deductLinked(tx, serviceID)
		deducted = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return touched, deducted, nil
}

func deductLinked(tx *gorm.DB, serviceID string) ([]model.Resource, error) {
	var linked []model.Resource
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("linked_service_ids @> ?::jsonb", containsJSON(serviceID)).
		Order("id ASC").Find(&linked).Error; err != nil {
		return nil, checkConstraintViolation(err)
	}

	touched := make([]model.Resource, 0, len(linked))
	for i := range linked {
		res := &linked[i]
		if res.Deduct() {
			if err := tx.Model(&model.Resource{}).Where("id = ?", res.ID).
				Update("quantity", res.Quantity).Error; err != nil {
				return nil, checkConstraintViolation(err)
			}
		}
		touched = append(touched, *res)
	}
	return touched, nil
}
