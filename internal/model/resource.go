package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Resource is an inventory item consumed by linked services.
type Resource struct {
	ID               string                      `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID      string                      `json:"workspace_id" gorm:"type:text;not null"`
	Name             string                      `json:"name" gorm:"type:text;not null" validate:"required,max=200"`
	Quantity         int                         `json:"quantity" gorm:"not null;check:chk_resources_quantity,quantity >= 0" validate:"gte=0"`
	Threshold        int                         `json:"threshold" gorm:"not null;default:0" validate:"gte=0"`
	Unit             string                      `json:"unit,omitempty" gorm:"type:text"`
	LinkedServiceIDs datatypes.JSONSlice[string] `json:"linked_service_ids"`
	CreatedAt        time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Resource model, respecting the Namer.
func (Resource) TableName(namer schema.Namer) string {
	return namer.TableName("resources")
}

// Deduct consumes one unit. Quantity never goes below zero; the return value
// says whether anything was taken.
func (r *Resource) Deduct() bool {
	if r.Quantity <= 0 {
		r.Quantity = 0
		return false
	}
	r.Quantity--
	return true
}

// LinkedTo reports whether the resource is consumed by serviceID.
func (r *Resource) LinkedTo(serviceID string) bool {
	for _, id := range r.LinkedServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// StockSeverity classifies the current stock level. ok is false when stock is healthy.
func (r *Resource) StockSeverity() (severity AlertSeverity, ok bool) {
	switch {
	case r.Quantity <= 0:
		return SeverityCritical, true
	case r.Quantity <= r.Threshold:
		return SeverityWarning, true
	default:
		return "", false
	}
}
