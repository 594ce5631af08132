package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Workspace is the single business this deployment serves. Activation is one-way.
type Workspace struct {
	ID          string     `json:"id" gorm:"primaryKey;type:text"`
	Name        string     `json:"name" gorm:"type:text"`
	Timezone    string     `json:"timezone" gorm:"type:text;not null;default:UTC"`
	Activated   bool       `json:"activated" gorm:"not null;default:false"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Workspace model, respecting the Namer.
func (Workspace) TableName(namer schema.Namer) string {
	return namer.TableName("workspaces")
}

// Integration records whether a delivery channel is connected.
type Integration struct {
	WorkspaceID string    `json:"workspace_id" gorm:"primaryKey;type:text"`
	Channel     Channel   `json:"channel" gorm:"primaryKey;type:text"`
	Connected   bool      `json:"connected" gorm:"not null;default:false"`
	Provider    string    `json:"provider,omitempty" gorm:"type:text"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Integration model, respecting the Namer.
func (Integration) TableName(namer schema.Namer) string {
	return namer.TableName("integrations")
}

// Service is a bookable service (booking type).
type Service struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string    `json:"workspace_id" gorm:"type:text;not null"`
	Name        string    `json:"name" gorm:"type:text;not null" validate:"required,max=200"`
	Duration    int       `json:"duration" gorm:"not null" validate:"gte=5,lte=1440"`
	Location    string    `json:"location" gorm:"type:text"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Service model, respecting the Namer.
func (Service) TableName(namer schema.Namer) string {
	return namer.TableName("services")
}

// AvailabilityConfig holds the bookable weekdays and slot labels.
type AvailabilityConfig struct {
	WorkspaceID string                      `json:"workspace_id" gorm:"primaryKey;type:text"`
	DaysOfWeek  datatypes.JSONSlice[string] `json:"days_of_week" validate:"dive,weekday"`
	TimeSlots   datatypes.JSONSlice[string] `json:"time_slots" validate:"dive,time_slot"`
	UpdatedAt   time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the AvailabilityConfig model, respecting the Namer.
func (AvailabilityConfig) TableName(namer schema.Namer) string {
	return namer.TableName("availability")
}

// Configured reports whether at least one day and one slot are set.
func (a AvailabilityConfig) Configured() bool {
	return len(a.DaysOfWeek) > 0 && len(a.TimeSlots) > 0
}

// WorkspaceSnapshot is the read-only view of workspace configuration handed to
// each orchestration call.
type WorkspaceSnapshot struct {
	Workspace    Workspace          `json:"workspace"`
	Integrations []Integration      `json:"integrations"`
	Services     []Service          `json:"services"`
	Availability AvailabilityConfig `json:"availability"`
	LoadedAt     time.Time          `json:"loaded_at"`
}

// Service looks up a configured service by id.
func (s *WorkspaceSnapshot) Service(id string) (Service, bool) {
	for _, svc := range s.Services {
		if svc.ID == id {
			return svc, true
		}
	}
	return Service{}, false
}

// ChannelConnected reports whether the channel's integration is connected.
func (s *WorkspaceSnapshot) ChannelConnected(ch Channel) bool {
	for _, in := range s.Integrations {
		if in.Channel == ch && in.Connected {
			return true
		}
	}
	return false
}

// Checklist derives the activation checklist from the snapshot.
func (s *WorkspaceSnapshot) Checklist() ActivationChecklist {
	return ActivationChecklist{
		HasChannel:      s.ChannelConnected(ChannelEmail) || s.ChannelConnected(ChannelSMS),
		HasBookingType:  len(s.Services) > 0,
		HasAvailability: s.Availability.Configured(),
	}
}

// ActivationChecklist gates going live. It is derived, never stored.
type ActivationChecklist struct {
	HasChannel      bool `json:"has_channel"`
	HasBookingType  bool `json:"has_booking_type"`
	HasAvailability bool `json:"has_availability"`
}

// Complete is true only when every item is satisfied.
func (c ActivationChecklist) Complete() bool {
	return c.HasChannel && c.HasBookingType && c.HasAvailability
}

// Missing lists the unmet items in checklist order.
func (c ActivationChecklist) Missing() []string {
	missing := make([]string, 0, 3)
	if !c.HasChannel {
		missing = append(missing, "channel")
	}
	if !c.HasBookingType {
		missing = append(missing, "booking_type")
	}
	if !c.HasAvailability {
		missing = append(missing, "availability")
	}
	return missing
}

// ActivationResult is returned by every activation attempt. A blocked attempt
// is a result, not an error.
type ActivationResult struct {
	Activated     bool                `json:"activated"`
	AlreadyActive bool                `json:"already_active,omitempty"`
	Checklist     ActivationChecklist `json:"checklist"`
	Missing       []string            `json:"missing,omitempty"`
	ActivatedAt   *time.Time          `json:"activated_at,omitempty"`
}
