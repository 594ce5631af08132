package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// ReminderOffset names how long before the appointment a reminder fires.
type ReminderOffset string

const (
	Reminder24h ReminderOffset = "24h"
	Reminder1h  ReminderOffset = "1h"
)

// ReminderOffsets are registered for every booking, earliest first.
var ReminderOffsets = []ReminderOffset{Reminder24h, Reminder1h}

// Duration of the offset.
func (o ReminderOffset) Duration() time.Duration {
	switch o {
	case Reminder24h:
		return 24 * time.Hour
	case Reminder1h:
		return time.Hour
	}
	return 0
}

// ReminderStatus is the lifecycle of a registered reminder.
type ReminderStatus string

const (
	ReminderScheduled ReminderStatus = "Scheduled"
	ReminderCancelled ReminderStatus = "Cancelled"
	ReminderFired     ReminderStatus = "Fired"
)

// Reminder is an intent handed to the external scheduler.
type Reminder struct {
	ID          string         `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string         `json:"workspace_id" gorm:"type:text;not null"`
	BookingID   string         `json:"booking_id" gorm:"type:text;not null;uniqueIndex:idx_reminders_booking_offset,priority:1"`
	Offset      ReminderOffset `json:"offset" gorm:"type:text;not null;uniqueIndex:idx_reminders_booking_offset,priority:2"`
	FireAt      time.Time      `json:"fire_at" gorm:"not null;index"`
	Status      ReminderStatus `json:"status" gorm:"type:text;not null;index"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Reminder model, respecting the Namer.
func (Reminder) TableName(namer schema.Namer) string {
	return namer.TableName("reminders")
}
