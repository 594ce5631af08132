package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// ExhaustedEvent is an event that kept failing after every DLQ retry. It is
// kept for manual inspection.
type ExhaustedEvent struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	CreatedAt       time.Time      `json:"created_at"`
	WorkspaceID     string         `json:"workspace_id" gorm:"not null"`
	SourceSubject   string         `json:"source_subject" gorm:"index;not null"`
	LastError       string         `json:"last_error"`
	RetryCount      int            `json:"retry_count"`
	EventTimestamp  time.Time      `json:"event_timestamp" gorm:"index"`
	DLQPayload      datatypes.JSON `json:"dlq_payload" gorm:"type:jsonb;not null"`
	OriginalPayload datatypes.JSON `json:"original_payload" gorm:"type:jsonb"`
	Resolved        bool           `json:"resolved" gorm:"index;default:false"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty" gorm:"index"`
	Notes           string         `json:"notes,omitempty" gorm:"type:text"`
}

// TableName specifies the table name for the ExhaustedEvent model, respecting the Namer.
func (ExhaustedEvent) TableName(namer schema.Namer) string {
	return namer.TableName("exhausted_events")
}
