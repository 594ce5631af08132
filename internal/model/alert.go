package model

import (
	"fmt"
	"time"

	"gorm.io/gorm/schema"
)

// AlertType groups alerts by the part of the business they concern.
type AlertType string

const (
	AlertBooking      AlertType = "Booking"
	AlertConversation AlertType = "Conversation"
	AlertForms        AlertType = "Forms"
	AlertInventory    AlertType = "Inventory"
	AlertSystem       AlertType = "System"
	AlertIntegration  AlertType = "Integration"
)

// AlertSeverity orders alerts by urgency.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "Critical"
	SeverityWarning  AlertSeverity = "Warning"
	SeverityInfo     AlertSeverity = "Info"
)

// Rank is higher for more urgent severities.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Escalates reports whether moving from s to next raises urgency.
func (s AlertSeverity) Escalates(next AlertSeverity) bool {
	return next.Rank() > s.Rank()
}

// RelatedEntity points an alert at the record it is about.
type RelatedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Alert is a dashboard notification. At most one undismissed alert exists per
// dedup key. ClearedAt is set once the condition behind the alert went away;
// until then a dismissal keeps the key quiet.
type Alert struct {
	ID                string        `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID       string        `json:"workspace_id" gorm:"type:text;not null"`
	Type              AlertType     `json:"type" gorm:"type:text;not null;index"`
	Severity          AlertSeverity `json:"severity" gorm:"type:text;not null;index"`
	Message           string        `json:"message" gorm:"type:text;not null"`
	Read              bool          `json:"read" gorm:"not null;default:false"`
	Timestamp         time.Time     `json:"timestamp" gorm:"not null;index"`
	RelatedEntityType string        `json:"-" gorm:"type:text"`
	RelatedEntityID   string        `json:"-" gorm:"type:text"`
	DedupKey          string        `json:"dedup_key" gorm:"type:text;not null;uniqueIndex:idx_alerts_dedup_open,where:dismissed_at IS NULL"`
	DismissedAt       *time.Time    `json:"dismissed_at,omitempty" gorm:"index"`
	ClearedAt         *time.Time    `json:"cleared_at,omitempty" gorm:"index"`
	CreatedAt         time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time     `json:"updated_at" gorm:"autoUpdateTime"`

	Related *RelatedEntity `json:"related_entity,omitempty" gorm:"-"`
}

// TableName specifies the table name for the Alert model, respecting the Namer.
func (Alert) TableName(namer schema.Namer) string {
	return namer.TableName("alerts")
}

// FillRelated populates the JSON view of the related entity from its columns.
func (a *Alert) FillRelated() {
	if a.RelatedEntityType == "" && a.RelatedEntityID == "" {
		a.Related = nil
		return
	}
	a.Related = &RelatedEntity{Type: a.RelatedEntityType, ID: a.RelatedEntityID}
}

// AlertDedupKey is a pure function of the alert type and related entity.
func AlertDedupKey(t AlertType, related *RelatedEntity) string {
	if related == nil {
		return fmt.Sprintf("%s::", t)
	}
	return fmt.Sprintf("%s:%s:%s", t, related.Type, related.ID)
}

// AlertCandidate is an alert an evaluator wants to exist.
type AlertCandidate struct {
	Type     AlertType
	Severity AlertSeverity
	Message  string
	Related  *RelatedEntity
}

// DedupKey of the candidate.
func (c AlertCandidate) DedupKey() string {
	return AlertDedupKey(c.Type, c.Related)
}

// AlertFilter narrows ListAlerts. Dismissed alerts are never listed.
type AlertFilter struct {
	Type       AlertType     `query:"type" validate:"omitempty,oneof=Booking Conversation Forms Inventory System Integration"`
	Severity   AlertSeverity `query:"severity" validate:"omitempty,oneof=Critical Warning Info"`
	UnreadOnly bool          `query:"unread"`
	Limit      int           `query:"limit" validate:"omitempty,gte=1,lte=500"`
}
