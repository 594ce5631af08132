package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// ConversationStatus is the staff-facing state of a thread.
type ConversationStatus string

const (
	ConversationNew    ConversationStatus = "New"
	ConversationOpen   ConversationStatus = "Open"
	ConversationClosed ConversationStatus = "Closed"
)

// AutomationStatus says whether system messages may still be sent on a thread.
type AutomationStatus string

const (
	AutomationNone   AutomationStatus = "None"
	AutomationActive AutomationStatus = "Active"
	AutomationPaused AutomationStatus = "Paused"
)

// Conversation is the single thread kept per contact.
type Conversation struct {
	ID                string             `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID       string             `json:"workspace_id" gorm:"type:text;not null"`
	ContactID         string             `json:"contact_id" gorm:"type:text;not null;uniqueIndex:idx_conversations_contact"`
	ContactName       string             `json:"contact_name" gorm:"type:text"`
	Status            ConversationStatus `json:"status" gorm:"type:text;not null;default:New"`
	AutomationStatus  AutomationStatus   `json:"automation_status" gorm:"type:text;not null;default:None"`
	RelatedBookingID  *string            `json:"related_booking_id,omitempty" gorm:"type:text;index"`
	MessageCount      int64              `json:"message_count" gorm:"not null;default:0"`
	UnreadCount       int                `json:"unread_count" gorm:"not null;default:0"`
	LastMessageSender Sender             `json:"last_message_sender,omitempty" gorm:"type:text;index"`
	LastMessageAt     *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time          `json:"updated_at" gorm:"autoUpdateTime"`

	Messages []Message `json:"messages,omitempty" gorm:"-"`
}

// TableName specifies the table name for the Conversation model, respecting the Namer.
func (Conversation) TableName(namer schema.Namer) string {
	return namer.TableName("conversations")
}

// ConversationOverrides are applied when a conversation is found or created.
// Nil fields are left alone.
type ConversationOverrides struct {
	RelatedBookingID *string             `json:"related_booking_id,omitempty"`
	AutomationStatus *AutomationStatus   `json:"automation_status,omitempty" validate:"omitempty,oneof=None Active Paused"`
	Status           *ConversationStatus `json:"status,omitempty" validate:"omitempty,oneof=New Open Closed"`
}

// Apply writes the overrides onto c and reports whether c changed. A paused
// thread is never re-activated here; only an explicit resume does that.
func (o ConversationOverrides) Apply(c *Conversation) bool {
	changed := false
	if o.RelatedBookingID != nil && (c.RelatedBookingID == nil || *c.RelatedBookingID != *o.RelatedBookingID) {
		id := *o.RelatedBookingID
		c.RelatedBookingID = &id
		changed = true
	}
	if o.AutomationStatus != nil && *o.AutomationStatus != c.AutomationStatus {
		if !(c.AutomationStatus == AutomationPaused && *o.AutomationStatus == AutomationActive) {
			c.AutomationStatus = *o.AutomationStatus
			changed = true
		}
	}
	if o.Status != nil && *o.Status != c.Status {
		c.Status = *o.Status
		changed = true
	}
	return changed
}

// Record applies the bookkeeping for a newly appended message: ordering,
// unread counter, staff takeover and the New→Open transition.
func (c *Conversation) Record(m *Message) {
	c.MessageCount++
	m.Seq = c.MessageCount
	m.ConversationID = c.ID

	switch m.Sender {
	case SenderCustomer:
		c.UnreadCount++
		if c.Status == ConversationNew {
			c.Status = ConversationOpen
		}
	case SenderStaff:
		if c.AutomationStatus == AutomationActive {
			c.AutomationStatus = AutomationPaused
		}
	}

	c.LastMessageSender = m.Sender
	ts := m.Timestamp
	c.LastMessageAt = &ts
	c.UpdatedAt = ts
}

// AutomationAllowed reports whether system automation may post on the thread.
func (c *Conversation) AutomationAllowed() bool {
	return c.AutomationStatus != AutomationPaused
}

// AwaitingStaff is true when the customer spoke last.
func (c *Conversation) AwaitingStaff() bool {
	return c.LastMessageSender == SenderCustomer
}
