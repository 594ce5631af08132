package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm/schema"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderStaff    Sender = "staff"
	SenderSystem   Sender = "system"
)

// Channel is the delivery medium of a message.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
	ChannelForm   Channel = "form"
	ChannelSystem Channel = "system"
)

// External reports whether messages on the channel leave the system through a provider.
func (c Channel) External() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// MessageType classifies why a message exists.
type MessageType string

const (
	MessageWelcome             MessageType = "welcome"
	MessageBookingConfirmation MessageType = "booking_confirmation"
	MessageFormReminder        MessageType = "form_reminder"
	MessageAutomated           MessageType = "automated"
	MessageCustomer            MessageType = "customer"
	MessageTimelineEvent       MessageType = "timeline_event"
	MessageStaffReply          MessageType = "staff_reply"
)

// DeliveryStatus tracks hand-off to the channel provider.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Message is one entry of a conversation. Only the delivery fields change after append.
type Message struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID    string         `json:"workspace_id" gorm:"type:text;not null"`
	ConversationID string         `json:"conversation_id" gorm:"type:text;not null;uniqueIndex:idx_messages_conversation_seq,priority:1"`
	Seq            int64          `json:"seq" gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2"`
	Sender         Sender         `json:"sender" gorm:"type:text;not null"`
	Content        string         `json:"content" gorm:"type:text"`
	Channel        Channel        `json:"channel" gorm:"type:text;not null"`
	Type           MessageType    `json:"type" gorm:"type:text;not null"`
	DeliveryStatus DeliveryStatus `json:"delivery_status" gorm:"type:text;not null;index"`
	FailureReason  string         `json:"failure_reason,omitempty" gorm:"type:text"`
	Attempts       int            `json:"attempts" gorm:"not null;default:0"`
	Timestamp      time.Time      `json:"timestamp" gorm:"not null"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Message model, respecting the Namer.
func (Message) TableName(namer schema.Namer) string {
	return namer.TableName("messages")
}

// NewMessageID returns a lexically sortable message identifier.
func NewMessageID() string {
	return ulid.Make().String()
}

// MessageInput is what callers supply to append a message.
type MessageInput struct {
	Sender  Sender      `json:"sender" validate:"required,oneof=customer staff system"`
	Content string      `json:"content" validate:"required,max=10000"`
	Channel Channel     `json:"channel" validate:"required,oneof=email sms form system"`
	Type    MessageType `json:"type" validate:"required,oneof=welcome booking_confirmation form_reminder automated customer timeline_event staff_reply"`
}

// InitialDeliveryStatus is pending for provider-bound channels and delivered otherwise.
// Inbound customer messages have already arrived.
func (in MessageInput) InitialDeliveryStatus() DeliveryStatus {
	if in.Sender != SenderCustomer && in.Channel.External() {
		return DeliveryPending
	}
	return DeliveryDelivered
}

// CanRetry reports whether the message is in the failed state a retry starts from.
func (m *Message) CanRetry() bool {
	return m.DeliveryStatus == DeliveryFailed
}
