package model

import (
	"encoding/json"
	"time"
)

// PublicBookingPayload is a booking submitted from the public booking page.
type PublicBookingPayload struct {
	SubmissionID string `json:"submission_id,omitempty" validate:"omitempty,max=200"`
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email,omitempty" validate:"required_without=Phone,omitempty,email"`
	Phone        string `json:"phone,omitempty" validate:"required_without=Email,omitempty,phone"`
	ServiceID    string `json:"service_id" validate:"required"`
	Date         string `json:"date" validate:"required,calendar_date"`
	Time         string `json:"time" validate:"required"`
	Location     string `json:"location,omitempty" validate:"omitempty,max=200"`
	Notes        string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Contact returns the identity part of the submission.
func (p PublicBookingPayload) Contact() ContactInput {
	return ContactInput{Name: p.Name, Email: p.Email, Phone: p.Phone}
}

// ContactFormPayload is a message left through the public contact form.
type ContactFormPayload struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email,omitempty" validate:"required_without=Phone,omitempty,email"`
	Phone   string `json:"phone,omitempty" validate:"required_without=Email,omitempty,phone"`
	Message string `json:"message,omitempty" validate:"omitempty,max=10000"`
}

// Contact returns the identity part of the submission.
func (p ContactFormPayload) Contact() ContactInput {
	return ContactInput{Name: p.Name, Email: p.Email, Phone: p.Phone}
}

// InboundMessagePayload is a customer reply received by a channel provider.
type InboundMessagePayload struct {
	Name       string    `json:"name,omitempty" validate:"omitempty,max=200"`
	Email      string    `json:"email,omitempty" validate:"required_without=Phone,omitempty,email"`
	Phone      string    `json:"phone,omitempty" validate:"required_without=Email,omitempty,phone"`
	Channel    Channel   `json:"channel" validate:"required,oneof=email sms"`
	Content    string    `json:"content" validate:"required,max=10000"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// Contact returns the sender identity.
func (p InboundMessagePayload) Contact() ContactInput {
	in := ContactInput{Name: p.Name, Email: p.Email, Phone: p.Phone}
	in.Name = in.DisplayName()
	return in
}

// ReminderFiredPayload is reported by the external scheduler when a reminder is due.
type ReminderFiredPayload struct {
	ReminderID string    `json:"reminder_id" validate:"required"`
	BookingID  string    `json:"booking_id" validate:"required"`
	FiredAt    time.Time `json:"fired_at,omitempty"`
}

// DeliveryRequest is handed to a channel provider.
type DeliveryRequest struct {
	MessageID      string  `json:"message_id"`
	ConversationID string  `json:"conversation_id"`
	WorkspaceID    string  `json:"workspace_id"`
	Channel        Channel `json:"channel"`
	Recipient      string  `json:"recipient"`
	Content        string  `json:"content"`
	Attempt        int     `json:"attempt"`
}

// ReminderIntent registers or cancels a reminder with the external scheduler.
type ReminderIntent struct {
	ReminderID  string         `json:"reminder_id"`
	BookingID   string         `json:"booking_id"`
	WorkspaceID string         `json:"workspace_id"`
	Offset      ReminderOffset `json:"offset"`
	FireAt      time.Time      `json:"fire_at"`
}

// DLQPayload is the structure of messages sent to the Dead Letter Queue.
type DLQPayload struct {
	SourceSubject   string          `json:"source_subject"`
	Workspace       string          `json:"workspace"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	Error           string          `json:"error"`
	ErrorType       string          `json:"error_type"` // fatal, retryable or max_retries
	RetryCount      uint64          `json:"retry_count"`
	MaxRetry        int             `json:"max_retry"`
	NextRetryAt     *time.Time      `json:"next_retry_at,omitempty"`
	Timestamp       time.Time       `json:"ts"`
}
