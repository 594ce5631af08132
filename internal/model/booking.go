package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "Pending"
	BookingConfirmed BookingStatus = "Confirmed"
	BookingCompleted BookingStatus = "Completed"
	BookingCancelled BookingStatus = "Cancelled"
	BookingNoShow    BookingStatus = "No-show"
)

// DefaultLocation is used when neither the submission nor the service names one.
const DefaultLocation = "In-Person"

// Booking is an appointment for one service. Date and Time are kept exactly as
// chosen on the booking page; Time is a slot label such as "10:00 AM".
type Booking struct {
	ID           string        `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID  string        `json:"workspace_id" gorm:"type:text;not null"`
	SubmissionID string        `json:"submission_id,omitempty" gorm:"type:text;uniqueIndex:idx_bookings_submission,where:submission_id <> ''"`
	ContactID    string        `json:"contact_id" gorm:"type:text;not null;index"`
	CustomerName string        `json:"customer_name" gorm:"type:text"`
	ServiceID    string        `json:"service_id" gorm:"type:text;not null;index"`
	Service      string        `json:"service" gorm:"type:text"`
	Date         Date          `json:"date" gorm:"not null;index"`
	Time         string        `json:"time" gorm:"type:text;not null"`
	Duration     int           `json:"duration"`
	Location     string        `json:"location" gorm:"type:text"`
	Notes        string        `json:"notes,omitempty" gorm:"type:text"`
	Status       BookingStatus `json:"status" gorm:"type:text;not null;index"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Booking model, respecting the Namer.
func (Booking) TableName(namer schema.Namer) string {
	return namer.TableName("bookings")
}

// CalendarDate lets bookings be filtered by calendar helpers.
func (b Booking) CalendarDate() time.Time {
	return b.Date.Time
}

// ValidBookingStatus reports whether s is a known status.
func ValidBookingStatus(s BookingStatus) bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled, BookingNoShow:
		return true
	}
	return false
}

// AutomationStepName names one downstream action of a booking submission.
type AutomationStepName string

const (
	StepConfirmation AutomationStepName = "confirmation"
	StepForms        AutomationStepName = "forms"
	StepReminders    AutomationStepName = "reminders"
	StepDeduction    AutomationStepName = "deduction"
	StepAlerts       AutomationStepName = "alerts"
)

// ParseAutomationStep validates a step name from a route or payload.
func ParseAutomationStep(s string) (AutomationStepName, bool) {
	switch step := AutomationStepName(s); step {
	case StepConfirmation, StepForms, StepReminders, StepDeduction, StepAlerts:
		return step, true
	}
	return "", false
}

// StepStatus is the outcome of the latest attempt of a step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// AutomationStep is the durable record of one downstream step so that it can be
// retried on its own without touching the booking.
type AutomationStep struct {
	BookingID   string             `json:"booking_id" gorm:"primaryKey;type:text"`
	Step        AutomationStepName `json:"step" gorm:"primaryKey;type:text"`
	WorkspaceID string             `json:"workspace_id" gorm:"type:text;not null"`
	Status      StepStatus         `json:"status" gorm:"type:text;not null;index"`
	Error       string             `json:"error,omitempty" gorm:"type:text"`
	Attempts    int                `json:"attempts" gorm:"not null;default:0"`
	UpdatedAt   time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the AutomationStep model, respecting the Namer.
func (AutomationStep) TableName(namer schema.Namer) string {
	return namer.TableName("automation_steps")
}
