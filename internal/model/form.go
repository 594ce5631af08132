package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// FormTemplateStatus controls whether a template is sent.
type FormTemplateStatus string

const (
	FormTemplateActive   FormTemplateStatus = "Active"
	FormTemplateDraft    FormTemplateStatus = "Draft"
	FormTemplateArchived FormTemplateStatus = "Archived"
)

// FormTemplate is an intake form linked to the services that require it.
type FormTemplate struct {
	ID                 string                      `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID        string                      `json:"workspace_id" gorm:"type:text;not null"`
	Name               string                      `json:"name" gorm:"type:text;not null" validate:"required,max=200"`
	Status             FormTemplateStatus          `json:"status" gorm:"type:text;not null;index" validate:"required,oneof=Active Draft Archived"`
	LinkedBookingTypes datatypes.JSONSlice[string] `json:"linked_booking_types"`
	CreatedAt          time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the FormTemplate model, respecting the Namer.
func (FormTemplate) TableName(namer schema.Namer) string {
	return namer.TableName("form_templates")
}

// LinkedTo reports whether the template is required for serviceID.
func (t *FormTemplate) LinkedTo(serviceID string) bool {
	for _, id := range t.LinkedBookingTypes {
		if id == serviceID {
			return true
		}
	}
	return false
}

// FormSubmissionStatus tracks a form sent for a booking.
type FormSubmissionStatus string

const (
	FormPending   FormSubmissionStatus = "Pending"
	FormSent      FormSubmissionStatus = "Sent"
	FormCompleted FormSubmissionStatus = "Completed"
)

// FormSubmission is one template sent for one booking.
type FormSubmission struct {
	ID           string               `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID  string               `json:"workspace_id" gorm:"type:text;not null"`
	TemplateID   string               `json:"template_id" gorm:"type:text;not null;uniqueIndex:idx_form_submissions_template_booking,priority:1"`
	TemplateName string               `json:"template_name" gorm:"type:text"`
	BookingID    string               `json:"booking_id" gorm:"type:text;not null;uniqueIndex:idx_form_submissions_template_booking,priority:2"`
	ContactID    string               `json:"contact_id" gorm:"type:text;not null"`
	ContactName  string               `json:"contact_name" gorm:"type:text"`
	Status       FormSubmissionStatus `json:"status" gorm:"type:text;not null;index"`
	SentAt       *time.Time           `json:"sent_at,omitempty" gorm:"index"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	CreatedAt    time.Time            `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time            `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the FormSubmission model, respecting the Namer.
func (FormSubmission) TableName(namer schema.Namer) string {
	return namer.TableName("form_submissions")
}

// Outstanding is true while the customer still owes the form.
func (s *FormSubmission) Outstanding() bool {
	return s.Status == FormPending || s.Status == FormSent
}
