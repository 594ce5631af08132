package model

import (
	"strings"
	"time"

	"gorm.io/gorm/schema"
)

// Contact is the canonical record of a person who reached the business. Email
// and phone are stored normalized and are each unique when present.
type Contact struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string    `json:"workspace_id" gorm:"type:text;not null;index"`
	Name        string    `json:"name" gorm:"type:text;not null"`
	Email       string    `json:"email,omitempty" gorm:"type:text;uniqueIndex:idx_contacts_email,where:email <> ''"`
	Phone       string    `json:"phone,omitempty" gorm:"type:text;uniqueIndex:idx_contacts_phone,where:phone <> ''"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Contact model, respecting the Namer.
func (Contact) TableName(namer schema.Namer) string {
	return namer.TableName("contacts")
}

// ContactInput is a submitter's identity as typed on a public form.
type ContactInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email,omitempty" validate:"required_without=Phone,omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"required_without=Email,omitempty,phone"`
}

// Normalized returns the input with identity fields in their stored form.
func (in ContactInput) Normalized() ContactInput {
	return ContactInput{
		Name:  strings.TrimSpace(in.Name),
		Email: NormalizeEmail(in.Email),
		Phone: NormalizePhone(in.Phone),
	}
}

// DisplayName falls back to an identity field when the name is blank.
func (in ContactInput) DisplayName() string {
	switch {
	case strings.TrimSpace(in.Name) != "":
		return strings.TrimSpace(in.Name)
	case in.Email != "":
		return in.Email
	default:
		return in.Phone
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone drops formatting characters, keeping digits and a leading '+'.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FillMissingIdentity copies identity fields the contact lacks from in and
// reports whether anything changed. Set identity fields and the name are never
// touched.
func (c *Contact) FillMissingIdentity(in ContactInput) bool {
	changed := false
	if c.Email == "" && in.Email != "" {
		c.Email = in.Email
		changed = true
	}
	if c.Phone == "" && in.Phone != "" {
		c.Phone = in.Phone
		changed = true
	}
	return changed
}

// PreferredRecipient returns the address for channel, or "" if the contact has none.
func (c *Contact) PreferredRecipient(channel Channel) string {
	switch channel {
	case ChannelEmail:
		return c.Email
	case ChannelSMS:
		return c.Phone
	default:
		return ""
	}
}
