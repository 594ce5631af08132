package model

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewContact creates a Contact with fake identity data. Fields set on the
// override replace the generated ones.
func NewContact(overrideDefaults ...*Contact) *Contact {
	base := &Contact{
		ID:          uuid.NewString(),
		WorkspaceID: "ws_" + gofakeit.LetterN(8),
		Name:        gofakeit.Name(),
		Email:       NormalizeEmail(gofakeit.Email()),
		Phone:       NormalizePhone(fmt.Sprintf("+1%s", gofakeit.Numerify("##########"))),
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 365)) * 24 * time.Hour),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		// identity fields are assigned directly so tests can blank them
		base.Email = ovr.Email
		base.Phone = ovr.Phone
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
	}
	return base
}

// NewConversation creates a fresh conversation for a fake contact.
func NewConversation(overrideDefaults ...*Conversation) *Conversation {
	base := &Conversation{
		ID:               uuid.NewString(),
		WorkspaceID:      "ws_" + gofakeit.LetterN(8),
		ContactID:        uuid.NewString(),
		ContactName:      gofakeit.Name(),
		Status:           ConversationNew,
		AutomationStatus: AutomationNone,
		CreatedAt:        utils.Now().Add(-time.Duration(gofakeit.Number(1, 72)) * time.Hour),
		UpdatedAt:        utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.ContactName != "" {
			base.ContactName = ovr.ContactName
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.AutomationStatus != "" {
			base.AutomationStatus = ovr.AutomationStatus
		}
		base.RelatedBookingID = ovr.RelatedBookingID
		base.MessageCount = ovr.MessageCount
		base.UnreadCount = ovr.UnreadCount
		base.LastMessageSender = ovr.LastMessageSender
		base.LastMessageAt = ovr.LastMessageAt
	}
	return base
}

// NewMessage creates a delivered system message.
func NewMessage(overrideDefaults ...*Message) *Message {
	base := &Message{
		ID:             NewMessageID(),
		WorkspaceID:    "ws_" + gofakeit.LetterN(8),
		ConversationID: uuid.NewString(),
		Seq:            1,
		Sender:         SenderSystem,
		Content:        gofakeit.Sentence(8),
		Channel:        ChannelSystem,
		Type:           MessageAutomated,
		DeliveryStatus: DeliveryDelivered,
		Timestamp:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.ConversationID != "" {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.Seq != 0 {
			base.Seq = ovr.Seq
		}
		if ovr.Sender != "" {
			base.Sender = ovr.Sender
		}
		if ovr.Content != "" {
			base.Content = ovr.Content
		}
		if ovr.Channel != "" {
			base.Channel = ovr.Channel
		}
		if ovr.Type != "" {
			base.Type = ovr.Type
		}
		if ovr.DeliveryStatus != "" {
			base.DeliveryStatus = ovr.DeliveryStatus
		}
		base.FailureReason = ovr.FailureReason
		base.Attempts = ovr.Attempts
		if !ovr.Timestamp.IsZero() {
			base.Timestamp = ovr.Timestamp
		}
	}
	return base
}

// NewBooking creates a confirmed booking tomorrow at 10:00 AM.
func NewBooking(overrideDefaults ...*Booking) *Booking {
	base := &Booking{
		ID:           uuid.NewString(),
		WorkspaceID:  "ws_" + gofakeit.LetterN(8),
		ContactID:    uuid.NewString(),
		CustomerName: gofakeit.Name(),
		ServiceID:    uuid.NewString(),
		Service:      gofakeit.RandomString([]string{"Cleaning", "Consultation", "Check-up"}),
		Date:         NewDate(utils.Now().AddDate(0, 0, 1)),
		Time:         "10:00 AM",
		Duration:     60,
		Location:     DefaultLocation,
		Status:       BookingConfirmed,
		CreatedAt:    utils.Now(),
		UpdatedAt:    utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.CustomerName != "" {
			base.CustomerName = ovr.CustomerName
		}
		if ovr.ServiceID != "" {
			base.ServiceID = ovr.ServiceID
		}
		if ovr.Service != "" {
			base.Service = ovr.Service
		}
		if !ovr.Date.IsZero() {
			base.Date = ovr.Date
		}
		if ovr.Time != "" {
			base.Time = ovr.Time
		}
		if ovr.Duration != 0 {
			base.Duration = ovr.Duration
		}
		if ovr.Location != "" {
			base.Location = ovr.Location
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		base.SubmissionID = ovr.SubmissionID
		base.Notes = ovr.Notes
		base.CancelledAt = ovr.CancelledAt
	}
	return base
}

// NewService creates a bookable service.
func NewService(overrideDefaults ...*Service) *Service {
	base := &Service{
		ID:          uuid.NewString(),
		WorkspaceID: "ws_" + gofakeit.LetterN(8),
		Name:        gofakeit.RandomString([]string{"Cleaning", "Consultation", "Check-up"}),
		Duration:    gofakeit.RandomInt([]int{30, 45, 60}),
		Location:    gofakeit.RandomString([]string{"", "Room 1", "Online"}),
		Description: gofakeit.Sentence(6),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Duration != 0 {
			base.Duration = ovr.Duration
		}
		base.Location = ovr.Location
		if ovr.Description != "" {
			base.Description = ovr.Description
		}
	}
	return base
}

// NewResource creates a stocked resource with no linked services.
func NewResource(overrideDefaults ...*Resource) *Resource {
	base := &Resource{
		ID:          uuid.NewString(),
		WorkspaceID: "ws_" + gofakeit.LetterN(8),
		Name:        gofakeit.RandomString([]string{"Gloves", "Masks", "Towels", "Cleaning kit"}),
		Quantity:    gofakeit.Number(10, 100),
		Threshold:   gofakeit.Number(1, 5),
		Unit:        "pcs",
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		// quantity and threshold are assigned directly so zero is expressible
		base.Quantity = ovr.Quantity
		base.Threshold = ovr.Threshold
		base.LinkedServiceIDs = ovr.LinkedServiceIDs
	}
	return base
}

// NewPublicBookingPayload creates a valid public booking submission.
func NewPublicBookingPayload(overrideDefaults ...*PublicBookingPayload) *PublicBookingPayload {
	base := &PublicBookingPayload{
		SubmissionID: uuid.NewString(),
		Name:         gofakeit.Name(),
		Email:        gofakeit.Email(),
		Phone:        fmt.Sprintf("+1%s", gofakeit.Numerify("##########")),
		ServiceID:    uuid.NewString(),
		Date:         utils.Now().AddDate(0, 0, gofakeit.Number(2, 30)).Format(utils.DateLayout),
		Time:         gofakeit.RandomString([]string{"9:00 AM", "10:00 AM", "2:00 PM"}),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		base.Email = ovr.Email
		base.Phone = ovr.Phone
		if ovr.SubmissionID != "" {
			base.SubmissionID = ovr.SubmissionID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.ServiceID != "" {
			base.ServiceID = ovr.ServiceID
		}
		if ovr.Date != "" {
			base.Date = ovr.Date
		}
		if ovr.Time != "" {
			base.Time = ovr.Time
		}
		base.Location = ovr.Location
		base.Notes = ovr.Notes
	}
	return base
}

// NewContactFormPayload creates a valid contact form submission.
func NewContactFormPayload(overrideDefaults ...*ContactFormPayload) *ContactFormPayload {
	base := &ContactFormPayload{
		Name:    gofakeit.Name(),
		Email:   gofakeit.Email(),
		Message: gofakeit.Sentence(12),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		base.Email = ovr.Email
		base.Phone = ovr.Phone
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Message != "" {
			base.Message = ovr.Message
		}
	}
	return base
}

// NewInboundMessagePayload creates a customer reply received over email.
func NewInboundMessagePayload(overrideDefaults ...*InboundMessagePayload) *InboundMessagePayload {
	base := &InboundMessagePayload{
		Name:       gofakeit.Name(),
		Email:      gofakeit.Email(),
		Channel:    ChannelEmail,
		Content:    gofakeit.Sentence(8),
		ReceivedAt: utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.Email != "" || ovr.Phone != "" {
			base.Email = ovr.Email
			base.Phone = ovr.Phone
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Channel != "" {
			base.Channel = ovr.Channel
		}
		if ovr.Content != "" {
			base.Content = ovr.Content
		}
		if !ovr.ReceivedAt.IsZero() {
			base.ReceivedAt = ovr.ReceivedAt
		}
	}
	return base
}
