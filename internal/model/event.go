package model

import (
	"fmt"
	"strings"
	"time"
)

// SubjectPrefix is the namespace of every subject the service touches.
const SubjectPrefix = "careops"

// EventType is a versioned subject stem without the namespace or the
// workspace suffix, e.g. "v1.public.bookings".
type EventType string

const (
	// Consumed
	V1PublicBookings  EventType = "v1.public.bookings"
	V1PublicContacts  EventType = "v1.public.contacts"
	V1InboundMessages EventType = "v1.inbound.messages"
	V1RemindersFired  EventType = "v1.reminders.fired"

	// Published
	V1DeliveryEmail     EventType = "v1.delivery.email"
	V1DeliverySMS       EventType = "v1.delivery.sms"
	V1RemindersSchedule EventType = "v1.reminders.schedule"
	V1RemindersCancel   EventType = "v1.reminders.cancel"
	V1DLQ               EventType = "v1.dlq"
)

var knownEventTypes = map[EventType]struct{}{
	V1PublicBookings:    {},
	V1PublicContacts:    {},
	V1InboundMessages:   {},
	V1RemindersFired:    {},
	V1DeliveryEmail:     {},
	V1DeliverySMS:       {},
	V1RemindersSchedule: {},
	V1RemindersCancel:   {},
	V1DLQ:               {},
}

// ConsumedEventTypes are the subjects the ingestion consumer filters on.
var ConsumedEventTypes = []EventType{V1PublicBookings, V1PublicContacts, V1InboundMessages, V1RemindersFired}

// Subject returns the full subject of the event for a workspace.
func (e EventType) Subject(workspaceID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, e, workspaceID)
}

// DeliveryEventType maps an outbound channel to its delivery subject stem.
func DeliveryEventType(ch Channel) (EventType, bool) {
	switch ch {
	case ChannelEmail:
		return V1DeliveryEmail, true
	case ChannelSMS:
		return V1DeliverySMS, true
	}
	return "", false
}

// MapToBaseEventType maps a subject such as "careops.v1.public.bookings.demo"
// back to its EventType. The namespace and the trailing workspace component
// are both optional.
func MapToBaseEventType(input string) (EventType, bool) {
	input = strings.TrimPrefix(input, SubjectPrefix+".")
	if _, ok := knownEventTypes[EventType(input)]; ok {
		return EventType(input), true
	}

	lastDotIndex := strings.LastIndex(input, ".")
	if lastDotIndex <= 0 {
		return "", false
	}

	base := EventType(input[:lastDotIndex])
	if _, ok := knownEventTypes[base]; ok {
		return base, true
	}
	return "", false
}

// WorkspaceFromSubject returns the trailing workspace component of a subject.
func WorkspaceFromSubject(subject string) (string, bool) {
	base, ok := MapToBaseEventType(subject)
	if !ok {
		return "", false
	}
	stem := SubjectPrefix + "." + string(base) + "."
	if !strings.HasPrefix(subject, stem) || len(subject) == len(stem) {
		return "", false
	}
	return subject[len(stem):], true
}

// GetVersion extracts the version from an event type, e.g. "v1".
func (e EventType) GetVersion() string {
	parts := strings.SplitN(string(e), ".", 2)
	if len(parts) < 2 {
		return ""
	}
	if len(parts[0]) >= 2 && parts[0][0] == 'v' {
		return parts[0]
	}
	return ""
}

// GetBaseType returns the event type without the version prefix.
func (e EventType) GetBaseType() EventType {
	version := e.GetVersion()
	if version == "" {
		return e
	}
	return EventType(strings.TrimPrefix(string(e), version+"."))
}

// MessageMetadata is the JetStream delivery info of a consumed message.
type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	WorkspaceID      string
	RequestID        string
}
