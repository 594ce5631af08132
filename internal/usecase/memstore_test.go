package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/cache"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
)

// memStore is an in-memory stand-in for Postgres with the same row semantics
// the use cases rely on: uniqueness, upserts, locking outcomes.
type memStore struct {
	mu sync.Mutex

	workspace    model.Workspace
	integrations map[model.Channel]model.Integration
	services     []model.Service
	availability model.AvailabilityConfig

	contacts      []*model.Contact
	conversations []*model.Conversation
	messages      []*model.Message
	bookings      []*model.Booking
	steps         map[string]*model.AutomationStep
	stepOrder     []string
	resources     []*model.Resource
	alerts        []*model.Alert
	templates     []*model.FormTemplate
	submissions   []*model.FormSubmission
	reminders     []*model.Reminder
	exhausted     []model.ExhaustedEvent

	failures map[string][]error
	clock    func() time.Time
}

func newMemStore(workspaceID string) *memStore {
	return &memStore{
		workspace:    model.Workspace{ID: workspaceID, Name: "Sparkle Co", Timezone: "UTC"},
		integrations: make(map[model.Channel]model.Integration),
		availability: model.AvailabilityConfig{WorkspaceID: workspaceID},
		steps:        make(map[string]*model.AutomationStep),
		failures:     make(map[string][]error),
	}
}

// failNext makes the next call of op return err.
func (s *memStore) failNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

func (s *memStore) fail(op string) error {
	queue := s.failures[op]
	if len(queue) == 0 {
		return nil
	}
	s.failures[op] = queue[1:]
	return queue[0]
}

func (s *memStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock()
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrNotFound, what)
}

func (s *memStore) repositories() storage.Repositories {
	return storage.Repositories{
		Contacts:      memContacts{s},
		Conversations: memConversations{s},
		Messages:      memMessages{s},
		Bookings:      memBookings{s},
		Steps:         memSteps{s},
		Resources:     memResources{s},
		Alerts:        memAlerts{s},
		Forms:         memForms{s},
		Reminders:     memReminders{s},
		Workspace:     memWorkspace{s},
		Dashboard:     memDashboard{s},
		Exhausted:     memExhausted{s},
	}
}

// --- contacts ---

type memContacts struct{ s *memStore }

func (r memContacts) FindByID(_ context.Context, id string) (*model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.contacts {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("contact_id " + id)
}

func (r memContacts) FindByEmail(_ context.Context, email string) (*model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.contacts {
		if email != "" && c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("email " + email)
}

func (r memContacts) FindByPhone(_ context.Context, phone string) (*model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.contacts {
		if phone != "" && c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("phone " + phone)
}

func (r memContacts) Create(_ context.Context, contact model.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Contacts.Create"); err != nil {
		return err
	}
	for _, c := range r.s.contacts {
		if (contact.Email != "" && c.Email == contact.Email) || (contact.Phone != "" && c.Phone == contact.Phone) {
			return fmt.Errorf("%w: contact identity taken", apperrors.ErrDuplicate)
		}
	}
	r.s.contacts = append(r.s.contacts, &contact)
	return nil
}

func (r memContacts) FillIdentity(_ context.Context, id string, in model.ContactInput) (*model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.contacts {
		if c.ID == id {
			c.FillMissingIdentity(in)
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("contact_id " + id)
}

// --- conversations ---

type memConversations struct{ s *memStore }

func (r memConversations) find(id string) *model.Conversation {
	for _, c := range r.s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r memConversations) FindByID(_ context.Context, id string) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c := r.find(id); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, notFound("conversation_id " + id)
}

func (r memConversations) FindWithMessages(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	conv.Messages = []model.Message{}
	for _, m := range r.s.messages {
		if m.ConversationID == id {
			conv.Messages = append(conv.Messages, *m)
		}
	}
	sort.Slice(conv.Messages, func(i, j int) bool { return conv.Messages[i].Seq < conv.Messages[j].Seq })
	return conv, nil
}

func (r memConversations) FindLatestByContact(_ context.Context, contactID string) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Conversations.FindLatestByContact"); err != nil {
		return nil, err
	}
	for i := len(r.s.conversations) - 1; i >= 0; i-- {
		if c := r.s.conversations[i]; c.ContactID == contactID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("conversation for contact " + contactID)
}

func (r memConversations) Create(_ context.Context, conv model.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.conversations {
		if c.ContactID == conv.ContactID {
			return fmt.Errorf("%w: conversation for contact %s", apperrors.ErrDuplicate, conv.ContactID)
		}
	}
	r.s.conversations = append(r.s.conversations, &conv)
	return nil
}

func (r memConversations) Mutate(_ context.Context, id string, fn storage.ConversationMutation) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Conversations.Mutate"); err != nil {
		return nil, err
	}
	c := r.find(id)
	if c == nil {
		return nil, notFound("conversation_id " + id)
	}
	working := *c
	changed, err := fn(&working)
	if err != nil {
		return nil, err
	}
	if changed {
		*c = working
	}
	cp := *c
	return &cp, nil
}

func (r memConversations) AppendMessage(_ context.Context, conversationID string, msg model.Message) (*model.Conversation, *model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.find(conversationID)
	if c == nil {
		return nil, nil, notFound("conversation_id " + conversationID)
	}
	c.Record(&msg)
	r.s.messages = append(r.s.messages, &msg)
	convCopy, msgCopy := *c, msg
	return &convCopy, &msgCopy, nil
}

func (r memConversations) ListAwaitingStaff(_ context.Context) ([]model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Conversation{}
	for _, c := range r.s.conversations {
		if c.AwaitingStaff() && c.Status != model.ConversationClosed {
			out = append(out, *c)
		}
	}
	return out, nil
}

// --- messages ---

type memMessages struct{ s *memStore }

func (r memMessages) FindByID(_ context.Context, id string) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, notFound("message_id " + id)
}

func (r memMessages) TransitionDelivery(_ context.Context, id string, t storage.DeliveryTransition) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.ID != id {
			continue
		}
		if m.DeliveryStatus != t.From {
			return nil, fmt.Errorf("%w: message %s is %s", apperrors.ErrConflict, id, m.DeliveryStatus)
		}
		m.DeliveryStatus = t.To
		m.FailureReason = t.FailureReason
		if t.CountAttempt {
			m.Attempts++
		}
		cp := *m
		return &cp, nil
	}
	return nil, notFound("message_id " + id)
}

// messagesOf lists the conversation's messages in seq order.
func (s *memStore) messagesOf(conversationID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Message{}
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out
}

// --- bookings and steps ---

type memBookings struct{ s *memStore }

func (r memBookings) Create(_ context.Context, booking model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.bookings {
		if booking.SubmissionID != "" && b.SubmissionID == booking.SubmissionID {
			return fmt.Errorf("%w: submission %s", apperrors.ErrDuplicate, booking.SubmissionID)
		}
	}
	r.s.bookings = append(r.s.bookings, &booking)
	return nil
}

func (r memBookings) FindByID(_ context.Context, id string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.bookings {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, notFound("booking_id " + id)
}

func (r memBookings) FindBySubmissionID(_ context.Context, submissionID string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.bookings {
		if b.SubmissionID == submissionID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, notFound("submission " + submissionID)
}

func (r memBookings) ListBetween(_ context.Context, from, to model.Date) ([]model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Booking{}
	for _, b := range r.s.bookings {
		if !b.Date.Before(from.Time) && !b.Date.After(to.Time) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r memBookings) UpdateStatus(_ context.Context, id string, status model.BookingStatus) (*model.Booking, model.BookingStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.bookings {
		if b.ID != id {
			continue
		}
		previous := b.Status
		if previous != status {
			b.Status = status
			if status == model.BookingCancelled {
				now := time.Now().UTC()
				b.CancelledAt = &now
			}
		}
		cp := *b
		return &cp, previous, nil
	}
	return nil, "", notFound("booking_id " + id)
}

type memSteps struct{ s *memStore }

func stepKey(bookingID string, step model.AutomationStepName) string {
	return bookingID + "/" + string(step)
}

func (r memSteps) Record(_ context.Context, step model.AutomationStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := stepKey(step.BookingID, step.Step)
	step.UpdatedAt = r.s.now()
	existing, ok := r.s.steps[key]
	if !ok {
		step.Attempts = 1
		r.s.steps[key] = &step
		r.s.stepOrder = append(r.s.stepOrder, key)
		return nil
	}
	existing.Status = step.Status
	existing.Error = step.Error
	existing.UpdatedAt = step.UpdatedAt
	existing.Attempts++
	return nil
}

func (r memSteps) Claim(_ context.Context, bookingID string, step model.AutomationStepName, staleBefore time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := stepKey(bookingID, step)
	existing, ok := r.s.steps[key]
	if !ok {
		existing = &model.AutomationStep{BookingID: bookingID, Step: step, Status: model.StepPending}
		r.s.steps[key] = existing
		r.s.stepOrder = append(r.s.stepOrder, key)
	}
	switch existing.Status {
	case model.StepSucceeded:
		return false, nil
	case model.StepRunning:
		if !existing.UpdatedAt.Before(staleBefore) {
			return false, nil
		}
	}
	existing.Status = model.StepRunning
	existing.UpdatedAt = r.s.now()
	return true, nil
}

func (r memSteps) Find(_ context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec, ok := r.s.steps[stepKey(bookingID, step)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, notFound(fmt.Sprintf("step %s of booking %s", step, bookingID))
}

func (r memSteps) List(_ context.Context, bookingID string) ([]model.AutomationStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.AutomationStep{}
	for _, key := range r.s.stepOrder {
		if rec := r.s.steps[key]; rec.BookingID == bookingID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// --- resources ---

type memResources struct{ s *memStore }

func (r memResources) Upsert(_ context.Context, resource model.Resource) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.resources {
		if existing.ID == resource.ID {
			r.s.resources[i] = &resource
			return nil
		}
	}
	r.s.resources = append(r.s.resources, &resource)
	return nil
}

func (r memResources) FindByID(_ context.Context, id string) (*model.Resource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range r.s.resources {
		if res.ID == id {
			cp := *res
			return &cp, nil
		}
	}
	return nil, notFound("resource_id " + id)
}

func (r memResources) List(_ context.Context) ([]model.Resource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Resource{}
	for _, res := range r.s.resources {
		out = append(out, *res)
	}
	return out, nil
}

func (r memResources) DeductForService(_ context.Context, serviceID string) ([]model.Resource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Resources.DeductForService"); err != nil {
		return nil, err
	}
	return r.deductLinked(serviceID), nil
}

func (r memResources) DeductForBooking(_ context.Context, bookingID, serviceID string) ([]model.Resource, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Resources.DeductForBooking"); err != nil {
		return nil, false, err
	}
	step, ok := r.s.steps[stepKey(bookingID, model.StepDeduction)]
	if !ok || step.Status != model.StepRunning {
		return nil, false, nil
	}
	step.Status = model.StepSucceeded
	step.Error = ""
	step.UpdatedAt = r.s.now()
	return r.deductLinked(serviceID), true, nil
}

func (r memResources) deductLinked(serviceID string) []model.Resource {
	out := []model.Resource{}
	for _, res := range r.s.resources {
		if res.LinkedTo(serviceID) {
			res.Deduct()
			out = append(out, *res)
		}
	}
	return out
}

// --- alerts ---

type memAlerts struct{ s *memStore }

func (r memAlerts) open(key string) *model.Alert {
	for _, a := range r.s.alerts {
		if a.DedupKey == key && a.DismissedAt == nil {
			return a
		}
	}
	return nil
}

func (r memAlerts) Raise(_ context.Context, candidate model.AlertCandidate, now time.Time) (*model.Alert, storage.AlertOutcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Alerts.Raise"); err != nil {
		return nil, "", err
	}
	key := candidate.DedupKey()
	alert := r.open(key)
	if alert == nil {
		if held := r.held(key); held != nil {
			if !held.Severity.Escalates(candidate.Severity) {
				cp := *held
				cp.FillRelated()
				return &cp, storage.AlertSuppressed, nil
			}
			held.ClearedAt = &now
		}
		alert = &model.Alert{
			ID:          uuid.NewString(),
			WorkspaceID: r.s.workspace.ID,
			Type:        candidate.Type,
			Severity:    candidate.Severity,
			Message:     candidate.Message,
			Timestamp:   now,
			DedupKey:    key,
		}
		if candidate.Related != nil {
			alert.RelatedEntityType = candidate.Related.Type
			alert.RelatedEntityID = candidate.Related.ID
		}
		r.s.alerts = append(r.s.alerts, alert)
		cp := *alert
		cp.FillRelated()
		return &cp, storage.AlertCreated, nil
	}

	outcome := storage.AlertUnchanged
	if alert.Severity != candidate.Severity || alert.Message != candidate.Message {
		outcome = storage.AlertUpdated
		if alert.Severity.Escalates(candidate.Severity) {
			alert.Read = false
			alert.Timestamp = now
			outcome = storage.AlertEscalated
		}
		alert.Severity = candidate.Severity
		alert.Message = candidate.Message
	}
	cp := *alert
	cp.FillRelated()
	return &cp, outcome, nil
}

// held is the dismissed alert of key whose condition has not cleared.
func (r memAlerts) held(key string) *model.Alert {
	for i := len(r.s.alerts) - 1; i >= 0; i-- {
		if a := r.s.alerts[i]; a.DedupKey == key && a.DismissedAt != nil && a.ClearedAt == nil {
			return a
		}
	}
	return nil
}

func (r memAlerts) Resolve(_ context.Context, dedupKey string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	resolved := false
	for _, a := range r.s.alerts {
		if a.DedupKey != dedupKey || a.ClearedAt != nil {
			continue
		}
		if a.DismissedAt == nil {
			a.DismissedAt = &now
		}
		a.ClearedAt = &now
		resolved = true
	}
	return resolved, nil
}

func (r memAlerts) FindByID(_ context.Context, id string) (*model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.alerts {
		if a.ID == id && a.DismissedAt == nil {
			cp := *a
			cp.FillRelated()
			return &cp, nil
		}
	}
	return nil, notFound("alert_id " + id)
}

func (r memAlerts) List(_ context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Alert{}
	for i := len(r.s.alerts) - 1; i >= 0; i-- {
		a := r.s.alerts[i]
		if a.DismissedAt != nil ||
			(filter.Type != "" && a.Type != filter.Type) ||
			(filter.Severity != "" && a.Severity != filter.Severity) ||
			(filter.UnreadOnly && a.Read) {
			continue
		}
		cp := *a
		cp.FillRelated()
		out = append(out, cp)
	}
	return out, nil
}

func (r memAlerts) ListUnclearedByType(_ context.Context, alertType model.AlertType) ([]model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Alert{}
	for _, a := range r.s.alerts {
		if a.Type == alertType && a.ClearedAt == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r memAlerts) MarkRead(_ context.Context, id string) (*model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Alerts.MarkRead"); err != nil {
		return nil, err
	}
	for _, a := range r.s.alerts {
		if a.ID == id && a.DismissedAt == nil {
			a.Read = true
			cp := *a
			return &cp, nil
		}
	}
	return nil, notFound("alert_id " + id)
}

func (r memAlerts) Dismiss(_ context.Context, id string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.alerts {
		if a.ID == id && a.DismissedAt == nil {
			a.DismissedAt = &now
			return nil
		}
	}
	return apperrors.ErrNotFound
}

// openAlerts lists undismissed alerts in creation order.
func (s *memStore) openAlerts() []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Alert{}
	for _, a := range s.alerts {
		if a.DismissedAt == nil {
			out = append(out, *a)
		}
	}
	return out
}

// --- forms ---

type memForms struct{ s *memStore }

func (r memForms) UpsertTemplate(_ context.Context, template model.FormTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, t := range r.s.templates {
		if t.ID == template.ID {
			r.s.templates[i] = &template
			return nil
		}
	}
	r.s.templates = append(r.s.templates, &template)
	return nil
}

func (r memForms) ListActiveTemplatesForService(_ context.Context, serviceID string) ([]model.FormTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.FormTemplate{}
	for _, t := range r.s.templates {
		if t.Status == model.FormTemplateActive && t.LinkedTo(serviceID) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r memForms) UpsertSubmission(_ context.Context, submission model.FormSubmission) (*model.FormSubmission, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.submissions {
		if sub.TemplateID == submission.TemplateID && sub.BookingID == submission.BookingID {
			cp := *sub
			return &cp, false, nil
		}
	}
	r.s.submissions = append(r.s.submissions, &submission)
	cp := submission
	return &cp, true, nil
}

func (r memForms) ListByBooking(_ context.Context, bookingID string) ([]model.FormSubmission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.FormSubmission{}
	for _, sub := range r.s.submissions {
		if sub.BookingID == bookingID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r memForms) ListOutstandingSentBefore(_ context.Context, cutoff time.Time) ([]model.FormSubmission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.FormSubmission{}
	for _, sub := range r.s.submissions {
		if sub.Outstanding() && sub.SentAt != nil && sub.SentAt.Before(cutoff) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r memForms) Complete(_ context.Context, id string, now time.Time) (*model.FormSubmission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.submissions {
		if sub.ID == id {
			if sub.Status != model.FormCompleted {
				sub.Status = model.FormCompleted
				sub.CompletedAt = &now
			}
			cp := *sub
			return &cp, nil
		}
	}
	return nil, notFound("form_submission_id " + id)
}

// --- reminders ---

type memReminders struct{ s *memStore }

func (r memReminders) Upsert(_ context.Context, reminder model.Reminder) (*model.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Reminders.Upsert"); err != nil {
		return nil, err
	}
	for _, existing := range r.s.reminders {
		if existing.BookingID == reminder.BookingID && existing.Offset == reminder.Offset {
			if existing.Status != model.ReminderFired {
				existing.FireAt = reminder.FireAt
				existing.Status = model.ReminderScheduled
			}
			cp := *existing
			return &cp, nil
		}
	}
	r.s.reminders = append(r.s.reminders, &reminder)
	cp := reminder
	return &cp, nil
}

func (r memReminders) FindByID(_ context.Context, id string) (*model.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rem := range r.s.reminders {
		if rem.ID == id {
			cp := *rem
			return &cp, nil
		}
	}
	return nil, notFound("reminder_id " + id)
}

func (r memReminders) ListByBooking(_ context.Context, bookingID string) ([]model.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Reminder{}
	for _, rem := range r.s.reminders {
		if rem.BookingID == bookingID {
			out = append(out, *rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (r memReminders) CancelForBooking(_ context.Context, bookingID string) ([]model.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Reminder{}
	for _, rem := range r.s.reminders {
		if rem.BookingID == bookingID && rem.Status == model.ReminderScheduled {
			rem.Status = model.ReminderCancelled
			out = append(out, *rem)
		}
	}
	return out, nil
}

func (r memReminders) MarkFired(_ context.Context, id string) (*model.Reminder, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rem := range r.s.reminders {
		if rem.ID != id {
			continue
		}
		if rem.Status != model.ReminderScheduled {
			cp := *rem
			return &cp, false, nil
		}
		rem.Status = model.ReminderFired
		cp := *rem
		return &cp, true, nil
	}
	return nil, false, notFound("reminder_id " + id)
}

// --- workspace ---

type memWorkspace struct{ s *memStore }

func (r memWorkspace) Ensure(_ context.Context, workspace model.Workspace) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.workspace.ID == "" {
		r.s.workspace = workspace
	}
	return nil
}

func (r memWorkspace) Find(_ context.Context) (*model.Workspace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := r.s.workspace
	return &cp, nil
}

func (r memWorkspace) snapshot() *model.WorkspaceSnapshot {
	snap := &model.WorkspaceSnapshot{
		Workspace:    r.s.workspace,
		Integrations: []model.Integration{},
		Services:     append([]model.Service{}, r.s.services...),
		Availability: r.s.availability,
	}
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelSMS} {
		if in, ok := r.s.integrations[ch]; ok {
			snap.Integrations = append(snap.Integrations, in)
		}
	}
	return snap
}

func (r memWorkspace) LoadSnapshot(_ context.Context) (*model.WorkspaceSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.snapshot(), nil
}

func (r memWorkspace) Activate(_ context.Context, now time.Time) (model.ActivationResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	checklist := r.snapshot().Checklist()
	result := model.ActivationResult{Checklist: checklist}
	switch {
	case r.s.workspace.Activated:
		result.Activated = true
		result.AlreadyActive = true
		result.ActivatedAt = r.s.workspace.ActivatedAt
	case !checklist.Complete():
		result.Missing = checklist.Missing()
	default:
		r.s.workspace.Activated = true
		r.s.workspace.ActivatedAt = &now
		result.Activated = true
		result.ActivatedAt = &now
	}
	return result, nil
}

func (r memWorkspace) UpsertService(_ context.Context, service model.Service) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, svc := range r.s.services {
		if svc.ID == service.ID {
			r.s.services[i] = service
			return nil
		}
	}
	r.s.services = append(r.s.services, service)
	return nil
}

func (r memWorkspace) SetAvailability(_ context.Context, cfg model.AvailabilityConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.availability = cfg
	return nil
}

func (r memWorkspace) SetIntegration(_ context.Context, integration model.Integration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.integrations[integration.Channel] = integration
	return nil
}

// --- dashboard and exhausted events ---

type memDashboard struct{ s *memStore }

func (r memDashboard) Counts(_ context.Context, today model.Date, _ time.Time) (*model.DashboardMetrics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := &model.DashboardMetrics{}
	for _, b := range r.s.bookings {
		if b.Date.Equal(today.Time) && b.Status != model.BookingCancelled {
			m.TodayBookings++
		}
	}
	for _, a := range r.s.alerts {
		if a.DismissedAt == nil && !a.Read {
			m.UnreadAlerts++
		}
	}
	for _, c := range r.s.conversations {
		if c.UnreadCount > 0 {
			m.UnreadConversations++
		}
	}
	return m, nil
}

type memExhausted struct{ s *memStore }

func (r memExhausted) Save(_ context.Context, event model.ExhaustedEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.exhausted = append(r.s.exhausted, event)
	return nil
}

func (r memExhausted) ListUnresolved(_ context.Context, limit int) ([]model.ExhaustedEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.ExhaustedEvent{}
	for _, e := range r.s.exhausted {
		if !e.Resolved && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- cache, delivery and publishing ---

// memCache implements cache.Store with plain fields.
type memCache struct {
	mu        sync.Mutex
	snapshot  *model.WorkspaceSnapshot
	dashboard *model.DashboardMetrics
	setErr    error
}

var _ cache.Store = (*memCache)(nil)

func (c *memCache) GetSnapshot(context.Context) (*model.WorkspaceSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil, cache.ErrCacheMiss
	}
	cp := *c.snapshot
	return &cp, nil
}

func (c *memCache) SetSnapshot(_ context.Context, snap *model.WorkspaceSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *snap
	c.snapshot = &cp
	return nil
}

func (c *memCache) InvalidateSnapshot(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	return nil
}

func (c *memCache) GetDashboard(context.Context) (*model.DashboardMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dashboard == nil {
		return nil, cache.ErrCacheMiss
	}
	cp := *c.dashboard
	return &cp, nil
}

func (c *memCache) SetDashboard(_ context.Context, metrics *model.DashboardMetrics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	cp := *metrics
	c.dashboard = &cp
	return nil
}

func (c *memCache) InvalidateDashboard(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dashboard = nil
	return nil
}

type dispatched struct {
	msg       model.Message
	recipient string
}

// recordingDispatcher keeps every dispatched message instead of delivering it.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []dispatched
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg model.Message, recipient string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, dispatched{msg: msg, recipient: recipient})
}

func (d *recordingDispatcher) all() []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatched{}, d.sent...)
}

type published struct {
	subject string
	msgID   string
	payload interface{}
}

// recordingPublisher keeps every JetStream publish.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, subject, msgID string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, msgID: msgID, payload: payload})
	return nil
}

func (p *recordingPublisher) onSubject(subject string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []published{}
	for _, m := range p.msgs {
		if m.subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// inlineLocker always grants the lock.
type inlineLocker struct {
	err error
}

func (l inlineLocker) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}
