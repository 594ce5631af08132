//go:build integration

package integration_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.com/careops/api/careops-orchestrator/internal/api"
	"gitlab.com/careops/api/careops-orchestrator/internal/jetstream"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
)

const (
	eventuallyTimeout = 20 * time.Second
	eventuallyTick    = 200 * time.Millisecond
)

func (s *BaseIntegrationSuite) bookingPayload(submissionID string) *model.PublicBookingPayload {
	return model.NewPublicBookingPayload(&model.PublicBookingPayload{
		SubmissionID: submissionID,
		ServiceID:    DefaultServiceID,
		Email:        fmt.Sprintf("itest+%s@example.com", uuid.NewString()[:8]),
		Time:         "10:00 AM",
	})
}

func (s *BaseIntegrationSuite) publish(eventType model.EventType, msgID string, payload interface{}) {
	subject := eventType.Subject(s.WorkspaceID)
	s.Require().NoError(s.App.JetStream.PublishJSON(s.Scoped(), subject, msgID, payload), "publish %s", subject)
}

func (s *BaseIntegrationSuite) waitForBooking(submissionID string) *model.Booking {
	var booking *model.Booking
	s.Require().Eventually(func() bool {
		b, err := s.App.Repos.Bookings.FindBySubmissionID(s.Scoped(), submissionID)
		if err != nil {
			return false
		}
		booking = b
		return true
	}, eventuallyTimeout, eventuallyTick, "booking for submission %s was never created", submissionID)
	return booking
}

func (s *BaseIntegrationSuite) TestPublicBookingOverNATS() {
	payload := s.bookingPayload(uuid.NewString())
	s.publish(model.V1PublicBookings, payload.SubmissionID, payload)

	booking := s.waitForBooking(payload.SubmissionID)
	s.Equal(model.BookingConfirmed, booking.Status)
	s.Equal("Main Office", booking.Location)
	s.Equal(30, booking.Duration)

	var details *usecase.BookingDetails
	s.Require().Eventually(func() bool {
		d, err := s.App.Orchestrator.GetBooking(s.Scoped(), booking.ID)
		if err != nil || len(d.Steps) < len(usecase.SubmissionSteps) {
			return false
		}
		details = d
		return true
	}, eventuallyTimeout, eventuallyTick)

	statuses := map[model.AutomationStepName]model.StepStatus{}
	for _, step := range details.Steps {
		statuses[step.Step] = step.Status
	}
	s.Equal(model.StepSucceeded, statuses[model.StepConfirmation])
	s.Equal(model.StepSucceeded, statuses[model.StepReminders])
	s.Equal(model.StepSucceeded, statuses[model.StepForms], "no active templates means nothing to send")

	s.Require().Len(details.Reminders, 2)
	offsets := map[model.ReminderOffset]bool{}
	for _, r := range details.Reminders {
		s.Equal(model.ReminderScheduled, r.Status)
		offsets[r.Offset] = true
	}
	s.True(offsets[model.Reminder24h])
	s.True(offsets[model.Reminder1h])

	conv, err := s.App.Repos.Conversations.FindLatestByContact(s.Scoped(), booking.ContactID)
	s.Require().NoError(err)
	s.Require().NotNil(conv.RelatedBookingID)
	s.Equal(booking.ID, *conv.RelatedBookingID)
	s.Equal(model.AutomationActive, conv.AutomationStatus)
}

func (s *BaseIntegrationSuite) TestReplayedSubmissionBooksOnce() {
	payload := s.bookingPayload(uuid.NewString())

	// No msg id, so JetStream dedup does not hide the second copy.
	s.publish(model.V1PublicBookings, "", payload)
	s.publish(model.V1PublicBookings, "", payload)

	booking := s.waitForBooking(payload.SubmissionID)

	s.Never(func() bool {
		bookings, err := s.App.Repos.Bookings.ListBetween(s.Scoped(), booking.Date, booking.Date)
		return err != nil || len(bookings) != 1
	}, 3*time.Second, 250*time.Millisecond, "the replayed submission must not create a second booking")
}

func (s *BaseIntegrationSuite) TestCancelBookingCancelsReminders() {
	ctx := s.Scoped()
	outcome, err := s.App.Orchestrator.SubmitPublicBooking(ctx, *s.bookingPayload(uuid.NewString()))
	s.Require().NoError(err)
	s.Require().Equal(model.StepSucceeded, outcome.Steps[model.StepReminders])

	cancelled, err := s.App.Orchestrator.CancelBooking(ctx, outcome.Booking.ID)
	s.Require().NoError(err)
	s.Equal(model.BookingCancelled, cancelled.Status)
	s.NotNil(cancelled.CancelledAt)

	reminders, err := s.App.Repos.Reminders.ListByBooking(ctx, outcome.Booking.ID)
	s.Require().NoError(err)
	s.Require().Len(reminders, 2)
	for _, r := range reminders {
		s.Equal(model.ReminderCancelled, r.Status, "reminder %s", r.Offset)
	}
}

func (s *BaseIntegrationSuite) TestStaffReplyPausesAutomation() {
	ctx := s.Scoped()
	outcome, err := s.App.Orchestrator.SubmitContactForm(ctx, *model.NewContactFormPayload())
	s.Require().NoError(err)
	s.Equal(model.AutomationActive, outcome.Conversation.AutomationStatus)

	_, err = s.App.Messaging.AddMessageToConversation(ctx, outcome.Conversation.ID, model.MessageInput{
		Sender:  model.SenderStaff,
		Content: "We'll call you back this afternoon.",
		Channel: model.ChannelEmail,
		Type:    model.MessageStaffReply,
	})
	s.Require().NoError(err)

	conv, err := s.App.Messaging.GetConversation(ctx, outcome.Conversation.ID)
	s.Require().NoError(err)
	s.Equal(model.AutomationPaused, conv.AutomationStatus)
	s.Equal(model.SenderStaff, conv.LastMessageSender)

	resumed, err := s.App.Messaging.ResumeAutomation(ctx, conv.ID)
	s.Require().NoError(err)
	s.Equal(model.AutomationActive, resumed.AutomationStatus)
}

func (s *BaseIntegrationSuite) TestMalformedEventIsExhausted() {
	subject := model.V1PublicBookings.Subject(s.WorkspaceID)
	err := s.App.JetStream.Publish(subject, []byte(`{"name": `), jetstream.Headers(s.Scoped(), uuid.NewString()))
	s.Require().NoError(err)

	var exhausted []model.ExhaustedEvent
	s.Require().Eventually(func() bool {
		events, err := s.App.Exhausted.ListExhausted(s.Scoped(), 10)
		if err != nil || len(events) == 0 {
			return false
		}
		exhausted = events
		return true
	}, 2*eventuallyTimeout, eventuallyTick, "malformed event never reached the exhausted store")

	s.Require().Len(exhausted, 1)
	s.True(strings.Contains(exhausted[0].SourceSubject, string(model.V1PublicBookings)))
	s.Equal(s.WorkspaceID, exhausted[0].WorkspaceID)
	s.False(exhausted[0].Resolved)
}

func (s *BaseIntegrationSuite) TestBookingOverHTTP() {
	body, err := json.Marshal(s.bookingPayload(uuid.NewString()))
	s.Require().NoError(err)

	req, err := http.NewRequestWithContext(s.Ctx, http.MethodPost, s.APIURL+"/public/bookings", strings.NewReader(string(body)))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderWorkspaceID, s.WorkspaceID)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("X-Request-ID"))

	var outcome usecase.BookingOutcome
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&outcome))
	s.Equal(model.BookingConfirmed, outcome.Booking.Status)

	req, err = http.NewRequestWithContext(s.Ctx, http.MethodGet, s.APIURL+"/bookings/"+outcome.Booking.ID, nil)
	s.Require().NoError(err)
	req.Header.Set(api.HeaderWorkspaceID, "someone-else")
	forbidden, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	forbidden.Body.Close()
	s.Equal(http.StatusUnauthorized, forbidden.StatusCode)
}
