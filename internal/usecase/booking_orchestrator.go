package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/calendar"
	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/internal/validator"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// errStepSkipped marks a step that had nothing to do.
var errStepSkipped = errors.New("step skipped")

// SubmissionSteps run after every public booking, in this order.
var SubmissionSteps = []model.AutomationStepName{
	model.StepConfirmation,
	model.StepForms,
	model.StepReminders,
	model.StepDeduction,
	model.StepAlerts,
}

// BookingOutcome is what a public submission produced. Steps records the
// status of every downstream step; a failed step never undoes the booking.
type BookingOutcome struct {
	Booking      *model.Booking                                `json:"booking"`
	Contact      *model.Contact                                `json:"contact"`
	Conversation *model.Conversation                           `json:"conversation,omitempty"`
	Steps        map[model.AutomationStepName]model.StepStatus `json:"steps"`
	Replayed     bool                                          `json:"replayed,omitempty"`
}

// ContactOutcome is what a contact-form submission produced.
type ContactOutcome struct {
	Contact      *model.Contact      `json:"contact"`
	Conversation *model.Conversation `json:"conversation"`
	Messages     []model.Message     `json:"messages"`
}

// BookingDetails is a booking with everything automation did for it.
type BookingDetails struct {
	Booking   *model.Booking         `json:"booking"`
	Steps     []model.AutomationStep `json:"steps"`
	Reminders []model.Reminder       `json:"reminders"`
	Forms     []model.FormSubmission `json:"forms"`
}

// CalendarCell is one day of the month view with its bookings.
type CalendarCell struct {
	Date     model.Date      `json:"date"`
	InMonth  bool            `json:"in_month"`
	Bookings []model.Booking `json:"bookings"`
}

// BookingOrchestrator runs the booking-to-automation workflow.
type BookingOrchestrator struct {
	bookings  storage.BookingRepo
	steps     storage.AutomationStepRepo
	forms     storage.FormRepo
	state     *WorkspaceState
	contacts  *ContactResolver
	linker    *ConversationLinker
	engine    *MessagingEngine
	formsSvc  *FormsService
	reminders *ReminderScheduler
	inventory *InventoryService
	alerts    *AlertService
	dashboard *DashboardService
	settings  Settings
	now       Clock
}

// NewBookingOrchestrator wires the orchestrator onto its collaborators.
func NewBookingOrchestrator(
	repos storage.Repositories,
	state *WorkspaceState,
	contacts *ContactResolver,
	linker *ConversationLinker,
	engine *MessagingEngine,
	formsSvc *FormsService,
	reminders *ReminderScheduler,
	inventory *InventoryService,
	alerts *AlertService,
	dashboard *DashboardService,
	settings Settings,
	now Clock,
) *BookingOrchestrator {
	return &BookingOrchestrator{
		bookings:  repos.Bookings,
		steps:     repos.Steps,
		forms:     repos.Forms,
		state:     state,
		contacts:  contacts,
		linker:    linker,
		engine:    engine,
		formsSvc:  formsSvc,
		reminders: reminders,
		inventory: inventory,
		alerts:    alerts,
		dashboard: dashboard,
		settings:  settings,
		now:       now,
	}
}

// SubmitPublicBooking validates the request against the workspace, resolves
// the contact, creates the booking and runs every downstream step. Once the
// booking exists the call succeeds; step failures are recorded per step.
// A request carrying a known submission id resumes the unfinished steps of
// the existing booking instead of booking twice.
func (o *BookingOrchestrator) SubmitPublicBooking(ctx context.Context, req model.PublicBookingPayload) (*BookingOutcome, error) {
	if err := validator.Validate(req); err != nil {
		observer.IncBookingsSubmitted(o.settings.WorkspaceID, "rejected")
		return nil, err
	}
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	log := logger.FromContext(ctx)

	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q: %w", apperrors.ErrValidation, req.Date, err)
	}
	if _, _, err := calendar.ParseSlot(req.Time); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	snap, err := o.state.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.Workspace.Activated {
		observer.IncBookingsSubmitted(o.settings.WorkspaceID, "rejected")
		return nil, apperrors.ErrWorkspaceInactive
	}
	svc, ok := snap.Service(req.ServiceID)
	if !ok {
		observer.IncBookingsSubmitted(o.settings.WorkspaceID, "rejected")
		return nil, fmt.Errorf("%w: service %s", apperrors.ErrNotFound, req.ServiceID)
	}
	if o.settings.Automation.EnforceAvailability &&
		!calendar.SlotAdmissible(snap.Availability.DaysOfWeek, snap.Availability.TimeSlots, date.Time, req.Time) {
		observer.IncBookingsSubmitted(o.settings.WorkspaceID, "rejected")
		return nil, fmt.Errorf("%w: %s at %s is not an available slot", apperrors.ErrValidation, date, req.Time)
	}

	if req.SubmissionID != "" {
		existing, err := o.bookings.FindBySubmissionID(ctx, req.SubmissionID)
		if err == nil {
			return o.replay(ctx, existing)
		}
		if !apperrors.IsNotFoundError(err) {
			return nil, err
		}
	}

	contact, err := o.contacts.FindOrCreateContact(ctx, req.Contact())
	if err != nil {
		return nil, err
	}

	location := strings.TrimSpace(req.Location)
	if location == "" {
		location = svc.Location
	}
	if location == "" {
		location = model.DefaultLocation
	}
	booking := model.Booking{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		SubmissionID: req.SubmissionID,
		ContactID:    contact.ID,
		CustomerName: strings.TrimSpace(req.Name),
		ServiceID:    svc.ID,
		Service:      svc.Name,
		Date:         date,
		Time:         req.Time,
		Duration:     svc.Duration,
		Location:     location,
		Notes:        req.Notes,
		Status:       model.BookingConfirmed,
		CreatedAt:    o.now(),
	}
	err = o.bookings.Create(ctx, booking)
	if errors.Is(err, apperrors.ErrDuplicate) && req.SubmissionID != "" {
		existing, findErr := o.bookings.FindBySubmissionID(ctx, req.SubmissionID)
		if findErr != nil {
			return nil, findErr
		}
		return o.replay(ctx, existing)
	}
	if err != nil {
		return nil, err
	}

	observer.IncBookingsSubmitted(o.settings.WorkspaceID, "created")
	log.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.String("contact_id", contact.ID),
		zap.String("service_id", svc.ID),
	)
	o.dashboard.Invalidate(ctx)

	outcome := &BookingOutcome{Booking: &booking, Contact: contact}
	outcome.Conversation, outcome.Steps = o.runSteps(ctx, &booking, SubmissionSteps, nil)
	return outcome, nil
}

// replay resumes the steps of an existing booking that never succeeded.
func (o *BookingOrchestrator) replay(ctx context.Context, booking *model.Booking) (*BookingOutcome, error) {
	observer.IncBookingsSubmitted(o.settings.WorkspaceID, "replayed")
	logger.FromContext(ctx).Info("Submission already booked, resuming", zap.String("booking_id", booking.ID))

	contact, err := o.contacts.GetContact(ctx, booking.ContactID)
	if err != nil {
		return nil, err
	}
	records, err := o.steps.List(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	now := o.now()
	done := make(map[model.AutomationStepName]model.StepStatus, len(records))
	for _, r := range records {
		switch {
		case r.Status == model.StepSucceeded, r.Status == model.StepSkipped:
			done[r.Step] = r.Status
		case r.Status == model.StepRunning && !o.settings.staleRunning(r, now):
			done[r.Step] = r.Status
		}
	}
	pending := make([]model.AutomationStepName, 0, len(SubmissionSteps))
	for _, step := range SubmissionSteps {
		if _, ok := done[step]; !ok {
			pending = append(pending, step)
		}
	}

	outcome := &BookingOutcome{Booking: booking, Contact: contact, Replayed: true}
	var statuses map[model.AutomationStepName]model.StepStatus
	outcome.Conversation, statuses = o.runSteps(ctx, booking, pending, nil)
	for step, status := range done {
		statuses[step] = status
	}
	outcome.Steps = statuses
	return outcome, nil
}

// RetryStep re-runs one step of an existing booking. A step that already
// succeeded is left alone.
func (o *BookingOrchestrator) RetryStep(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error) {
	booking, err := o.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	record, err := o.steps.Find(ctx, bookingID, step)
	if err != nil {
		return nil, err
	}
	if record.Status == model.StepSucceeded {
		logger.FromContext(ctx).Info("Step already succeeded, nothing to retry",
			zap.String("booking_id", bookingID), zap.String("step", string(step)))
		return record, nil
	}

	o.runSteps(ctx, booking, []model.AutomationStepName{step}, nil)
	return o.steps.Find(ctx, bookingID, step)
}

// ExecuteStep runs one step on staff request even if it succeeded before.
// Deduction keeps its run-once guard.
func (o *BookingOrchestrator) ExecuteStep(ctx context.Context, bookingID string, step model.AutomationStepName) (*model.AutomationStep, error) {
	booking, err := o.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	_, statuses := o.runSteps(ctx, booking, []model.AutomationStepName{step}, nil)
	record, err := o.steps.Find(ctx, bookingID, step)
	if apperrors.IsNotFoundError(err) {
		return &model.AutomationStep{BookingID: bookingID, Step: step, Status: statuses[step]}, nil
	}
	return record, err
}

// UpdateBookingStatus applies a staff status change, last write wins.
// Cancelling cancels the reminders; completing deducts inventory once when
// deduction happens on completion.
func (o *BookingOrchestrator) UpdateBookingStatus(ctx context.Context, bookingID string, status model.BookingStatus) (*model.Booking, error) {
	if !model.ValidBookingStatus(status) {
		return nil, fmt.Errorf("%w: unknown booking status %q", apperrors.ErrValidation, status)
	}
	booking, previous, err := o.bookings.UpdateStatus(ctx, bookingID, status)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With(zap.String("booking_id", bookingID))
	if previous != status {
		log.Info("Booking status changed", zap.String("from", string(previous)), zap.String("to", string(status)))
		o.dashboard.Invalidate(ctx)
	}

	switch status {
	case model.BookingCancelled:
		// Reminders may have been registered after an earlier cancel failed
		// half-way, so this runs even when the status did not change.
		if _, err := o.reminders.CancelReminders(ctx, bookingID); err != nil {
			return booking, err
		}
	case model.BookingCompleted:
		if o.settings.Automation.DeductOn == config.DeductOnCompleted {
			o.runSteps(ctx, booking, []model.AutomationStepName{model.StepDeduction}, nil)
		}
	}
	return booking, nil
}

// CancelBooking cancels the booking and its reminders.
func (o *BookingOrchestrator) CancelBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	return o.UpdateBookingStatus(ctx, bookingID, model.BookingCancelled)
}

// GetBooking returns the booking with its automation records.
func (o *BookingOrchestrator) GetBooking(ctx context.Context, bookingID string) (*BookingDetails, error) {
	booking, err := o.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	steps, err := o.steps.List(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	reminders, err := o.reminders.ListReminders(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	forms, err := o.forms.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &BookingDetails{Booking: booking, Steps: steps, Reminders: reminders, Forms: forms}, nil
}

// SubmitContactForm resolves the contact, links its thread, welcomes it and
// appends the optional customer message.
func (o *BookingOrchestrator) SubmitContactForm(ctx context.Context, req model.ContactFormPayload) (*ContactOutcome, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	snap, err := o.state.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.Workspace.Activated {
		return nil, apperrors.ErrWorkspaceInactive
	}
	log := logger.FromContext(ctx)

	contact, err := o.contacts.FindOrCreateContact(ctx, req.Contact())
	if err != nil {
		return nil, err
	}
	active := model.AutomationActive
	conv, err := o.linker.FindOrCreateConversation(ctx, contact.ID, contact.Name, model.ConversationOverrides{AutomationStatus: &active})
	if err != nil {
		return nil, err
	}

	outcome := &ContactOutcome{Contact: contact, Conversation: conv, Messages: []model.Message{}}
	welcome, err := o.engine.SendWelcome(ctx, contact, conv)
	switch {
	case errors.Is(err, ErrAutomationPaused):
		log.Info("Automation paused, welcome not sent", zap.String("conversation_id", conv.ID))
	case err != nil:
		log.Error("Failed to send welcome message", zap.String("conversation_id", conv.ID), zap.Error(err))
	default:
		outcome.Messages = append(outcome.Messages, *welcome)
	}

	if text := strings.TrimSpace(req.Message); text != "" {
		msg, err := o.engine.AddMessageToConversation(ctx, conv.ID, model.MessageInput{
			Sender:  model.SenderCustomer,
			Content: text,
			Channel: model.ChannelForm,
			Type:    model.MessageCustomer,
		})
		if err != nil {
			return outcome, err
		}
		outcome.Messages = append(outcome.Messages, *msg)
	}
	return outcome, nil
}

// HandleInboundMessage appends a customer reply from a channel provider to
// the sender's thread.
func (o *BookingOrchestrator) HandleInboundMessage(ctx context.Context, payload model.InboundMessagePayload) (*model.Message, error) {
	if err := validator.Validate(payload); err != nil {
		return nil, err
	}
	contact, err := o.contacts.FindOrCreateContact(ctx, payload.Contact())
	if err != nil {
		return nil, err
	}
	conv, err := o.linker.FindOrCreateConversation(ctx, contact.ID, contact.Name, model.ConversationOverrides{})
	if err != nil {
		return nil, err
	}
	return o.engine.AddMessageToConversation(ctx, conv.ID, model.MessageInput{
		Sender:  model.SenderCustomer,
		Content: payload.Content,
		Channel: payload.Channel,
		Type:    model.MessageCustomer,
	})
}

// HandleReminderFired posts the reminder message and then marks the reminder
// fired. A reminder that was cancelled or already fired is ignored.
func (o *BookingOrchestrator) HandleReminderFired(ctx context.Context, payload model.ReminderFiredPayload) (*model.Message, error) {
	if err := validator.Validate(payload); err != nil {
		return nil, err
	}
	current, err := o.reminders.GetReminder(ctx, payload.ReminderID)
	if err != nil {
		return nil, err
	}
	if current.BookingID != payload.BookingID {
		return nil, fmt.Errorf("%w: reminder %s belongs to booking %s, not %s",
			apperrors.ErrValidation, current.ID, current.BookingID, payload.BookingID)
	}
	log := logger.FromContext(ctx).With(zap.String("reminder_id", current.ID))
	if current.Status != model.ReminderScheduled {
		log.Info("Reminder not scheduled anymore, ignoring", zap.String("status", string(current.Status)))
		return nil, nil
	}

	// The reminder stays Scheduled until the message is out, so a failed send
	// is retried by the redelivery.
	msg, err := o.engine.SendReminderMessage(ctx, current)
	if err != nil {
		return nil, err
	}
	_, fired, err := o.reminders.MarkFired(ctx, current.ID)
	if err != nil {
		log.Error("Reminder sent but not marked fired", zap.Error(err))
		return msg, nil
	}
	if !fired {
		log.Warn("Reminder fired concurrently")
	}
	return msg, nil
}

// BookingsForDay lists the bookings on date.
func (o *BookingOrchestrator) BookingsForDay(ctx context.Context, date model.Date) ([]model.Booking, error) {
	bookings, err := o.bookings.ListBetween(ctx, date, date)
	if err != nil {
		return nil, err
	}
	return calendar.BookingsForDay(bookings, date.Time), nil
}

// CalendarMonth lays out the month grid with each cell's bookings.
func (o *BookingOrchestrator) CalendarMonth(ctx context.Context, year int, month time.Month) ([]CalendarCell, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d", apperrors.ErrValidation, month)
	}
	grid := calendar.MonthGrid(year, month)
	bookings, err := o.bookings.ListBetween(ctx, model.NewDate(grid[0].Date), model.NewDate(grid[len(grid)-1].Date))
	if err != nil {
		return nil, err
	}

	cells := make([]CalendarCell, len(grid))
	for i, day := range grid {
		cells[i] = CalendarCell{
			Date:     model.NewDate(day.Date),
			InMonth:  day.InMonth,
			Bookings: calendar.BookingsForDay(bookings, day.Date),
		}
	}
	return cells, nil
}

// CheckSlot reports whether slot on date is bookable under the current availability.
func (o *BookingOrchestrator) CheckSlot(ctx context.Context, date model.Date, slot string) (bool, error) {
	snap, err := o.state.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return calendar.SlotAdmissible(snap.Availability.DaysOfWeek, snap.Availability.TimeSlots, date.Time, slot), nil
}

// runSteps executes steps in order, recording each outcome. The conversation
// is linked lazily for the steps that post messages; conv may be passed in
// when the caller already has it.
func (o *BookingOrchestrator) runSteps(
	ctx context.Context,
	booking *model.Booking,
	steps []model.AutomationStepName,
	conv *model.Conversation,
) (*model.Conversation, map[model.AutomationStepName]model.StepStatus) {
	var convErr error
	thread := func() (*model.Conversation, error) {
		if conv != nil || convErr != nil {
			return conv, convErr
		}
		active := model.AutomationActive
		bookingID := booking.ID
		conv, convErr = o.linker.FindOrCreateConversation(ctx, booking.ContactID, booking.CustomerName, model.ConversationOverrides{
			RelatedBookingID: &bookingID,
			AutomationStatus: &active,
		})
		return conv, convErr
	}
	// The thread is linked up front so that it exists even when every
	// message step is skipped.
	if _, err := thread(); err != nil {
		logger.FromContext(ctx).Error("Failed to link conversation", zap.String("booking_id", booking.ID), zap.Error(err))
	}

	statuses := make(map[model.AutomationStepName]model.StepStatus, len(steps))
	for _, step := range steps {
		statuses[step] = o.runStep(ctx, booking, step, thread)
	}
	return conv, statuses
}

func (o *BookingOrchestrator) runStep(
	ctx context.Context,
	booking *model.Booking,
	step model.AutomationStepName,
	thread func() (*model.Conversation, error),
) model.StepStatus {
	log := logger.FromContext(ctx).With(zap.String("booking_id", booking.ID), zap.String("step", string(step)))

	if step == model.StepDeduction {
		if o.settings.Automation.DeductOn != config.DeductOnSubmitted && booking.Status != model.BookingCompleted {
			if prev, err := o.steps.Find(ctx, booking.ID, step); err == nil &&
				(prev.Status == model.StepSucceeded || prev.Status == model.StepRunning) {
				return prev.Status
			}
			return o.record(ctx, booking, step, errStepSkipped)
		}
		staleBefore := o.now().Add(-o.settings.Automation.StepStaleAfter)
		claimed, err := o.steps.Claim(ctx, booking.ID, step, staleBefore)
		if err != nil {
			log.Error("Failed to claim deduction", zap.Error(err))
			return o.record(ctx, booking, step, err)
		}
		if !claimed {
			log.Info("Deduction already ran or is running")
			return model.StepSucceeded
		}
	}

	var err error
	switch step {
	case model.StepConfirmation:
		var conv *model.Conversation
		if conv, err = thread(); err == nil {
			_, err = o.engine.SendBookingConfirmation(ctx, booking, conv)
		}
	case model.StepForms:
		var conv *model.Conversation
		if conv, err = thread(); err == nil {
			_, err = o.formsSvc.SendFormsForBooking(ctx, booking, conv)
		}
	case model.StepReminders:
		_, err = o.reminders.ScheduleReminders(ctx, booking)
	case model.StepDeduction:
		_, err = o.inventory.DeductForBooking(ctx, booking)
	case model.StepAlerts:
		_, err = o.alerts.GenerateAlertsForBooking(ctx, booking)
	default:
		err = fmt.Errorf("%w: unknown step %q", apperrors.ErrValidation, step)
	}
	if errors.Is(err, ErrAutomationPaused) {
		err = errStepSkipped
	}
	if err != nil && !errors.Is(err, errStepSkipped) {
		log.Error("Automation step failed", zap.Error(err))
	}
	return o.record(ctx, booking, step, err)
}

func (o *BookingOrchestrator) record(ctx context.Context, booking *model.Booking, step model.AutomationStepName, err error) model.StepStatus {
	status := model.StepSucceeded
	message := ""
	switch {
	case errors.Is(err, errStepSkipped):
		status = model.StepSkipped
	case err != nil:
		status = model.StepFailed
		message = err.Error()
	}

	observer.IncAutomationStep(o.settings.WorkspaceID, string(step), string(status))
	recordErr := o.steps.Record(ctx, model.AutomationStep{
		BookingID:   booking.ID,
		Step:        step,
		WorkspaceID: booking.WorkspaceID,
		Status:      status,
		Error:       message,
	})
	if recordErr != nil {
		logger.FromContext(ctx).Error("Failed to record automation step",
			zap.String("booking_id", booking.ID),
			zap.String("step", string(step)),
			zap.Error(recordErr),
		)
	}
	return status
}
