package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"

	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

const (
	testWorkspace = "ws-1"
	testServiceID = "svc-clean"
)

// testNow is a Saturday morning.
var testNow = time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC)

type harness struct {
	t          *testing.T
	ctx        context.Context
	clock      time.Time
	store      *memStore
	cache      *memCache
	dispatcher *recordingDispatcher
	publisher  *recordingPublisher
	settings   Settings

	state        *WorkspaceState
	contacts     *ContactResolver
	linker       *ConversationLinker
	engine       *MessagingEngine
	dashboard    *DashboardService
	forms        *FormsService
	reminders    *ReminderScheduler
	inventory    *InventoryService
	alerts       *AlertService
	gate         *ActivationGate
	exhausted    *ExhaustedService
	orchestrator *BookingOrchestrator
}

type harnessOption func(h *harness)

func withDeductOn(mode string) harnessOption {
	return func(h *harness) { h.settings.Automation.DeductOn = mode }
}

// unconfigured leaves the workspace inactive with nothing set up.
func unconfigured() harnessOption {
	return func(h *harness) { h.store = newMemStore(testWorkspace) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		clock:      testNow,
		store:      newMemStore(testWorkspace),
		cache:      &memCache{},
		dispatcher: &recordingDispatcher{},
		publisher:  &recordingPublisher{},
		settings: Settings{
			WorkspaceID: testWorkspace,
			Location:    time.UTC,
			Automation: config.AutomationConfig{
				EnforceAvailability: true,
				DeductOn:            config.DeductOnCompleted,
				SweepInterval:       time.Minute,
				FormOverdueAfter:    24 * time.Hour,
				FormCriticalAfter:   72 * time.Hour,
				SweepLockTTL:        30 * time.Second,
				StepStaleAfter:      5 * time.Minute,
			},
		},
	}
	h.seedWorkspace()
	for _, opt := range opts {
		opt(h)
	}
	h.store.clock = h.now

	ctx := tenant.WithWorkspaceID(context.Background(), testWorkspace)
	ctx = tenant.WithRequestID(ctx, "req-test")
	h.ctx = logger.WithLogger(ctx, zaptest.NewLogger(t))

	now := h.now
	repos := h.store.repositories()
	h.state = NewWorkspaceState(repos.Workspace, h.cache)
	h.dashboard = NewDashboardService(repos.Dashboard, h.cache, h.settings, now)
	h.contacts = NewContactResolver(repos.Contacts)
	h.linker = NewConversationLinker(repos.Contacts, repos.Conversations)
	h.engine = NewMessagingEngine(repos, h.dispatcher, h.state, h.dashboard, now)
	h.forms = NewFormsService(repos.Forms, h.engine, h.dashboard, now)
	h.reminders = NewReminderScheduler(repos.Reminders, h.publisher, h.settings, now)
	h.alerts = NewAlertService(repos, h.dashboard, h.settings, now)
	h.inventory = NewInventoryService(repos.Resources, h.alerts)
	h.gate = NewActivationGate(h.state, repos.Workspace, h.settings, now)
	h.exhausted = NewExhaustedService(repos, now)
	h.orchestrator = NewBookingOrchestrator(repos, h.state, h.contacts, h.linker, h.engine,
		h.forms, h.reminders, h.inventory, h.alerts, h.dashboard, h.settings, now)
	return h
}

func (h *harness) now() time.Time {
	return h.clock
}

// seedWorkspace configures an active workspace with one cleaning service
// bookable every day at 10:00 AM and email connected.
func (h *harness) seedWorkspace() {
	activatedAt := testNow.Add(-24 * time.Hour)
	h.store.workspace.Activated = true
	h.store.workspace.ActivatedAt = &activatedAt
	h.store.services = []model.Service{{
		ID:          testServiceID,
		WorkspaceID: testWorkspace,
		Name:        "Cleaning",
		Duration:    60,
	}}
	h.store.availability = model.AvailabilityConfig{
		WorkspaceID: testWorkspace,
		DaysOfWeek:  datatypes.JSONSlice[string]{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
		TimeSlots:   datatypes.JSONSlice[string]{"10:00 AM", "11:00 AM"},
	}
	h.store.integrations[model.ChannelEmail] = model.Integration{
		WorkspaceID: testWorkspace,
		Channel:     model.ChannelEmail,
		Connected:   true,
		Provider:    "postmark",
	}
}

func (h *harness) addTemplate(id string) {
	h.store.templates = append(h.store.templates, &model.FormTemplate{
		ID:                 id,
		WorkspaceID:        testWorkspace,
		Name:               "Intake " + id,
		Status:             model.FormTemplateActive,
		LinkedBookingTypes: datatypes.JSONSlice[string]{testServiceID},
	})
}

func (h *harness) addResource(id string, quantity, threshold int) {
	h.store.resources = append(h.store.resources, &model.Resource{
		ID:               id,
		WorkspaceID:      testWorkspace,
		Name:             "Supply " + id,
		Quantity:         quantity,
		Threshold:        threshold,
		LinkedServiceIDs: datatypes.JSONSlice[string]{testServiceID},
	})
}

func (h *harness) resource(id string) model.Resource {
	r, err := memResources{h.store}.FindByID(h.ctx, id)
	require.NoError(h.t, err)
	return *r
}

func bookingRequest(submissionID string) model.PublicBookingPayload {
	return model.PublicBookingPayload{
		SubmissionID: submissionID,
		Name:         "Ana Lima",
		Email:        "Ana@Example.com",
		ServiceID:    testServiceID,
		Date:         "2024-06-10",
		Time:         "10:00 AM",
	}
}

func (h *harness) book(submissionID string) *BookingOutcome {
	h.t.Helper()
	out, err := h.orchestrator.SubmitPublicBooking(h.ctx, bookingRequest(submissionID))
	require.NoError(h.t, err)
	return out
}

func (h *harness) step(bookingID string, step model.AutomationStepName) model.AutomationStep {
	h.t.Helper()
	rec, err := memSteps{h.store}.Find(h.ctx, bookingID, step)
	require.NoError(h.t, err)
	return *rec
}
