package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/usecase"
)

// Server is the staff and public HTTP API.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *zap.Logger
}

// NewServer builds the echo instance with middleware and every route mounted under /api/v1.
func NewServer(port int, workspaceID string, log *zap.Logger, services Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler()

	e.Use(RequestLogger(), RequestContext(workspaceID, log), Recover())

	h := &handlers{Services: services}
	h.register(e.Group("/api/v1"))

	return &Server{
		echo:   e,
		addr:   fmt.Sprintf(":%d", port),
		logger: log,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting API server", zap.String("addr", s.addr))
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.echo.Shutdown(ctx)
}

func (h *handlers) register(g *echo.Group) {
	g.POST("/public/bookings", h.submitPublicBooking)
	g.POST("/public/contact", h.submitContactForm)

	g.POST("/contacts/resolve", h.resolveContact)
	g.GET("/contacts/:id", h.getContact)

	g.POST("/conversations/resolve", h.resolveConversation)
	g.GET("/conversations/:id", h.getConversation)
	g.POST("/conversations/:id/messages", h.addMessage)
	g.POST("/conversations/:id/read", h.markConversationRead)
	g.POST("/conversations/:id/automation/resume", h.resumeAutomation)
	g.POST("/messages/:id/retry", h.retryMessage)

	g.GET("/bookings", h.bookingsForDay)
	g.GET("/bookings/:id", h.getBooking)
	g.PATCH("/bookings/:id/status", h.updateBookingStatus)
	g.POST("/bookings/:id/cancel", h.cancelBooking)
	g.POST("/bookings/:id/steps/:step/retry", h.retryStep)
	g.POST("/bookings/:id/confirmation", h.executeStep(model.StepConfirmation))
	g.POST("/bookings/:id/reminders", h.executeStep(model.StepReminders))
	g.POST("/bookings/:id/forms", h.executeStep(model.StepForms))
	g.POST("/bookings/:id/alerts", h.executeStep(model.StepAlerts))

	g.GET("/calendar/:year/:month", h.calendarMonth)
	g.GET("/availability/check", h.checkSlot)
	g.PUT("/availability", h.setAvailability)
	g.POST("/services", h.upsertService)
	g.POST("/services/:id/deduct", h.deductResources)
	g.PUT("/integrations/:channel", h.setIntegration)

	g.GET("/resources", h.listResources)
	g.POST("/resources", h.upsertResource)
	g.POST("/forms", h.upsertFormTemplate)
	g.POST("/forms/submissions/:id/complete", h.completeFormSubmission)

	g.GET("/alerts", h.listAlerts)
	g.POST("/alerts/evaluate", h.evaluateAlerts)
	g.POST("/alerts/:id/read", h.markAlertRead)
	g.POST("/alerts/:id/dismiss", h.dismissAlert)

	g.GET("/workspace/checklist", h.activationChecklist)
	g.GET("/workspace/can-activate", h.canActivate)
	g.POST("/workspace/activate", h.activate)

	g.GET("/dashboard", h.dashboard)
	g.GET("/dlq/exhausted", h.listExhausted)
}

// NewServices adapts the use cases to the handler interfaces.
func NewServices(
	orchestrator *usecase.BookingOrchestrator,
	resolver *usecase.ContactResolver,
	linker *usecase.ConversationLinker,
	engine *usecase.MessagingEngine,
	state *usecase.WorkspaceState,
	gate *usecase.ActivationGate,
	inventory *usecase.InventoryService,
	forms *usecase.FormsService,
	alerts *usecase.AlertService,
	sweeper *usecase.AlertSweeper,
	dashboard *usecase.DashboardService,
	exhausted *usecase.ExhaustedService,
) Services {
	return Services{
		Bookings:  orchestrator,
		Contacts:  contactServices{resolver, linker},
		Messaging: engine,
		Workspace: workspaceServices{state, gate},
		Inventory: inventory,
		Forms:     forms,
		Alerts:    alertServices{alerts, sweeper},
		Dashboard: dashboard,
		Exhausted: exhausted,
	}
}

type contactServices struct {
	*usecase.ContactResolver
	*usecase.ConversationLinker
}

type workspaceServices struct {
	*usecase.WorkspaceState
	*usecase.ActivationGate
}

type alertServices struct {
	*usecase.AlertService
	*usecase.AlertSweeper
}
