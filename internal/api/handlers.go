package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/validator"
)

const defaultExhaustedLimit = 100

type handlers struct {
	Services
}

// bind decodes the request into v. Malformed bodies are bad requests; the use
// cases own field validation.
func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}
	return nil
}

func pathID(c echo.Context, name string) (string, error) {
	id := strings.TrimSpace(c.Param(name))
	if id == "" {
		return "", fmt.Errorf("%w: missing %s", apperrors.ErrBadRequest, name)
	}
	return id, nil
}

func parseDate(raw string) (model.Date, error) {
	d, err := model.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return model.Date{}, fmt.Errorf("%w: date must be YYYY-MM-DD", apperrors.ErrValidation)
	}
	return d, nil
}

func (h *handlers) submitPublicBooking(c echo.Context) error {
	var req model.PublicBookingPayload
	if err := bind(c, &req); err != nil {
		return err
	}
	out, err := h.Bookings.SubmitPublicBooking(c.Request().Context(), req)
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, out)
}

func (h *handlers) submitContactForm(c echo.Context) error {
	var req model.ContactFormPayload
	if err := bind(c, &req); err != nil {
		return err
	}
	out, err := h.Bookings.SubmitContactForm(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *handlers) resolveContact(c echo.Context) error {
	var in model.ContactInput
	if err := bind(c, &in); err != nil {
		return err
	}
	contact, err := h.Contacts.FindOrCreateContact(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, contact)
}

func (h *handlers) getContact(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	contact, err := h.Contacts.GetContact(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, contact)
}

type resolveConversationRequest struct {
	ContactID   string                      `json:"contact_id"`
	ContactName string                      `json:"contact_name"`
	Overrides   model.ConversationOverrides `json:"overrides"`
}

func (h *handlers) resolveConversation(c echo.Context) error {
	var req resolveConversationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	conv, err := h.Contacts.FindOrCreateConversation(c.Request().Context(), req.ContactID, req.ContactName, req.Overrides)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *handlers) getConversation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	conv, err := h.Messaging.GetConversation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *handlers) addMessage(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in model.MessageInput
	if err := bind(c, &in); err != nil {
		return err
	}
	msg, err := h.Messaging.AddMessageToConversation(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *handlers) markConversationRead(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	conv, err := h.Messaging.MarkConversationRead(c.Request().Context(), id).Unwrap()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *handlers) resumeAutomation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	conv, err := h.Messaging.ResumeAutomation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *handlers) retryMessage(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	msg, err := h.Messaging.RetryMessage(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, msg)
}

func (h *handlers) bookingsForDay(c echo.Context) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return err
	}
	bookings, err := h.Bookings.BookingsForDay(c.Request().Context(), date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bookings)
}

func (h *handlers) getBooking(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	details, err := h.Bookings.GetBooking(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, details)
}

type bookingStatusRequest struct {
	Status model.BookingStatus `json:"status"`
}

func (h *handlers) updateBookingStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req bookingStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	booking, err := h.Bookings.UpdateBookingStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, booking)
}

func (h *handlers) cancelBooking(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	booking, err := h.Bookings.CancelBooking(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, booking)
}

func (h *handlers) retryStep(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	step, err := pathID(c, "step")
	if err != nil {
		return err
	}
	rec, err := h.Bookings.RetryStep(c.Request().Context(), id, model.AutomationStepName(step))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// executeStep re-runs one automation step on demand.
func (h *handlers) executeStep(step model.AutomationStepName) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c, "id")
		if err != nil {
			return err
		}
		rec, err := h.Bookings.ExecuteStep(c.Request().Context(), id, step)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, rec)
	}
}

func (h *handlers) calendarMonth(c echo.Context) error {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1 || year > 9999 {
		return fmt.Errorf("%w: year must be a number", apperrors.ErrValidation)
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		return fmt.Errorf("%w: month must be 1-12", apperrors.ErrValidation)
	}
	cells, err := h.Bookings.CalendarMonth(c.Request().Context(), year, time.Month(month))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cells)
}

type slotCheckResponse struct {
	Date       model.Date `json:"date"`
	Time       string     `json:"time"`
	Admissible bool       `json:"admissible"`
}

func (h *handlers) checkSlot(c echo.Context) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return err
	}
	slot := strings.TrimSpace(c.QueryParam("time"))
	if slot == "" {
		return fmt.Errorf("%w: time is required", apperrors.ErrValidation)
	}
	ok, err := h.Bookings.CheckSlot(c.Request().Context(), date, slot)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slotCheckResponse{Date: date, Time: slot, Admissible: ok})
}

func (h *handlers) setAvailability(c echo.Context) error {
	var cfg model.AvailabilityConfig
	if err := bind(c, &cfg); err != nil {
		return err
	}
	saved, err := h.Workspace.SetAvailability(c.Request().Context(), cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *handlers) upsertService(c echo.Context) error {
	var svc model.Service
	if err := bind(c, &svc); err != nil {
		return err
	}
	saved, err := h.Workspace.UpsertService(c.Request().Context(), svc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *handlers) deductResources(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	resources, err := h.Inventory.DeductResourceUsage(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resources)
}

type integrationRequest struct {
	Connected bool   `json:"connected"`
	Provider  string `json:"provider"`
}

func (h *handlers) setIntegration(c echo.Context) error {
	channel, err := pathID(c, "channel")
	if err != nil {
		return err
	}
	var req integrationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	integration, err := h.Workspace.SetIntegration(c.Request().Context(), model.Channel(channel), req.Connected, req.Provider)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, integration)
}

func (h *handlers) listResources(c echo.Context) error {
	resources, err := h.Inventory.ListResources(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resources)
}

func (h *handlers) upsertResource(c echo.Context) error {
	var r model.Resource
	if err := bind(c, &r); err != nil {
		return err
	}
	saved, err := h.Inventory.UpsertResource(c.Request().Context(), r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *handlers) upsertFormTemplate(c echo.Context) error {
	var t model.FormTemplate
	if err := bind(c, &t); err != nil {
		return err
	}
	saved, err := h.Forms.UpsertFormTemplate(c.Request().Context(), t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *handlers) completeFormSubmission(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	sub, err := h.Forms.CompleteFormSubmission(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *handlers) listAlerts(c echo.Context) error {
	var filter model.AlertFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &filter); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}
	if err := validator.Validate(filter); err != nil {
		return err
	}
	alerts, err := h.Alerts.ListAlerts(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, alerts)
}

func (h *handlers) evaluateAlerts(c echo.Context) error {
	report, err := h.Alerts.Sweep(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *handlers) markAlertRead(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	alert, err := h.Alerts.MarkAlertRead(c.Request().Context(), id).Unwrap()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, alert)
}

func (h *handlers) dismissAlert(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Alerts.DismissAlert(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) activationChecklist(c echo.Context) error {
	checklist, err := h.Workspace.GetActivationChecklist(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, checklist)
}

func (h *handlers) canActivate(c echo.Context) error {
	ok, err := h.Workspace.CanActivateWorkspace(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"can_activate": ok})
}

// activate answers 200 with the missing list when blocked; a blocked
// activation is an outcome, not an error.
func (h *handlers) activate(c echo.Context) error {
	result, err := h.Workspace.ActivateWorkspace(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handlers) dashboard(c echo.Context) error {
	metrics, err := h.Dashboard.Metrics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, metrics)
}

func (h *handlers) listExhausted(c echo.Context) error {
	limit := defaultExhaustedLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: limit must be a positive number", apperrors.ErrValidation)
		}
		limit = n
	}
	events, err := h.Exhausted.ListExhausted(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}
