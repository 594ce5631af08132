package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// StatusFor maps an application error to its HTTP status.
func StatusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrDuplicate),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrWorkspaceInactive):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders errors as ErrorResponse. Server errors never leak their cause.
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		code := StatusFor(err)
		message := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if msg, ok := he.Message.(string); ok {
				message = msg
			} else {
				message = http.StatusText(code)
			}
		}

		log := logger.FromContext(ctx)
		if code >= http.StatusInternalServerError {
			log.Error("Request failed", zap.Int("status", code), zap.Error(err))
			message = http.StatusText(code)
		} else {
			log.Debug("Request rejected", zap.Int("status", code), zap.Error(err))
		}

		requestID, _ := tenant.FromRequestIDContext(ctx)
		if requestID == "" {
			requestID = c.Response().Header().Get(echo.HeaderXRequestID)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, ErrorResponse{Message: message, RequestID: requestID})
	}
}
