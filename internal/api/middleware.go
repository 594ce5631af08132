package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// HeaderWorkspaceID optionally names the workspace a request targets.
const HeaderWorkspaceID = "X-Workspace-ID"

// RequestContext scopes every request to the deployment's workspace and a
// request ID, taken from X-Request-ID or generated. A request naming another
// workspace is rejected.
func RequestContext(workspaceID string, base *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := strings.TrimSpace(req.Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := tenant.WithRequestID(req.Context(), requestID)
			ctx = tenant.WithWorkspaceID(ctx, workspaceID)
			ctx = logger.WithLogger(ctx, base)
			c.SetRequest(req.WithContext(ctx))

			if ws := strings.TrimSpace(req.Header.Get(HeaderWorkspaceID)); ws != "" && ws != workspaceID {
				return fmt.Errorf("%w: workspace %q is not served here", apperrors.ErrUnauthorized, ws)
			}
			return next(c)
		}
	}
}

// RequestLogger writes one line per request once the error handler has run.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			logger.FromContext(req.Context()).Info("Request",
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.String("remote_ip", c.RealIP()),
				zap.Int64("response_size", res.Size),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}
	}
}

// Recover turns a handler panic into a 500.
func Recover() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return utils.WrapWithRecovery(func() error { return next(c) })()
		}
	}
}
