package tenant

import (
	"context"
	"errors"
	"fmt"
)

type contextKey string

const (
	workspaceIDKey contextKey = "workspaceID"
	requestIDKey   contextKey = "requestID"
)

// ErrWorkspaceIDNotFound is returned when no workspace ID is found in context
var ErrWorkspaceIDNotFound = errors.New("workspace ID not found in context")

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithWorkspaceID scopes the context to a workspace.
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, workspaceIDKey, workspaceID)
}

// FromContext extracts the workspace ID from the context
func FromContext(ctx context.Context) (string, error) {
	workspaceID, ok := ctx.Value(workspaceIDKey).(string)
	if !ok || workspaceID == "" {
		return "", ErrWorkspaceIDNotFound
	}
	return workspaceID, nil
}

// MustFromContext extracts the workspace ID from the context or panics
func MustFromContext(ctx context.Context) string {
	workspaceID, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return workspaceID
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}

// Detach returns a background context carrying only the workspace and request
// scope of ctx. Work handed to pools outlives the request that scheduled it.
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if workspaceID, err := FromContext(ctx); err == nil {
		out = WithWorkspaceID(out, workspaceID)
	}
	if requestID, err := FromRequestIDContext(ctx); err == nil {
		out = WithRequestID(out, requestID)
	}
	return out
}

// Ensure checks that the context is scoped to the expected workspace.
func Ensure(ctx context.Context, workspaceID string) error {
	current, err := FromContext(ctx)
	if err != nil {
		return err
	}
	if current != workspaceID {
		return fmt.Errorf("workspace %s does not match context workspace %s", workspaceID, current)
	}
	return nil
}
