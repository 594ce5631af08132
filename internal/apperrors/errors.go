package apperrors

import (
	"errors"
	"fmt"
)

// RetryableError indicates an error that might be resolved by retrying.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryable wraps err as a RetryableError, prefixed with the formatted message.
func NewRetryable(err error, message string, args ...interface{}) error {
	allArgs := append(args, err)
	return &RetryableError{Err: fmt.Errorf(message+": %w", allArgs...)}
}

// FatalError indicates an error that is unlikely to be resolved by retrying.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal wraps err as a FatalError, prefixed with the formatted message.
func NewFatal(err error, message string, args ...interface{}) error {
	allArgs := append(args, err)
	return &FatalError{Err: fmt.Errorf(message+": %w", allArgs...)}
}

// Sentinel errors. Wrap them with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrNotFound: the contact, conversation, booking or other entity does not exist (or is stale).
	ErrNotFound = errors.New("resource not found")
	// ErrValidation: caller input breaks an invariant it could have checked, e.g. neither email nor phone.
	ErrValidation = errors.New("validation failed")
	ErrDatabase   = errors.New("database error")
	ErrNATS       = errors.New("nats communication error")
	ErrCache      = errors.New("cache error")
	// ErrUnauthorized: the request is not scoped to this deployment's workspace.
	ErrUnauthorized = errors.New("unauthorized access")
	ErrDuplicate    = errors.New("duplicate resource")
	ErrConflict     = errors.New("resource conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrTimeout      = errors.New("operation timeout")
	// ErrWorkspaceInactive: public submissions are refused until the workspace is activated.
	ErrWorkspaceInactive = errors.New("workspace is not active")
)

// Classify decides how an event consumer should treat err: storage and transport
// trouble is retryable, bad input and missing entities are fatal.
func Classify(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if IsRetryable(err) || IsFatal(err) {
		return err
	}
	switch {
	case errors.Is(err, ErrDatabase),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrNATS):
		return NewRetryable(err, message, args...)
	default:
		return NewFatal(err, message, args...)
	}
}

// IsRetryable checks if the error is a RetryableError or wraps one.
func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

// IsFatal checks if the error is a FatalError or wraps one.
func IsFatal(err error) bool {
	var target *FatalError
	return errors.As(err, &target)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsBadRequestError(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsNATSError(err error) bool {
	return errors.Is(err, ErrNATS)
}

func IsWorkspaceInactiveError(err error) bool {
	return errors.Is(err, ErrWorkspaceInactive)
}
