package usecase

// Result carries the outcome of an optimistic two-phase operation: the cached
// projection is adjusted first and restored when the commit fails.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a committed value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps a failed commit.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// IsOk reports whether the commit succeeded.
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// Unwrap returns the value and error in the usual Go order.
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}
