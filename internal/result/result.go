// Package result provides a two-variant success/failure value used at
// component boundaries of the conversion pipeline.
package result

import "errors"

var errUnknown = errors.New("unknown failure")

// Result holds either a value or the error that prevented producing it.
// The zero Result is a success carrying the zero value.
type Result[T any] struct {
	value T
	err   error
}

// Success wraps v.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Failure wraps err. A nil err still yields a failure.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = errUnknown
	}
	return Result[T]{err: err}
}

// From converts a conventional (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(v)
}

// IsSuccessful reports whether r carries a value.
func (r Result[T]) IsSuccessful() bool { return r.err == nil }

// Value returns the wrapped value, the zero value on failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure error, nil on success.
func (r Result[T]) Err() error { return r.err }

// Message returns the failure message or an empty string.
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// Unwrap returns the pair form for callers that prefer early returns.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }
