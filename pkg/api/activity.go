package api

import (
	"context"
	"errors"
)

// Activity performs the long-running unit of work for one instance.
//
// Run must not assume it executes exactly once: the coordinator re-invokes
// it after transient failures and after a process restart while the instance
// was running, so implementations must be idempotent or side-effect-free on
// retry.
//
// Errors are classified with Fatal and Transient. A plain error (and a
// context deadline hit) counts as transient and is retried; an error wrapped
// with Fatal ends the instance immediately.
type Activity interface {
	Run(ctx context.Context, input any) (any, error)
}

// ActivityFunc adapts an ordinary function to the Activity interface.
type ActivityFunc func(ctx context.Context, input any) (any, error)

func (f ActivityFunc) Run(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

// fatalError marks an activity failure where retrying cannot help.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return "fatal: " + e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so the coordinator fails the instance without retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was wrapped with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

// transientError marks an activity failure as explicitly retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return "transient: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so it is unambiguously treated as retryable.
// Unwrapped errors are already retried; Transient exists for callers that
// want the classification spelled out at the failure site.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried. Every activity error
// that is not fatal is transient, including context.DeadlineExceeded from
// the activity timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsFatal(err)
}
