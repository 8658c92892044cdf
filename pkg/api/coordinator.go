package api

import (
	"context"
	"errors"
)

// ErrDuplicateInstance is returned by StartInstance when an instance with
// the same ID is already Pending or Running. Callers typically suppress it:
// the duplicate request is acknowledged but starts nothing.
var ErrDuplicateInstance = errors.New("instance already active")

// ErrNotCancellable is returned by CancelInstance for instances that are
// already terminal.
var ErrNotCancellable = errors.New("instance is not cancellable")

// Coordinator owns the instance lifecycle: it creates instances, drives
// them through activity invocation with checkpointed progress, and triggers
// notification dispatch on completion.
type Coordinator interface {
	// StartInstance durably records a Pending instance and enqueues it for
	// execution, then returns. It never waits for the activity.
	//
	// If an instance with this ID is already Pending or Running, it returns
	// ErrDuplicateInstance and starts nothing. A terminal (Completed or
	// Failed) instance is reset and re-run with the new input.
	StartInstance(ctx context.Context, id string, input any) error

	// RunInstance drives the instance to a terminal state: activity
	// invocation, retries with backoff, and the single notification
	// dispatch. It is called by workers and by the recovery scan, and is
	// safe to call for an instance that is already terminal (a no-op).
	RunInstance(ctx context.Context, id string) (*Instance, error)

	// GetInstance looks up an instance by ID.
	// Returns an error if the instance is not found.
	GetInstance(ctx context.Context, id string) (*Instance, error)

	// ListInstances returns instances matching the given options.
	// If options are zero-valued, all instances are returned.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*Instance, error)

	// CancelInstance moves a Pending or Running instance straight to
	// StatusFailed with the given reason ("cancelled" when empty), aborts
	// an in-flight activity invocation, and still dispatches the failure
	// notification. Terminal instances cannot be cancelled.
	CancelInstance(ctx context.Context, id string, reason string) (*Instance, error)

	// Recover scans the store for non-terminal instances and re-enqueues
	// them for execution. It returns the number of instances enqueued.
	//
	// It is intended to be called on process startup, before workers start,
	// so that an instance left Pending or Running by a crash is driven to
	// completion instead of being stranded.
	Recover(ctx context.Context) (int, error)
}
