package api

import (
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// Status represents the lifecycle state of an orchestration instance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transitions may leave this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Instance is one logical run of the trigger → activity → notification flow.
//
// The ID doubles as the notification correlation key: it is the requester's
// identity, so at most one instance can be active per requester at a time.
type Instance struct {
	ID     string
	Status Status

	// Input is the opaque payload supplied when the instance was started.
	// It is immutable after creation and is re-fed to the activity on
	// every attempt, including attempts after a process restart.
	Input any

	// Output is set exactly once, on the transition to StatusCompleted.
	Output any

	// FailureReason records why the instance ended in StatusFailed.
	FailureReason string

	// Attempt counts activity invocations for this run. It starts at 0
	// and is persisted before each invocation, so a resumed instance
	// continues counting where the crashed process left off.
	Attempt int

	CreatedAt   time.Time
	CompletedAt time.Time
}

// Clone returns a shallow copy of the instance.
func (i *Instance) Clone() *Instance {
	c := *i
	return &c
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// Status, if non-empty, limits results to instances with the given status.
	Status Status
}

// RetryPolicy controls how the activity is retried when it reports a
// transient failure. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 5 => initial call + up to 4 retries
//
// InitialBackoff is the delay before the first retry; each subsequent delay
// is multiplied by BackoffMultiplier (2.0 when unset) and capped at
// MaxBackoff when that is positive.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryPolicy returns the retry settings used when none are configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        time.Minute,
	}
}
