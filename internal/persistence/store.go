package persistence

import (
	"context"
	"errors"

	"github.com/tsudo/taskrelay/pkg/api"
)

var (
	// ErrInstanceNotFound is returned when an orchestration instance is not found.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInstanceExists is returned by CreateInstance when a record with the
	// same ID already exists.
	ErrInstanceExists = errors.New("instance already exists")

	// ErrConflict is returned by conditional updates when the stored status
	// does not match the expected one. Exactly one of several concurrent
	// writers observes success; the rest see ErrConflict.
	ErrConflict = errors.New("instance status conflict")
)

// InstanceFilter is used to select instances from the store.
// A zero status means "no filter".
type InstanceFilter struct {
	Status api.Status
}

// InstanceStore handles durable storage of orchestration instances.
//
// The store is the only owner of persisted instance state; the coordinator
// holds a transient in-memory view while driving a run. All mutations after
// creation go through Transition or RecordAttempt, both of which are
// conditional on the stored status, so no two writers can concurrently
// advance the same instance.
type InstanceStore interface {
	// CreateInstance atomically creates the record if no instance with the
	// same ID exists, returning ErrInstanceExists otherwise.
	CreateInstance(ctx context.Context, inst *api.Instance) error

	// GetInstance returns the instance with the given ID or ErrInstanceNotFound.
	GetInstance(ctx context.Context, id string) (*api.Instance, error)

	// ListInstances returns instances matching the filter.
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*api.Instance, error)

	// Transition atomically replaces the record for inst.ID with inst,
	// provided the stored status equals from. It returns ErrConflict when
	// the stored status differs and ErrInstanceNotFound when no record
	// exists. Input and CreatedAt are overwritten along with the rest of
	// the record, which lets a terminal instance be reset to Pending for a
	// fresh run.
	Transition(ctx context.Context, from api.Status, inst *api.Instance) error

	// RecordAttempt persists the attempt counter for a Running instance,
	// the checkpoint taken before each activity invocation. It returns
	// ErrConflict when the instance is no longer Running (for example it
	// was cancelled in the meantime).
	RecordAttempt(ctx context.Context, id string, attempt int) error
}
