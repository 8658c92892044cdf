package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeRunInstance asks a worker to drive the referenced instance to
	// a terminal state. Both freshly started and recovered instances use
	// this type; the coordinator tells the two apart from persisted state.
	TaskTypeRunInstance TaskType = "run-instance"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// InstanceID references the orchestration instance to drive.
	InstanceID string

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time
}

// Queue is a simple async task queue interface. It is the handoff that lets
// the trigger gateway return immediately: starting an instance enqueues a
// task and returns, and workers run the instance on their own time.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
