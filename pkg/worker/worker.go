package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tsudo/taskrelay/internal/taskqueue"
	"github.com/tsudo/taskrelay/pkg/api"
)

// Worker pulls tasks from a Queue and executes them using a Coordinator.
type Worker struct {
	coordinator api.Coordinator
	queue       taskqueue.Queue
	logger      *slog.Logger
}

// New creates a new Worker. If logger is nil, slog.Default() is used.
func New(coordinator api.Coordinator, queue taskqueue.Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		coordinator: coordinator,
		queue:       queue,
		logger:      logger,
	}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: no task processed (dequeue failed or ctx cancelled)
//   - processed == true: a task was processed; err indicates whether the handler succeeded.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeRunInstance:
		_, runErr := w.coordinator.RunInstance(ctx, task.InstanceID)
		if errors.Is(runErr, api.ErrDuplicateInstance) {
			// Someone else is already driving this instance; the task is done.
			return true, nil
		}
		return true, runErr

	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

// Run processes tasks until ctx is cancelled. A failing task is logged and
// does not stop the loop, so a single bad instance cannot kill the worker.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			w.logger.ErrorContext(ctx, "task processing failed", slog.Any("error", err))
			continue
		}
		if !processed {
			continue
		}
	}
}
