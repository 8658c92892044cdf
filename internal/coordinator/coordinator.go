package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tsudo/taskrelay/internal/persistence"
	"github.com/tsudo/taskrelay/internal/taskqueue"
	"github.com/tsudo/taskrelay/pkg/api"
)

// DefaultActivityTimeout bounds a single activity invocation when no timeout
// is configured. Exceeding it is a transient failure, not a silent hang.
const DefaultActivityTimeout = 5 * time.Minute

// Config describes how to construct a coordinator.
type Config struct {
	// Retry governs activity re-invocation on transient failure.
	// A zero value means api.DefaultRetryPolicy.
	Retry api.RetryPolicy

	// ActivityTimeout bounds each activity invocation.
	// Zero means DefaultActivityTimeout.
	ActivityTimeout time.Duration

	// Observer receives lifecycle events. Nil means api.NoopObserver.
	Observer api.Observer

	// Logger is used for coordinator-internal logging. Nil means slog.Default.
	Logger *slog.Logger
}

// coordinatorImpl drives instances through the persisted state machine
// Pending → Running → {Completed | Failed}. Every step that matters is
// checkpointed in the store before proceeding, so a restarted process can
// pick up exactly where the last one stopped.
type coordinatorImpl struct {
	store    persistence.InstanceStore
	queue    taskqueue.Queue
	activity api.Activity
	notifier api.Notifier

	retry           api.RetryPolicy
	activityTimeout time.Duration
	observer        api.Observer
	logger          *slog.Logger

	// running tracks instances being driven by this process, keyed by
	// instance ID. It gives CancelInstance a handle to abort an in-flight
	// activity and prevents two local workers from driving the same
	// instance. Cross-process exclusivity comes from the store's
	// conditional transitions.
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New constructs a coordinator over the given store, queue, activity, and
// notifier.
func New(store persistence.InstanceStore, queue taskqueue.Queue, activity api.Activity, notifier api.Notifier, cfg Config) api.Coordinator {
	retry := cfg.Retry
	if retry == (api.RetryPolicy{}) {
		retry = api.DefaultRetryPolicy()
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	timeout := cfg.ActivityTimeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &coordinatorImpl{
		store:           store,
		queue:           queue,
		activity:        activity,
		notifier:        notifier,
		retry:           retry,
		activityTimeout: timeout,
		observer:        obs,
		logger:          logger,
		running:         make(map[string]context.CancelFunc),
	}
}

func (c *coordinatorImpl) StartInstance(ctx context.Context, id string, input any) error {
	if id == "" {
		return errors.New("instance id is required")
	}

	inst := &api.Instance{
		ID:        id,
		Status:    api.StatusPending,
		Input:     input,
		CreatedAt: time.Now(),
	}

	err := c.store.CreateInstance(ctx, inst)
	switch {
	case errors.Is(err, persistence.ErrInstanceExists):
		existing, gerr := c.store.GetInstance(ctx, id)
		if gerr != nil {
			return gerr
		}
		if !existing.Status.Terminal() {
			return api.ErrDuplicateInstance
		}
		// A finished run may be started again: reset the record to Pending
		// with the new input. The conditional transition loses to at most
		// one concurrent starter.
		if terr := c.store.Transition(ctx, existing.Status, inst); terr != nil {
			if errors.Is(terr, persistence.ErrConflict) {
				return api.ErrDuplicateInstance
			}
			return terr
		}
	case err != nil:
		return err
	}

	c.observer.OnInstanceStart(ctx, inst)

	// Enqueue-and-return: the caller never waits for the activity.
	return c.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeRunInstance,
		InstanceID: id,
		EnqueuedAt: time.Now(),
	})
}

func (c *coordinatorImpl) RunInstance(ctx context.Context, id string) (*api.Instance, error) {
	inst, err := c.getInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status.Terminal() {
		// Re-delivered task for a finished instance; nothing to do.
		return inst, nil
	}

	runCtx, cancel, err := c.claim(ctx, id)
	if err != nil {
		return inst, err
	}
	defer c.release(id, cancel)

	if inst.Status == api.StatusPending {
		running := inst.Clone()
		running.Status = api.StatusRunning
		if terr := c.store.Transition(ctx, api.StatusPending, running); terr != nil {
			if errors.Is(terr, persistence.ErrConflict) {
				// Another writer advanced the instance first.
				return c.getInstance(ctx, id)
			}
			return inst, terr
		}
		inst = running
	}
	// An instance found Running here is a crash resume: the attempt counter
	// continues from the persisted value.

	return c.drive(ctx, runCtx, inst)
}

func (c *coordinatorImpl) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	return c.getInstance(ctx, id)
}

func (c *coordinatorImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.Instance, error) {
	return c.store.ListInstances(ctx, persistence.InstanceFilter{Status: opts.Status})
}

func (c *coordinatorImpl) CancelInstance(ctx context.Context, id string, reason string) (*api.Instance, error) {
	if reason == "" {
		reason = "cancelled"
	}

	for {
		inst, err := c.getInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s is %s", api.ErrNotCancellable, id, inst.Status)
		}

		failed := inst.Clone()
		failed.Status = api.StatusFailed
		failed.FailureReason = reason
		failed.CompletedAt = time.Now()

		err = c.store.Transition(ctx, inst.Status, failed)
		if errors.Is(err, persistence.ErrConflict) {
			// The status moved underneath us; re-read and try again.
			// Statuses only move forward, so this terminates.
			continue
		}
		if err != nil {
			return nil, err
		}

		// Abort the in-flight activity, if this process is driving it.
		c.mu.Lock()
		if abort, ok := c.running[id]; ok {
			abort()
		}
		c.mu.Unlock()

		c.observer.OnInstanceFailed(ctx, failed, errors.New(reason))
		c.deliver(ctx, failed, api.FailureMessage(reason))
		return failed, nil
	}
}

func (c *coordinatorImpl) Recover(ctx context.Context) (int, error) {
	count := 0
	for _, status := range []api.Status{api.StatusPending, api.StatusRunning} {
		instances, err := c.store.ListInstances(ctx, persistence.InstanceFilter{Status: status})
		if err != nil {
			return count, err
		}
		for _, inst := range instances {
			err := c.queue.Enqueue(ctx, taskqueue.Task{
				Type:       taskqueue.TaskTypeRunInstance,
				InstanceID: inst.ID,
				EnqueuedAt: time.Now(),
			})
			if err != nil {
				return count, err
			}
			count++
			c.logger.InfoContext(ctx, "re-enqueued unfinished instance",
				slog.String("instance_id", inst.ID),
				slog.String("status", string(inst.Status)),
			)
		}
	}
	return count, nil
}

// drive runs the activity with retries until the instance reaches a terminal
// state, the run context is cancelled, or the instance is advanced by
// another writer.
func (c *coordinatorImpl) drive(ctx context.Context, runCtx context.Context, inst *api.Instance) (*api.Instance, error) {
	attempt := inst.Attempt
	backoff := c.retry.InitialBackoff

	for {
		attempt++
		if err := c.store.RecordAttempt(ctx, inst.ID, attempt); err != nil {
			if errors.Is(err, persistence.ErrConflict) {
				// No longer Running: cancelled underneath us.
				return c.getInstance(ctx, inst.ID)
			}
			return inst, err
		}
		inst.Attempt = attempt

		c.observer.OnAttemptStart(ctx, inst, attempt)

		actCtx, cancel := context.WithTimeout(runCtx, c.activityTimeout)
		start := time.Now()
		output, err := c.activity.Run(actCtx, inst.Input)
		cancel()

		c.observer.OnAttemptCompleted(ctx, inst, attempt, err, time.Since(start))

		if err == nil {
			return c.complete(ctx, inst, output)
		}

		if runCtx.Err() != nil {
			// Cancelled or shutting down while the activity was in flight.
			// Whoever cancelled owns the terminal transition; a shutdown
			// leaves the instance Running for the next recovery scan.
			return c.getInstance(ctx, inst.ID)
		}

		if api.IsFatal(err) {
			return c.fail(ctx, inst, err)
		}

		// Transient failure, including an activity timeout.
		if attempt >= c.retry.MaxAttempts {
			return c.fail(ctx, inst, fmt.Errorf("retries exhausted after %d attempts: %w", attempt, err))
		}

		if backoff > 0 {
			delay := backoff
			if c.retry.MaxBackoff > 0 && delay > c.retry.MaxBackoff {
				delay = c.retry.MaxBackoff
			}
			select {
			case <-runCtx.Done():
				return c.getInstance(ctx, inst.ID)
			case <-time.After(delay):
			}
			backoff = c.nextBackoff(backoff)
		}
	}
}

func (c *coordinatorImpl) complete(ctx context.Context, inst *api.Instance, output any) (*api.Instance, error) {
	done := inst.Clone()
	done.Status = api.StatusCompleted
	done.Output = output
	done.CompletedAt = time.Now()

	if err := c.store.Transition(ctx, api.StatusRunning, done); err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			// Lost the race with a cancellation; the canceller notifies.
			return c.getInstance(ctx, inst.ID)
		}
		return inst, err
	}

	c.observer.OnInstanceCompleted(ctx, done)
	c.deliver(ctx, done, api.SuccessMessage(output))
	return done, nil
}

func (c *coordinatorImpl) fail(ctx context.Context, inst *api.Instance, cause error) (*api.Instance, error) {
	failed := inst.Clone()
	failed.Status = api.StatusFailed
	failed.FailureReason = cause.Error()
	failed.CompletedAt = time.Now()

	if err := c.store.Transition(ctx, api.StatusRunning, failed); err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			return c.getInstance(ctx, inst.ID)
		}
		return inst, err
	}

	c.observer.OnInstanceFailed(ctx, failed, cause)
	c.deliver(ctx, failed, api.FailureMessage(failed.FailureReason))
	return failed, nil
}

// deliver pushes the terminal-state message for inst. It runs only after the
// terminal transition succeeded, so it fires at most once per instance, and
// a delivery failure never alters the instance's outcome.
func (c *coordinatorImpl) deliver(ctx context.Context, inst *api.Instance, msg api.Message) {
	err := c.notifier.Deliver(ctx, inst.ID, msg)
	if err != nil {
		c.logger.ErrorContext(ctx, "notification delivery failed",
			slog.String("instance_id", inst.ID),
			slog.Any("error", err),
		)
	}
	c.observer.OnNotification(ctx, inst, err)
}

func (c *coordinatorImpl) claim(ctx context.Context, id string) (context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.running[id]; ok {
		return nil, nil, api.ErrDuplicateInstance
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running[id] = cancel
	return runCtx, cancel, nil
}

func (c *coordinatorImpl) release(id string, cancel context.CancelFunc) {
	c.mu.Lock()
	delete(c.running, id)
	c.mu.Unlock()
	cancel()
}

func (c *coordinatorImpl) getInstance(ctx context.Context, id string) (*api.Instance, error) {
	inst, err := c.store.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrInstanceNotFound, id)
		}
		return nil, err
	}
	return inst, nil
}

func (c *coordinatorImpl) nextBackoff(cur time.Duration) time.Duration {
	multiplier := c.retry.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	next := time.Duration(float64(cur) * multiplier)
	if c.retry.MaxBackoff > 0 && next > c.retry.MaxBackoff {
		return c.retry.MaxBackoff
	}
	return next
}
