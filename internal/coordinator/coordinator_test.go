package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tsudo/taskrelay/internal/persistence"
	"github.com/tsudo/taskrelay/internal/taskqueue"
	"github.com/tsudo/taskrelay/pkg/api"
)

// notifyRecorder captures deliveries so tests can assert on dispatch counts.
type notifyRecorder struct {
	mu         sync.Mutex
	deliveries []recordedDelivery
	err        error
}

type recordedDelivery struct {
	recipient string
	msg       api.Message
}

func (r *notifyRecorder) Deliver(ctx context.Context, recipient string, msg api.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, recordedDelivery{recipient: recipient, msg: msg})
	return r.err
}

func (r *notifyRecorder) all() []recordedDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedDelivery(nil), r.deliveries...)
}

type fixture struct {
	store    *persistence.InMemoryStore
	queue    *taskqueue.InMemoryQueue
	notifier *notifyRecorder
	coord    api.Coordinator
}

func newFixture(t *testing.T, activity api.Activity, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		store:    persistence.NewInMemoryStore(),
		queue:    taskqueue.NewInMemoryQueue(64),
		notifier: &notifyRecorder{},
	}
	f.coord = New(f.store, f.queue, activity, f.notifier, cfg)
	return f
}

// runNext dequeues one task and drives its instance to completion.
func (f *fixture) runNext(t *testing.T, ctx context.Context) *api.Instance {
	t.Helper()

	task, err := f.queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	inst, err := f.coord.RunInstance(ctx, task.InstanceID)
	if err != nil {
		t.Fatalf("RunInstance failed: %v", err)
	}
	return inst
}

func fastRetry(maxAttempts int) api.RetryPolicy {
	return api.RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestStartInstance_ReturnsWithoutRunningActivity(t *testing.T) {
	ctx := context.Background()

	invoked := make(chan struct{})
	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		close(invoked)
		return nil, nil
	})
	f := newFixture(t, act, Config{Retry: fastRetry(1)})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}

	select {
	case <-invoked:
		t.Fatalf("activity ran during StartInstance")
	default:
	}

	inst, err := f.coord.GetInstance(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if inst.Status != api.StatusPending {
		t.Fatalf("expected status %q, got %q", api.StatusPending, inst.Status)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("expected 1 queued task, got %d", f.queue.Len())
	}
}

func TestRunInstance_SuccessDeliversOnce(t *testing.T) {
	ctx := context.Background()

	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		return "60s-wait-ok", nil
	})
	f := newFixture(t, act, Config{Retry: fastRetry(3)})

	if err := f.coord.StartInstance(ctx, "user-1", "payload"); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}

	inst := f.runNext(t, ctx)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected status %q, got %q", api.StatusCompleted, inst.Status)
	}
	if inst.Output != "60s-wait-ok" {
		t.Fatalf("expected output %q, got %v", "60s-wait-ok", inst.Output)
	}
	if inst.Attempt != 1 {
		t.Fatalf("expected 1 attempt, got %d", inst.Attempt)
	}
	if inst.CompletedAt.IsZero() {
		t.Fatalf("expected CompletedAt to be set")
	}

	deliveries := f.notifier.all()
	if len(deliveries) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(deliveries))
	}
	if deliveries[0].recipient != "user-1" {
		t.Fatalf("expected recipient %q, got %q", "user-1", deliveries[0].recipient)
	}
	if deliveries[0].msg.Failed {
		t.Fatalf("expected success message, got failure: %q", deliveries[0].msg.Text)
	}
	if !strings.Contains(deliveries[0].msg.Text, "60s-wait-ok") {
		t.Fatalf("expected result in message, got %q", deliveries[0].msg.Text)
	}
}

func TestRunInstance_TransientRetriesToCeiling(t *testing.T) {
	ctx := context.Background()

	var calls int
	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		calls++
		return nil, errors.New("flaky downstream")
	})
	f := newFixture(t, act, Config{Retry: fastRetry(3)})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}

	inst := f.runNext(t, ctx)
	if inst.Status != api.StatusFailed {
		t.Fatalf("expected status %q, got %q", api.StatusFailed, inst.Status)
	}
	if calls != 3 {
		t.Fatalf("expected 3 activity calls, got %d", calls)
	}
	if inst.Attempt != 3 {
		t.Fatalf("expected persisted attempt 3, got %d", inst.Attempt)
	}
	if !strings.Contains(inst.FailureReason, "retries exhausted") {
		t.Fatalf("expected exhaustion reason, got %q", inst.FailureReason)
	}

	deliveries := f.notifier.all()
	if len(deliveries) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(deliveries))
	}
	if !deliveries[0].msg.Failed {
		t.Fatalf("expected failure message, got %q", deliveries[0].msg.Text)
	}
}

func TestRunInstance_SucceedsAfterTransientFailures(t *testing.T) {
	ctx := context.Background()

	var calls int
	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		calls++
		if calls < 3 {
			return nil, api.Transient(errors.New("not yet"))
		}
		return "done", nil
	})
	f := newFixture(t, act, Config{Retry: fastRetry(5)})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}

	inst := f.runNext(t, ctx)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected status %q, got %q", api.StatusCompleted, inst.Status)
	}
	if inst.Attempt != 3 {
		t.Fatalf("expected success on attempt 3, got %d", inst.Attempt)
	}
	if len(f.notifier.all()) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(f.notifier.all()))
	}
}

func TestRunInstance_FatalFailsImmediately(t *testing.T) {
	ctx := context.Background()

	var calls int
	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		calls++
		return nil, api.Fatal(errors.New("bad input"))
	})
	f := newFixture(t, act, Config{Retry: fastRetry(5)})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}

	inst := f.runNext(t, ctx)
	if inst.Status != api.StatusFailed {
		t.Fatalf("expected status %q, got %q", api.StatusFailed, inst.Status)
	}
	if calls != 1 {
		t.Fatalf("expected 1 activity call for fatal error, got %d", calls)
	}
	if !strings.Contains(inst.FailureReason, "bad input") {
		t.Fatalf("expected cause in failure reason, got %q", inst.FailureReason)
	}
}

func TestRunInstance_TimeoutIsTransient(t *testing.T) {
	ctx := context.Background()

	var calls int
	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return "recovered", nil
	})
	f := newFixture(t, act, Config{
		Retry:           fastRetry(3),
		ActivityTimeout: 20 * time.Millisecond,
	})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}

	inst := f.runNext(t, ctx)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected timeout to be retried, got status %q (%s)", inst.Status, inst.FailureReason)
	}
	if calls != 2 {
		t.Fatalf("expected 2 activity calls, got %d", calls)
	}
}

func TestStartInstance_DuplicateWhileActive(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		return nil, nil
	}), Config{Retry: fastRetry(1)})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("first StartInstance failed: %v", err)
	}

	// Still Pending: the second start for the same user must be rejected.
	err := f.coord.StartInstance(ctx, "user-1", nil)
	if !errors.Is(err, api.ErrDuplicateInstance) {
		t.Fatalf("expected ErrDuplicateInstance, got %v", err)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("expected no extra task for duplicate start, got %d", f.queue.Len())
	}
}

func TestStartInstance_ConcurrentDuplicatesOneWinner(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		return nil, nil
	}), Config{Retry: fastRetry(1)})

	const starters = 8
	var wg sync.WaitGroup
	errs := make([]error, starters)

	wg.Add(starters)
	for i := 0; i < starters; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = f.coord.StartInstance(ctx, "user-1", i)
		}(i)
	}
	wg.Wait()

	var wins, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, api.ErrDuplicateInstance):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winning start, got %d (duplicates %d)", wins, duplicates)
	}
}

func TestStartInstance_RestartsTerminalInstance(t *testing.T) {
	ctx := context.Background()

	var calls int
	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		calls++
		return input, nil
	})
	f := newFixture(t, act, Config{Retry: fastRetry(1)})

	if err := f.coord.StartInstance(ctx, "user-1", "first"); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}
	if inst := f.runNext(t, ctx); inst.Status != api.StatusCompleted {
		t.Fatalf("expected first run to complete, got %q", inst.Status)
	}

	// The finished record is reset and the job runs again with new input.
	if err := f.coord.StartInstance(ctx, "user-1", "second"); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	inst := f.runNext(t, ctx)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected second run to complete, got %q", inst.Status)
	}
	if inst.Output != "second" {
		t.Fatalf("expected output %q, got %v", "second", inst.Output)
	}
	if calls != 2 {
		t.Fatalf("expected 2 activity calls, got %d", calls)
	}
	if inst.Attempt != 1 {
		t.Fatalf("expected attempt counter reset, got %d", inst.Attempt)
	}
	if len(f.notifier.all()) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(f.notifier.all()))
	}
}

func TestCancelInstance_AbortsInFlightActivity(t *testing.T) {
	ctx := context.Background()

	started := make(chan struct{})
	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newFixture(t, act, Config{Retry: fastRetry(3)})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}

	done := make(chan *api.Instance, 1)
	go func() {
		inst, err := f.coord.RunInstance(ctx, "user-1")
		if err != nil {
			t.Errorf("RunInstance failed: %v", err)
		}
		done <- inst
	}()

	<-started
	cancelled, err := f.coord.CancelInstance(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("CancelInstance failed: %v", err)
	}
	if cancelled.Status != api.StatusFailed {
		t.Fatalf("expected status %q, got %q", api.StatusFailed, cancelled.Status)
	}
	if cancelled.FailureReason != "cancelled" {
		t.Fatalf("expected default reason %q, got %q", "cancelled", cancelled.FailureReason)
	}

	select {
	case inst := <-done:
		if inst.Status != api.StatusFailed {
			t.Fatalf("expected runner to observe %q, got %q", api.StatusFailed, inst.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunInstance did not return after cancellation")
	}

	// Only the canceller notifies; the aborted runner must not.
	deliveries := f.notifier.all()
	if len(deliveries) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(deliveries))
	}
	if !deliveries[0].msg.Failed {
		t.Fatalf("expected failure message, got %q", deliveries[0].msg.Text)
	}
}

func TestCancelInstance_TerminalNotCancellable(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		return nil, nil
	}), Config{Retry: fastRetry(1)})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}
	f.runNext(t, ctx)

	_, err := f.coord.CancelInstance(ctx, "user-1", "too late")
	if !errors.Is(err, api.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
}

func TestCancelInstance_Missing(t *testing.T) {
	f := newFixture(t, api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		return nil, nil
	}), Config{})

	_, err := f.coord.CancelInstance(context.Background(), "ghost", "")
	if !errors.Is(err, persistence.ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestRunInstance_TerminalIsNoOp(t *testing.T) {
	ctx := context.Background()

	var calls int
	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		calls++
		return nil, nil
	})
	f := newFixture(t, act, Config{Retry: fastRetry(1)})

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}
	f.runNext(t, ctx)

	// A re-delivered task for the finished instance changes nothing.
	inst, err := f.coord.RunInstance(ctx, "user-1")
	if err != nil {
		t.Fatalf("RunInstance on terminal instance failed: %v", err)
	}
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected status %q, got %q", api.StatusCompleted, inst.Status)
	}
	if calls != 1 {
		t.Fatalf("expected no extra activity call, got %d", calls)
	}
	if len(f.notifier.all()) != 1 {
		t.Fatalf("expected no extra notification, got %d", len(f.notifier.all()))
	}
}

func TestRecover_ReEnqueuesUnfinishedInstances(t *testing.T) {
	ctx := context.Background()

	act := api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		return "resumed", nil
	})
	f := newFixture(t, act, Config{Retry: fastRetry(3)})

	// Seed the store the way a crashed process would leave it: one instance
	// still Pending, one mid-run, one already finished.
	seed := []*api.Instance{
		{ID: "pending-1", Status: api.StatusPending, CreatedAt: time.Now()},
		{ID: "running-1", Status: api.StatusRunning, Attempt: 2, CreatedAt: time.Now()},
		{ID: "done-1", Status: api.StatusCompleted, CreatedAt: time.Now(), CompletedAt: time.Now()},
	}
	for _, inst := range seed {
		status := inst.Status
		inst.Status = api.StatusPending
		if err := f.store.CreateInstance(ctx, inst); err != nil {
			t.Fatalf("seed CreateInstance failed: %v", err)
		}
		if status != api.StatusPending {
			moved := inst.Clone()
			moved.Status = status
			if err := f.store.Transition(ctx, api.StatusPending, moved); err != nil {
				t.Fatalf("seed transition failed: %v", err)
			}
		}
	}

	count, err := f.coord.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 recovered instances, got %d", count)
	}
	if f.queue.Len() != 2 {
		t.Fatalf("expected 2 queued tasks, got %d", f.queue.Len())
	}

	for i := 0; i < 2; i++ {
		f.runNext(t, ctx)
	}

	resumed, err := f.coord.GetInstance(ctx, "running-1")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if resumed.Status != api.StatusCompleted {
		t.Fatalf("expected resumed instance to complete, got %q", resumed.Status)
	}
	// The attempt counter continues from the persisted checkpoint.
	if resumed.Attempt != 3 {
		t.Fatalf("expected attempt to continue at 3, got %d", resumed.Attempt)
	}
}

func TestDeliver_NotifierFailureLeavesOutcome(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		return "ok", nil
	}), Config{Retry: fastRetry(1)})
	f.notifier.err = errors.New("push channel down")

	if err := f.coord.StartInstance(ctx, "user-1", nil); err != nil {
		t.Fatalf("StartInstance failed: %v", err)
	}

	inst := f.runNext(t, ctx)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected delivery failure to leave outcome, got %q", inst.Status)
	}
	if len(f.notifier.all()) != 1 {
		t.Fatalf("expected a single delivery attempt, got %d", len(f.notifier.all()))
	}
}

func TestStartInstance_EmptyID(t *testing.T) {
	f := newFixture(t, api.ActivityFunc(func(ctx context.Context, input any) (any, error) {
		return nil, nil
	}), Config{})

	if err := f.coord.StartInstance(context.Background(), "", nil); err == nil {
		t.Fatalf("expected error for empty instance id")
	}
}
