package taskrelay

import (
	"context"
	"errors"
	"sync"

	"github.com/tsudo/taskrelay/internal/coordinator"
	"github.com/tsudo/taskrelay/internal/persistence"
	"github.com/tsudo/taskrelay/internal/taskqueue"
	"github.com/tsudo/taskrelay/pkg/worker"
)

// LocalRunner bundles an in-memory Coordinator, an in-memory task queue, and
// a Worker to provide a simple single-process runner for development and
// tests.
//
// Typical usage:
//
//	runner := taskrelay.NewLocalRunner(activity, notifier, taskrelay.Config{})
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.Coordinator.StartInstance(ctx, "user-1", nil)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Coordinator owns the instance lifecycle for this runner.
	Coordinator Coordinator

	// Queue is the in-memory task queue consumed by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Coordinator.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory store and
// queue. It is not crash-durable.
func NewLocalRunner(activity Activity, notifier Notifier, cfg Config) *LocalRunner {
	store := persistence.NewInMemoryStore()
	queue := taskqueue.NewInMemoryQueue(1024)
	coord := coordinator.New(store, queue, activity, notifier, cfg.internal())
	w := worker.New(coord, queue, cfg.Logger)

	return &LocalRunner{
		Coordinator: coord,
		Queue:       queue,
		Worker:      w,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called again without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("taskrelay: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			_ = r.Worker.Run(ctx)
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Start enqueues an instance for asynchronous execution. It is shorthand for
// Coordinator.StartInstance.
func (r *LocalRunner) Start(ctx context.Context, id string, input any) error {
	return r.Coordinator.StartInstance(ctx, id, input)
}
