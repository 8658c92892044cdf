package taskrelay

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/tsudo/taskrelay/internal/coordinator"
	"github.com/tsudo/taskrelay/internal/persistence"
	"github.com/tsudo/taskrelay/internal/taskqueue"
	"github.com/tsudo/taskrelay/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Coordinator          = api.Coordinator
	Instance             = api.Instance
	InstanceListOptions  = api.InstanceListOptions
	Status               = api.Status
	Activity             = api.Activity
	ActivityFunc         = api.ActivityFunc
	Notifier             = api.Notifier
	NotifierFunc         = api.NotifierFunc
	Message              = api.Message
	RetryPolicy          = api.RetryPolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DefaultRetryPolicy   = api.DefaultRetryPolicy
	Fatal                = api.Fatal
	Transient            = api.Transient
	IsFatal              = api.IsFatal
	IsTransient          = api.IsTransient
)

// Re-export sentinel errors.

var (
	ErrDuplicateInstance = api.ErrDuplicateInstance
	ErrNotCancellable    = api.ErrNotCancellable
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
)

// Config controls coordinator construction.
type Config struct {
	// Retry governs activity re-invocation on transient failure.
	// A zero value means DefaultRetryPolicy.
	Retry RetryPolicy

	// ActivityTimeout bounds each activity invocation. Zero means the
	// coordinator's five-minute default.
	ActivityTimeout time.Duration

	// Observer receives lifecycle events. Nil means NoopObserver.
	Observer Observer

	// Logger is used for internal logging. Nil means slog.Default.
	Logger *slog.Logger
}

func (c Config) internal() coordinator.Config {
	return coordinator.Config{
		Retry:           c.Retry,
		ActivityTimeout: c.ActivityTimeout,
		Observer:        c.Observer,
		Logger:          c.Logger,
	}
}

// Coordinator constructors
// These wrap the internal packages so external callers never need to
// import them.

// NewInMemoryCoordinator returns a Coordinator backed entirely by in-memory
// storage and an in-memory task queue. State does not survive a restart.
func NewInMemoryCoordinator(activity Activity, notifier Notifier, cfg Config) Coordinator {
	store := persistence.NewInMemoryStore()
	queue := taskqueue.NewInMemoryQueue(1024)
	return coordinator.New(store, queue, activity, notifier, cfg.internal())
}

// NewSQLiteCoordinator returns a Coordinator that persists instances and
// queued tasks in the given SQLite database.
func NewSQLiteCoordinator(db *sql.DB, activity Activity, notifier Notifier, cfg Config) (Coordinator, error) {
	store, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return coordinator.New(store, queue, activity, notifier, cfg.internal()), nil
}

// Convenience helpers that just forward to the underlying Coordinator.

// Start durably records an instance and enqueues it for execution.
func Start(ctx context.Context, c Coordinator, id string, input any) error {
	return c.StartInstance(ctx, id, input)
}

// GetInstance fetches an instance by ID.
func GetInstance(ctx context.Context, c Coordinator, id string) (*Instance, error) {
	return c.GetInstance(ctx, id)
}

// ListInstances lists instances according to the given options.
func ListInstances(ctx context.Context, c Coordinator, opts InstanceListOptions) ([]*Instance, error) {
	return c.ListInstances(ctx, opts)
}
