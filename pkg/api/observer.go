package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the coordinator for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay instance execution.
type Observer interface {
	// OnInstanceStart is called once when an instance is durably recorded
	// as Pending, before any activity attempt.
	OnInstanceStart(ctx context.Context, inst *Instance)

	// OnInstanceCompleted is called when an instance reaches StatusCompleted.
	OnInstanceCompleted(ctx context.Context, inst *Instance)

	// OnInstanceFailed is called when an instance reaches StatusFailed,
	// whether through a fatal failure, retry exhaustion, or cancellation.
	OnInstanceFailed(ctx context.Context, inst *Instance, err error)

	// OnAttemptStart is called before each activity invocation.
	// attempt is 1-based and includes attempts from before a restart.
	OnAttemptStart(ctx context.Context, inst *Instance, attempt int)

	// OnAttemptCompleted is called after each activity invocation returns,
	// for both successes and failures (err != nil).
	OnAttemptCompleted(ctx context.Context, inst *Instance, attempt int, err error, duration time.Duration)

	// OnNotification is called after the notification dispatch for a
	// terminal instance, with err reporting the delivery outcome.
	OnNotification(ctx context.Context, inst *Instance, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnInstanceStart(ctx context.Context, inst *Instance)                {}
func (NoopObserver) OnInstanceCompleted(ctx context.Context, inst *Instance)            {}
func (NoopObserver) OnInstanceFailed(ctx context.Context, inst *Instance, err error)    {}
func (NoopObserver) OnAttemptStart(ctx context.Context, inst *Instance, attempt int)    {}
func (NoopObserver) OnAttemptCompleted(ctx context.Context, inst *Instance, attempt int, err error, d time.Duration) {
}
func (NoopObserver) OnNotification(ctx context.Context, inst *Instance, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnInstanceStart(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnInstanceStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnInstanceCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceFailed(ctx context.Context, inst *Instance, err error) {
	for _, o := range c.observers {
		o.OnInstanceFailed(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnAttemptStart(ctx context.Context, inst *Instance, attempt int) {
	for _, o := range c.observers {
		o.OnAttemptStart(ctx, inst, attempt)
	}
}

func (c *CompositeObserver) OnAttemptCompleted(ctx context.Context, inst *Instance, attempt int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnAttemptCompleted(ctx, inst, attempt, err, d)
	}
}

func (c *CompositeObserver) OnNotification(ctx context.Context, inst *Instance, err error) {
	for _, o := range c.observers {
		o.OnNotification(ctx, inst, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs instance / attempt
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnInstanceStart(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "instance_start",
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "instance_completed",
		slog.String("instance_id", inst.ID),
		slog.Int("attempts", inst.Attempt),
	)
}

func (o *LoggingObserver) OnInstanceFailed(ctx context.Context, inst *Instance, err error) {
	o.Logger.ErrorContext(ctx, "instance_failed",
		slog.String("instance_id", inst.ID),
		slog.String("reason", inst.FailureReason),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnAttemptStart(ctx context.Context, inst *Instance, attempt int) {
	o.Logger.DebugContext(ctx, "attempt_start",
		slog.String("instance_id", inst.ID),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnAttemptCompleted(ctx context.Context, inst *Instance, attempt int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "attempt_completed",
		slog.String("instance_id", inst.ID),
		slog.Int("attempt", attempt),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnNotification(ctx context.Context, inst *Instance, err error) {
	if err != nil {
		o.Logger.ErrorContext(ctx, "notification_failed",
			slog.String("instance_id", inst.ID),
			slog.Any("error", err),
		)
		return
	}
	o.Logger.InfoContext(ctx, "notification_delivered",
		slog.String("instance_id", inst.ID),
	)
}

// BasicMetrics collects simple counters and aggregate attempt durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	instancesStarted   atomic.Int64
	instancesCompleted atomic.Int64
	instancesFailed    atomic.Int64
	attempts           atomic.Int64
	totalAttemptTime   atomic.Int64 // nanoseconds
	notifyFailures     atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	InstancesStarted   int64
	InstancesCompleted int64
	InstancesFailed    int64
	ActiveInstances    int64

	Attempts           int64
	AvgAttemptDuration time.Duration

	NotificationFailures int64
}

func (m *BasicMetrics) OnInstanceStart(ctx context.Context, inst *Instance) {
	m.instancesStarted.Add(1)
}

func (m *BasicMetrics) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	m.instancesCompleted.Add(1)
}

func (m *BasicMetrics) OnInstanceFailed(ctx context.Context, inst *Instance, err error) {
	m.instancesFailed.Add(1)
}

func (m *BasicMetrics) OnAttemptCompleted(ctx context.Context, inst *Instance, attempt int, err error, d time.Duration) {
	m.attempts.Add(1)
	m.totalAttemptTime.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnNotification(ctx context.Context, inst *Instance, err error) {
	if err != nil {
		m.notifyFailures.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.instancesStarted.Load()
	completed := m.instancesCompleted.Load()
	failed := m.instancesFailed.Load()
	attempts := m.attempts.Load()
	totalNs := m.totalAttemptTime.Load()

	var avg time.Duration
	if attempts > 0 {
		avg = time.Duration(totalNs / attempts)
	}

	return BasicMetricsSnapshot{
		InstancesStarted:     started,
		InstancesCompleted:   completed,
		InstancesFailed:      failed,
		ActiveInstances:      started - completed - failed,
		Attempts:             attempts,
		AvgAttemptDuration:   avg,
		NotificationFailures: m.notifyFailures.Load(),
	}
}
