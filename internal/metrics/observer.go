// Package metrics exposes coordinator lifecycle events as Prometheus
// metrics. The Observer implements api.Observer and registers its
// collectors with a caller-supplied registry, which the server exposes
// on /metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsudo/taskrelay/pkg/api"
)

// Observer records instance and attempt metrics.
type Observer struct {
	api.NoopObserver

	instancesStarted   prometheus.Counter
	instancesCompleted prometheus.Counter
	instancesFailed    prometheus.Counter
	attempts           prometheus.Counter
	attemptDuration    prometheus.Histogram
	notifications      *prometheus.CounterVec
}

var _ api.Observer = (*Observer)(nil)

// NewObserver creates and registers the collectors with reg.
// It panics if a collector with the same name is already registered.
func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		instancesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrelay_instances_started_total",
			Help: "Number of instances durably recorded and enqueued.",
		}),
		instancesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrelay_instances_completed_total",
			Help: "Number of instances that reached COMPLETED.",
		}),
		instancesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrelay_instances_failed_total",
			Help: "Number of instances that reached FAILED, including cancellations.",
		}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrelay_activity_attempts_total",
			Help: "Number of activity invocations across all instances.",
		}),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskrelay_activity_attempt_duration_seconds",
			Help:    "Duration of individual activity invocations.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrelay_notifications_total",
			Help: "Notification dispatch outcomes.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		o.instancesStarted,
		o.instancesCompleted,
		o.instancesFailed,
		o.attempts,
		o.attemptDuration,
		o.notifications,
	)
	return o
}

func (o *Observer) OnInstanceStart(ctx context.Context, inst *api.Instance) {
	o.instancesStarted.Inc()
}

func (o *Observer) OnInstanceCompleted(ctx context.Context, inst *api.Instance) {
	o.instancesCompleted.Inc()
}

func (o *Observer) OnInstanceFailed(ctx context.Context, inst *api.Instance, err error) {
	o.instancesFailed.Inc()
}

func (o *Observer) OnAttemptCompleted(ctx context.Context, inst *api.Instance, attempt int, err error, d time.Duration) {
	o.attempts.Inc()
	o.attemptDuration.Observe(d.Seconds())
}

func (o *Observer) OnNotification(ctx context.Context, inst *api.Instance, err error) {
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	o.notifications.WithLabelValues(outcome).Inc()
}
