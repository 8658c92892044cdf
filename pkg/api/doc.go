// Package api contains the core building blocks of the taskrelay
// orchestration service: instances and their lifecycle statuses, the
// Coordinator contract, the Activity and Notifier collaborator interfaces,
// retry policies, and observers.
//
// Most users interact with the higher-level taskrelay package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations or contributors extending the
// coordinator itself.
//
// # Instances
//
// An Instance is one logical run of the trigger → activity → notification
// flow, identified by the requester's identity. Its status moves strictly
// forward through Pending → Running → {Completed | Failed}; terminal states
// are never left. Progress is checkpointed to an instance store before each
// activity attempt, so a crashed process can resume an instance exactly
// where it stopped.
//
// # Activities
//
// An Activity is the single long-running unit of work an instance performs.
// Activities must tolerate re-invocation: the coordinator retries them on
// transient failure and re-runs them when recovering a crashed instance.
// Failures are classified with Fatal and Transient; anything not fatal is
// retried under the configured RetryPolicy.
//
// # Notification
//
// When an instance reaches a terminal state the coordinator hands a Message
// to the Notifier exactly once. Delivery failures are logged and surfaced
// through observers but never affect the instance's own outcome.
//
// # Observability
//
// The Observer interface receives instance, attempt, and notification
// events. Ready-made implementations cover logging (LoggingObserver),
// in-memory counters (BasicMetrics), and fan-out (CompositeObserver).
package api
