// Package taskrelay provides a small, embeddable coordinator for durable
// long-running tasks that are triggered synchronously and reported
// asynchronously.
//
// The shape of the problem: a caller (a voice skill, a chat bot, a web
// handler) must answer within a second or two, but the work it triggers
// takes far longer. Taskrelay splits the two. The trigger durably records
// an instance and returns an acknowledgement immediately; workers drive
// the instance through the activity with retries, checkpointing progress;
// when the instance reaches a terminal state, the result is pushed to the
// caller over a separate notification channel.
//
// # Core Concepts
//
//  1. Coordinator
//  2. Activity
//  3. Notifier
//  4. Worker
//  5. LocalRunner
//
// # Coordinator
//
// The Coordinator owns the instance lifecycle. It persists instances,
// enforces one active instance per ID, drives the activity with a retry
// policy, and dispatches exactly one notification per finished run. State
// moves Pending → Running → Completed or Failed, and each step is written
// to the store before the next begins, so a crashed process can be resumed
// by calling Recover on startup.
//
// Coordinators can be backed by in-memory storage (tests, development) or
// SQLite (embedded durability). Each backend includes a matching task
// queue implementation so workers can reliably fetch work.
//
// # Activity
//
// An Activity is the unit of long-running work:
//
//	type Activity interface {
//		Run(ctx context.Context, input any) (any, error)
//	}
//
// Activities must tolerate re-invocation: a retry or a crash resume calls
// Run again with the same input. Errors are transient by default and
// retried with exponential backoff; wrap an error with Fatal to fail the
// instance immediately.
//
// # Notifier
//
// A Notifier delivers the terminal-state message out of band. The instance
// ID doubles as the recipient address, which is what lets a voice trigger
// reach back to the same user later. Delivery happens only after the
// terminal state is durably recorded, and a delivery failure never changes
// the instance's outcome.
//
// # Worker
//
// A Worker pulls tasks from a queue and calls the Coordinator to run them.
// Workers are plain goroutines; run as many as the workload needs.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory coordinator, queue, and worker into a
// single process-local helper for development and unit testing. It is
// intentionally not crash-durable. For a durable single-process setup, use
// NewSQLiteBundle instead.
package taskrelay
