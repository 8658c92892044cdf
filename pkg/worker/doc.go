// Package worker provides the background worker that drives taskrelay
// instances forward.
//
// Workers consume run tasks from a task queue and hand them to the
// coordinator, which performs the activity invocation, retry, and
// notification work. The queue is what decouples the trigger gateway's
// synchronous acknowledgement from instance execution: starting an instance
// enqueues a task and returns, and a worker picks it up on its own time.
//
// Workers are long-lived components that typically run in dedicated
// goroutines. Multiple workers can safely operate on the same queue; the
// coordinator's per-instance claim makes a re-delivered or duplicated task
// for an in-flight instance a no-op.
package worker
