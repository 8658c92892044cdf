package api

import (
	"context"
	"fmt"
)

// Message is the payload delivered to a requester when an instance reaches
// a terminal state.
type Message struct {
	// Text is the human-readable message pushed to the recipient.
	Text string

	// Failed distinguishes failure notifications from success ones.
	Failed bool
}

// SuccessMessage builds the notification sent when an instance completes.
func SuccessMessage(output any) Message {
	return Message{
		Text: fmt.Sprintf("Finished. The result is %v.", output),
	}
}

// FailureMessage builds the notification sent when an instance fails, so the
// requester is informed rather than left silent.
func FailureMessage(reason string) Message {
	return Message{
		Text:   fmt.Sprintf("The job could not be completed: %s.", reason),
		Failed: true,
	}
}

// Notifier delivers a terminal-state message to the external channel
// addressee identified by the recipient correlation key.
//
// Delivery is a separate failure domain from orchestration: a Deliver error
// never rolls back or re-triggers the instance's terminal state. The
// coordinator invokes Deliver at most once per instance, and only after the
// terminal state has been durably recorded.
type Notifier interface {
	Deliver(ctx context.Context, recipient string, msg Message) error
}

// NotifierFunc adapts an ordinary function to the Notifier interface.
type NotifierFunc func(ctx context.Context, recipient string, msg Message) error

func (f NotifierFunc) Deliver(ctx context.Context, recipient string, msg Message) error {
	return f(ctx, recipient, msg)
}
