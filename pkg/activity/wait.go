// Package activity contains built-in activities.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/tsudo/taskrelay/pkg/api"
)

// Wait returns an Activity that waits for the given duration and reports
// "<seconds>s-wait-ok". It is the sample long-running job: side-effect-free,
// so re-invocation after a retry or crash resume is always safe.
//
// It is context-aware: if the context is cancelled during the wait, it
// returns ctx.Err and the attempt is treated like any other failure.
func Wait(d time.Duration) api.ActivityFunc {
	return func(ctx context.Context, _ any) (any, error) {
		if d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		return fmt.Sprintf("%ds-wait-ok", int(d.Seconds())), nil
	}
}
