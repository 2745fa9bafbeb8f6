// Package task provides the cancellation and async-dispatch primitives used
// by the blocking engine cores (PTY runs, filesystem scans).
package task

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout reports that a token's deadline elapsed.
var ErrTimeout = errors.New("task: timeout elapsed")

// ErrCancelled reports that a token was cancelled externally.
var ErrCancelled = errors.New("task: cancelled")

// CancelToken is a cooperative cancellation token. It is polled via
// Heartbeat at loop boundaries and never blocks. Deadline expiry and
// external cancellation stay distinguishable through the returned error.
type CancelToken struct {
	ctx         context.Context
	deadline    time.Time
	hasDeadline bool
}

// NewCancelToken builds a token from an optional timeout and an optional
// parent context. A zero timeout means no deadline; a nil context means no
// external cancellation source.
func NewCancelToken(timeout time.Duration, ctx context.Context) *CancelToken {
	t := &CancelToken{ctx: ctx}
	if t.ctx == nil {
		t.ctx = context.Background()
	}
	if timeout > 0 {
		t.deadline = time.Now().Add(timeout)
		t.hasDeadline = true
	}
	return t
}

// Heartbeat polls the token. It returns nil while the operation may
// continue, ErrTimeout once the deadline has elapsed, and ErrCancelled once
// the parent context is done. The token's own deadline wins over a parent
// deadline when both have expired.
func (t *CancelToken) Heartbeat() error {
	if t == nil {
		return nil
	}
	if t.hasDeadline && time.Now().After(t.deadline) {
		return ErrTimeout
	}
	select {
	case <-t.ctx.Done():
		if errors.Is(t.ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrCancelled
	default:
		return nil
	}
}
