// Package retry implements the reconnect backoff policy used whenever a
// Downstairs connection drops: exponential backoff with a cap, wrapped
// around the dial-and-handshake attempt so the coordinator's event loop
// never blocks on it directly.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy configures exponential backoff for Downstairs reconnection.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy reconnects indefinitely (MaxAttempts == 0 means unbounded),
// starting at 100ms and capping at 30s, matching how a Downstairs outage
// should be ridden out rather than given up on.
var DefaultPolicy = Policy{
	MaxAttempts:  0,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     30 * time.Second,
}

// WithBackoff calls fn, retrying on error with exponential backoff until it
// succeeds, attempts are exhausted (if bounded), or ctx is cancelled. desc
// labels the operation in the final wrapped error.
func WithBackoff(ctx context.Context, p Policy, desc string, fn func(ctx context.Context) error) error {
	delay := p.InitialDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; p.MaxAttempts == 0 || attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.MaxAttempts != 0 && attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}

	if p.MaxAttempts > 0 {
		return fmt.Errorf("%s: failed after %d attempts: %w", desc, p.MaxAttempts, lastErr)
	}
	return fmt.Errorf("%s: %w", desc, lastErr)
}
