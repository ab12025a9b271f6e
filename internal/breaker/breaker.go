// Package breaker wraps gobreaker around the per-client connection so a
// Downstairs that keeps failing handshakes is given a cooldown instead of
// being redialed in a tight loop, independent of the coordinator's own
// IO_OUTSTANDING_MAX fault threshold (§5).
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// Settings configures one client's breaker. New replaces a zero
// MaxFailures with 5 and a zero OpenTimeout with 30s; a zero
// HalfOpenMaxCalls is left to gobreaker's default.
type Settings struct {
	Name             string
	MaxFailures      uint32
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// ClientBreaker guards dial/handshake attempts to a single Downstairs.
type ClientBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a ClientBreaker from Settings, opening after MaxFailures
// consecutive failures and staying open for OpenTimeout.
func New(s Settings) *ClientBreaker {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenMaxCalls,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
	})
	return &ClientBreaker{cb: cb}
}

// Do runs fn through the breaker, short-circuiting with gobreaker's own
// ErrOpenState while the breaker is open.
func (b *ClientBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// State reports the breaker's current state.
func (b *ClientBreaker) State() gobreaker.State {
	return b.cb.State()
}
