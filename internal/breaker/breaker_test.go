package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Settings{Name: "ds0", MaxFailures: 2, OpenTimeout: time.Minute})
	boom := errors.New("dial failed")

	for i := 0; i < 2; i++ {
		if err := b.Do(context.Background(), func(context.Context) error { return boom }); err != boom {
			t.Fatalf("attempt %d: err = %v, want boom", i, err)
		}
	}

	if b.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want StateOpen after %d consecutive failures", b.State(), 2)
	}

	if err := b.Do(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want ErrOpenState while breaker is open", err)
	}
}

func TestClientBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New(Settings{Name: "ds1", MaxFailures: 2})

	for i := 0; i < 5; i++ {
		if err := b.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("state = %v, want StateClosed", b.State())
	}
}
