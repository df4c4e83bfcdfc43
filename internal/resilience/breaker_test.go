package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("provider unavailable")

func fail(context.Context) error { return errTest }
func ok(context.Context) error   { return nil }

func trip(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for range n {
		_ = b.Do(context.Background(), fail)
	}
}

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)
	trip(t, b, 3)

	if err := b.Do(context.Background(), ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("State = %s, want open", b.State())
	}
}

func TestHalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }
	trip(t, b, 2)

	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("State = %s, want half_open", b.State())
	}
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("State = %s, want closed", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }
	trip(t, b, 2)

	now = now.Add(2 * time.Second)
	_ = b.Do(context.Background(), fail)

	if b.State() != StateOpen {
		t.Fatalf("State = %s, want open", b.State())
	}
	if err := b.Do(context.Background(), ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }
	trip(t, b, 1)
	now = now.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(context.Background(), ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second call during probe: got %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("after successful probe: %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)
	trip(t, b, 2)
	_ = b.Do(context.Background(), ok)
	trip(t, b, 2)

	if b.State() != StateClosed {
		t.Fatalf("State = %s, want closed", b.State())
	}
}

func TestCallerCancellationNotCounted(t *testing.T) {
	b := NewBreaker(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	err := b.Do(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("State = %s, want closed", b.State())
	}

	if err := b.Do(ctx, ok); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected pre-cancelled ctx to short-circuit, got %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	var hasDeadline bool
	_ = WithTimeout(context.Background(), 0, func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	if hasDeadline {
		t.Fatal("zero timeout should not set a deadline")
	}
}
