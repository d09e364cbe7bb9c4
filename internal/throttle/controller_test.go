package throttle

import (
	"context"
	"testing"
	"time"
)

func TestFirstCallImmediate(t *testing.T) {
	c := New(time.Second)

	start := time.Now()
	if err := c.WaitTurn(context.Background()); err != nil {
		t.Fatalf("WaitTurn failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first call waited %v, expected immediate", elapsed)
	}
}

func TestSecondCallWaits(t *testing.T) {
	interval := 50 * time.Millisecond
	c := New(interval)

	if err := c.WaitTurn(context.Background()); err != nil {
		t.Fatalf("WaitTurn failed: %v", err)
	}

	start := time.Now()
	if err := c.WaitTurn(context.Background()); err != nil {
		t.Fatalf("WaitTurn failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < interval {
		t.Errorf("second call waited only %v, want at least %v", elapsed, interval)
	}
}

func TestCallsCounted(t *testing.T) {
	c := New(time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := c.WaitTurn(context.Background()); err != nil {
			t.Fatalf("WaitTurn failed: %v", err)
		}
	}
	if got := c.Calls(); got != 3 {
		t.Errorf("Calls() = %d, want 3", got)
	}
}

func TestWaitCancelled(t *testing.T) {
	c := New(10 * time.Second)
	if err := c.WaitTurn(context.Background()); err != nil {
		t.Fatalf("WaitTurn failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.WaitTurn(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	// A cancelled wait must not count as a granted turn.
	if got := c.Calls(); got != 1 {
		t.Errorf("Calls() = %d after cancelled wait, want 1", got)
	}
}
