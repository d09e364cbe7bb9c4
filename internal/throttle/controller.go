// Package throttle enforces a process-wide floor on the spacing of calls
// into a rate-limited external service.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Controller spaces calls at least a configured interval apart. The shared
// last-call timestamp is guarded by a mutex held across the wait, so
// concurrent callers queue and the spacing guarantee holds even if the
// pipeline is ever parallelized. The controller is passed into the
// orchestrator explicitly rather than held as package state.
type Controller struct {
	mu       sync.Mutex
	interval time.Duration
	lastCall time.Time
	calls    int64
}

// New returns a Controller with the given minimum call interval.
func New(interval time.Duration) *Controller {
	return &Controller{interval: interval}
}

// WaitTurn blocks until at least the configured interval has elapsed since
// the previous call, then records the new call time. The first call passes
// immediately. Returns ctx.Err() if the context is cancelled while
// waiting.
func (c *Controller) WaitTurn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastCall.IsZero() {
		if wait := c.interval - time.Since(c.lastCall); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	c.lastCall = time.Now()
	c.calls++
	return nil
}

// Calls returns how many turns have been granted so far.
func (c *Controller) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
