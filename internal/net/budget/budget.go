// Package budget tracks the remaining calls in the current rate-limit
// window for a quota-limited upstream. One tracker is shared by all
// symbols competing for on-chain reads.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExhausted is returned when the window budget is spent.
var ErrBudgetExhausted = errors.New("call budget exhausted")

// ExhaustedError carries detail about an exhausted window.
type ExhaustedError struct {
	Used    int64
	Limit   int64
	ResetAt time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("call budget exhausted: %d/%d used, window resets at %s",
		e.Used, e.Limit, e.ResetAt.UTC().Format("15:04:05 UTC"))
}

func (e *ExhaustedError) Unwrap() error { return ErrBudgetExhausted }

// Tracker is a fixed-window call counter with rollover reset.
type Tracker struct {
	mu          sync.Mutex
	limit       int64
	used        int64
	window      time.Duration
	windowStart time.Time
}

// NewTracker creates a tracker allowing limit calls per window. A
// non-positive limit disables tracking (every spend succeeds).
func NewTracker(limit int64, window time.Duration) *Tracker {
	if window <= 0 {
		window = time.Minute
	}
	return &Tracker{
		limit:       limit,
		window:      window,
		windowStart: time.Now().UTC(),
	}
}

// Spend consumes one call from the current window, rolling the window
// over first if it has elapsed.
func (t *Tracker) Spend() error {
	if t.limit <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	if t.used >= t.limit {
		return &ExhaustedError{
			Used:    t.used,
			Limit:   t.limit,
			ResetAt: t.windowStart.Add(t.window),
		}
	}
	t.used++
	return nil
}

// Remaining returns the calls left in the current window.
func (t *Tracker) Remaining() int64 {
	if t.limit <= 0 {
		return -1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	return t.limit - t.used
}

// Utilization returns the spent fraction of the current window (0..1).
func (t *Tracker) Utilization() float64 {
	if t.limit <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	return float64(t.used) / float64(t.limit)
}

func (t *Tracker) rolloverLocked() {
	now := time.Now().UTC()
	if now.Sub(t.windowStart) >= t.window {
		elapsed := now.Sub(t.windowStart).Truncate(t.window)
		t.windowStart = t.windowStart.Add(elapsed)
		t.used = 0
	}
}
