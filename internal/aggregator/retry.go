package aggregator

import "sync"

// RetryState counts consecutive failed on-chain attempts per symbol
// since the last success. The count drives fallback urgency in logs and
// metrics only; it never blocks further retries.
type RetryState struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewRetryState creates an empty retry table.
func NewRetryState() *RetryState {
	return &RetryState{counts: make(map[string]int)}
}

// Increment bumps the failure count for symbol and returns the new count.
func (r *RetryState) Increment(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[symbol]++
	return r.counts[symbol]
}

// Reset clears the failure count for symbol after a successful read.
func (r *RetryState) Reset(symbol string) {
	r.mu.Lock()
	delete(r.counts, symbol)
	r.mu.Unlock()
}

// Count returns the current failure count for symbol.
func (r *RetryState) Count(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[symbol]
}
