// Package ratelimit bounds the call rate to quota-limited upstreams
// using a token bucket. The on-chain source shares one limiter across
// all symbols competing for reads.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket sized from a calls-per-window budget.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter admitting calls requests per window, with the
// given burst capacity. A non-positive window or call count yields an
// unlimited limiter.
func New(calls int, window time.Duration, burst int) *Limiter {
	if calls <= 0 || window <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst <= 0 {
		burst = 1
	}
	rps := float64(calls) / window.Seconds()
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// TryAcquire consumes a slot if one is available. Never blocks.
func (l *Limiter) TryAcquire() bool {
	return l.limiter.Allow()
}

// Acquire blocks until a slot is available or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Tokens returns the number of slots currently available.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}
