// Package ratelimit paces GATT writes to a single peer.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter grants at most permits acquisitions per interval.
// Concurrent waiters are served in the order they called Acquire.
type Limiter struct {
	lim *rate.Limiter
}

// New creates a limiter. A zero interval disables pacing.
func New(permits int, interval time.Duration) *Limiter {
	if permits < 1 {
		permits = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval / time.Duration(permits))
	}
	return &Limiter{lim: rate.NewLimiter(limit, permits)}
}

// Acquire blocks until a permit is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
