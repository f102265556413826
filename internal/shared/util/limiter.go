package util

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter to provide a simpler interface.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a new token bucket limiter.
// r: tokens per second, zero or negative means unlimited.
// b: burst size.
func NewLimiter(r float64, b int) *Limiter {
	return &Limiter{
		inner: rate.NewLimiter(toLimit(r), max(b, 1)),
	}
}

func toLimit(r float64) rate.Limit {
	if r <= 0 || math.IsInf(r, 1) {
		return rate.Inf
	}
	return rate.Limit(r)
}

// Allow reports whether an event with weight n may happen at time now.
func (l *Limiter) Allow(n int) bool {
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}

// SetRate changes rate and burst in place, keeping already accumulated tokens.
func (l *Limiter) SetRate(r float64, b int) {
	now := time.Now()
	l.inner.SetLimitAt(now, toLimit(r))
	l.inner.SetBurstAt(now, max(b, 1))
}

func (l *Limiter) Rate() float64 {
	return float64(l.inner.Limit())
}
