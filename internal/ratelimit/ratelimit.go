package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket limiting calls to rps per second, with a burst
// capacity of one second's worth of tokens.
type Limiter struct {
	mu     sync.Mutex
	rate   float64
	tokens float64
	burst  float64
	last   time.Time
}

// New creates a limiter allowing rps requests per second. Non-positive rates
// are clamped to one per second.
func New(rps float64) *Limiter {
	if rps <= 0 {
		rps = 1.0
	}
	return &Limiter{
		rate:   rps,
		tokens: rps,
		burst:  rps,
		last:   time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.take() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(float64(time.Second) / l.rate)):
		}
	}
}

// take refills the bucket for the elapsed time and claims a token if one is
// available.
func (l *Limiter) take() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now

	if l.tokens < 1.0 {
		return false
	}
	l.tokens -= 1.0
	return true
}
