// Package backoff computes retry delays for remote data sources.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const minDelay = 100 * time.Millisecond

// Jitter returns an exponential delay with full jitter.
//
//	delay = max(minDelay, rand(0, min(cap, base * 2^attempt)))
func Jitter(attempt int, base, cap time.Duration) time.Duration {
	exp := float64(base) * math.Pow(2, float64(attempt))
	if exp > float64(cap) || exp <= 0 { // overflow guard
		exp = float64(cap)
	}
	if exp <= float64(minDelay) {
		return minDelay
	}
	d := time.Duration(rand.Int64N(int64(exp)))
	return max(d, minDelay)
}

// Policy bounds how often and how long a failing request is retried.
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// DefaultPolicy matches the retrieval defaults in config.Default.
func DefaultPolicy() Policy {
	return Policy{Base: 500 * time.Millisecond, Cap: 10 * time.Second, MaxRetries: 3}
}

// Delay returns the wait before retry number attempt (zero based).
func (p Policy) Delay(attempt int) time.Duration {
	return Jitter(attempt, p.Base, p.Cap)
}

// Sleep waits for Delay(attempt) or until ctx is done.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
