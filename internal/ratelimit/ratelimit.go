// Package ratelimit throttles requests against a single remote source.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/gmn-data-platform/gmntraj/metrics"
	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter and records how long callers waited.
type Limiter struct {
	limiter *rate.Limiter
	source  string
	logger  *slog.Logger
}

// New creates a limiter for the named source. A requestsPerSecond <= 0
// disables limiting.
func New(requestsPerSecond float64, burst int, source string, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	var l *rate.Limiter
	if requestsPerSecond > 0 {
		l = rate.NewLimiter(rate.Limit(requestsPerSecond), max(burst, 1))
	}
	return &Limiter{
		limiter: l,
		source:  source,
		logger:  logger.With("component", "ratelimit", "source", source),
	}
}

// Enabled reports whether the limiter throttles at all.
func (l *Limiter) Enabled() bool {
	return l.limiter != nil
}

// Wait blocks until a request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}

	start := time.Now()
	err := l.limiter.Wait(ctx)
	elapsed := time.Since(start)

	if err == nil && elapsed > time.Millisecond {
		metrics.RateLimitWaits.WithLabelValues(l.source).Inc()
		metrics.RateLimitWaitDuration.WithLabelValues(l.source).Observe(elapsed.Seconds())
		l.logger.Debug("throttled", "waited", elapsed)
	}

	return err
}
