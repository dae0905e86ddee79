// Package circuitbreaker stops hammering a remote source that keeps failing.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gmn-data-platform/gmntraj/metrics"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// State represents the current state of the circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

func (s State) gauge() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// CircuitBreaker is a three-state breaker. A maxFailures <= 0 disables it.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a breaker for the named source.
func New(name string, maxFailures int, resetTimeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	cb := &CircuitBreaker{
		name:         name,
		state:        StateClosed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger.With("component", "circuitbreaker", "source", name),
		now:          time.Now,
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return cb
}

// Allow reports whether a call may proceed. An open breaker moves to
// half-open once resetTimeout has passed since the last failure.
func (cb *CircuitBreaker) Allow() bool {
	if cb.maxFailures <= 0 {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.logger.Info("circuit breaker half-open", "previous_failures", cb.failures)
	}
	return true
}

// Do runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.logger.Info("circuit breaker closed after successful trial")
	}
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb.maxFailures <= 0 {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	switch {
	case cb.state == StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.Warn("circuit breaker re-opened after half-open failure", "failures", cb.failures)
	case cb.failures >= cb.maxFailures && cb.state != StateOpen:
		cb.setState(StateOpen)
		cb.logger.Warn("circuit breaker opened", "failures", cb.failures, "max_failures", cb.maxFailures)
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(s.gauge())
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the breaker closed with zero failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.setState(StateClosed)
	cb.logger.Info("circuit breaker reset")
}
