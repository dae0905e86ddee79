// Package safegoroutine runs errgroup workers that turn panics into errors.
package safegoroutine

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gmn-data-platform/gmntraj/metrics"
	"golang.org/x/sync/errgroup"
)

// PanicError is returned by a worker that panicked.
type PanicError struct {
	Name  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// Go schedules fn on g. A panic in fn is recovered, logged with its stack,
// counted and reported to g as a *PanicError.
func Go(g *errgroup.Group, logger *slog.Logger, name string, fn func() error) {
	if logger == nil {
		logger = slog.Default()
	}
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				metrics.PanicsRecovered.WithLabelValues(name).Inc()
				logger.Error("panic recovered", "worker", name, "panic", r, "stack", string(stack))
				err = &PanicError{Name: name, Value: r, Stack: stack}
			}
		}()
		return fn()
	})
}
