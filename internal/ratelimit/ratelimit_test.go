package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Disabled(t *testing.T) {
	for _, rps := range []float64{0, -1} {
		l := New(rps, 1, "test", nil)
		if l.Enabled() {
			t.Fatalf("rps %v: limiter should be disabled", rps)
		}
		start := time.Now()
		for range 100 {
			if err := l.Wait(context.Background()); err != nil {
				t.Fatalf("disabled limiter returned error: %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Fatalf("disabled limiter took %v", elapsed)
		}
	}
}

func TestLimiter_RespectsRate(t *testing.T) {
	// 10/s with a burst of 1: the first request is free, four more need ~400ms.
	l := New(10, 1, "test", nil)
	ctx := context.Background()

	start := time.Now()
	for range 5 {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait returned error: %v", err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 300*time.Millisecond || elapsed > 800*time.Millisecond {
		t.Fatalf("5 requests at 10/s took %v", elapsed)
	}
}

func TestLimiter_ZeroBurstAllowsOne(t *testing.T) {
	l := New(1, 0, "test", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("burst 0 should be raised to 1: %v", err)
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	l := New(1, 1, "test", nil)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait should succeed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
