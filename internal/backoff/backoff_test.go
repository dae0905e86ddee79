package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJitter_ExponentialGrowth(t *testing.T) {
	base := 1 * time.Second
	cap := 32 * time.Second

	for _, tc := range []struct {
		attempt int
		maxCap  time.Duration
	}{
		{0, 1 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{10, 32 * time.Second}, // capped
	} {
		for range 500 {
			d := Jitter(tc.attempt, base, cap)
			if d > tc.maxCap {
				t.Errorf("Jitter(%d) = %v, exceeds %v", tc.attempt, d, tc.maxCap)
			}
			if d < minDelay {
				t.Errorf("Jitter(%d) = %v, below floor", tc.attempt, d)
			}
		}
	}
}

func TestJitter_TinyBase(t *testing.T) {
	if d := Jitter(0, time.Millisecond, time.Second); d != minDelay {
		t.Fatalf("got %v, want %v", d, minDelay)
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := DefaultPolicy()
	for attempt := range p.MaxRetries + 5 {
		d := p.Delay(attempt)
		if d < minDelay || d > p.Cap {
			t.Fatalf("attempt %d: got %v, want [%v, %v]", attempt, d, minDelay, p.Cap)
		}
	}
}

func TestPolicy_SleepCancelled(t *testing.T) {
	p := Policy{Base: time.Hour, Cap: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Sleep(ctx, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}

func TestPolicy_SleepElapses(t *testing.T) {
	p := Policy{Base: time.Millisecond, Cap: time.Millisecond}
	start := time.Now()
	if err := p.Sleep(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < minDelay {
		t.Fatal("sleep returned before the floor delay")
	}
}
