// Copyright 2025 Joseph Cumines

package poll

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	current time.Time
	sleeps  []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.sleeps = append(c.sleeps, d)
	c.current = c.current.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.current
	return ch
}

func TestUntil_ImmediateSuccess(t *testing.T) {
	clk := newFakeClock()
	p := NewWithClock(100*time.Millisecond, clk.Now, clk.After)

	got, err := Until(context.Background(), p, time.Second, func(context.Context) (string, bool) {
		return "found", true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "found" {
		t.Errorf("got %q, want found", got)
	}
	if len(clk.sleeps) != 0 {
		t.Errorf("slept %d times, want 0", len(clk.sleeps))
	}
}

func TestUntil_SucceedsAfterRetries(t *testing.T) {
	clk := newFakeClock()
	p := NewWithClock(100*time.Millisecond, clk.Now, clk.After)

	calls := 0
	got, err := Until(context.Background(), p, time.Second, func(context.Context) (int, bool) {
		calls++
		return calls, calls >= 3
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if len(clk.sleeps) != 2 {
		t.Errorf("slept %d times, want 2", len(clk.sleeps))
	}
}

func TestUntil_TransientFailuresDoNotAbort(t *testing.T) {
	clk := newFakeClock()
	p := NewWithClock(100*time.Millisecond, clk.Now, clk.After)

	// Simulates a provider that errors twice, then answers.
	results := []error{errors.New("window animating"), errors.New("rpc unavailable"), nil}
	calls := 0
	_, err := Until(context.Background(), p, time.Second, func(context.Context) (struct{}, bool) {
		err := results[calls]
		calls++
		return struct{}{}, err == nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestUntil_TimeoutAttemptsAndElapsed(t *testing.T) {
	tests := []struct {
		name         string
		interval     time.Duration
		timeout      time.Duration
		wantAttempts int
		wantSleeps   []time.Duration
	}{
		{
			name:         "timeout multiple of interval",
			interval:     100 * time.Millisecond,
			timeout:      300 * time.Millisecond,
			wantAttempts: 4,
			wantSleeps:   []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond},
		},
		{
			name:         "final sleep shortened to deadline",
			interval:     100 * time.Millisecond,
			timeout:      250 * time.Millisecond,
			wantAttempts: 4,
			wantSleeps:   []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 50 * time.Millisecond},
		},
		{
			name:         "zero timeout is a single attempt",
			interval:     100 * time.Millisecond,
			timeout:      0,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newFakeClock()
			start := clk.Now()
			p := NewWithClock(tt.interval, clk.Now, clk.After)

			attempts := 0
			_, err := Until(context.Background(), p, tt.timeout, func(context.Context) (int, bool) {
				attempts++
				return 0, false
			})
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("err = %v, want ErrTimeout", err)
			}
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if len(clk.sleeps) != len(tt.wantSleeps) {
				t.Fatalf("sleeps = %v, want %v", clk.sleeps, tt.wantSleeps)
			}
			for i := range tt.wantSleeps {
				if clk.sleeps[i] != tt.wantSleeps[i] {
					t.Errorf("sleep[%d] = %v, want %v", i, clk.sleeps[i], tt.wantSleeps[i])
				}
			}
			if elapsed := clk.Now().Sub(start); elapsed != tt.timeout {
				t.Errorf("elapsed = %v, want %v", elapsed, tt.timeout)
			}
		})
	}
}

func TestUntil_RealClockBounds(t *testing.T) {
	const interval = 100 * time.Millisecond
	const timeout = 300 * time.Millisecond

	start := time.Now()
	_, err := Until(context.Background(), New(interval), timeout, func(context.Context) (int, bool) {
		return 0, false
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed < timeout {
		t.Errorf("returned after %v, want >= %v", elapsed, timeout)
	}
	if elapsed >= timeout+interval {
		t.Errorf("returned after %v, want < %v", elapsed, timeout+interval)
	}
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := Until(ctx, New(10*time.Millisecond), 5*time.Second, func(context.Context) (int, bool) {
		return 0, false
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestUntil_NilPoller(t *testing.T) {
	got, err := Until(context.Background(), nil, time.Second, func(context.Context) (int, bool) {
		return 7, true
	})
	if err != nil || got != 7 {
		t.Errorf("Until(nil poller) = %d, %v; want 7, nil", got, err)
	}
	if (*Poller)(nil).Interval() != DefaultInterval {
		t.Errorf("nil Interval() = %v, want %v", (*Poller)(nil).Interval(), DefaultInterval)
	}
}

func TestNew_NonPositiveInterval(t *testing.T) {
	if got := New(0).Interval(); got != DefaultInterval {
		t.Errorf("New(0).Interval() = %v, want %v", got, DefaultInterval)
	}
	if got := New(-time.Second).Interval(); got != DefaultInterval {
		t.Errorf("New(-1s).Interval() = %v, want %v", got, DefaultInterval)
	}
}

func TestExists(t *testing.T) {
	clk := newFakeClock()
	p := NewWithClock(100*time.Millisecond, clk.Now, clk.After)

	if Exists(context.Background(), p, 500*time.Millisecond, func(context.Context) bool { return false }) {
		t.Error("Exists() = true for a condition that never holds")
	}

	calls := 0
	if !Exists(context.Background(), p, 500*time.Millisecond, func(context.Context) bool {
		calls++
		return calls == 2
	}) {
		t.Error("Exists() = false for a condition that holds on the second attempt")
	}
}
