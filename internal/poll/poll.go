// Copyright 2025 Joseph Cumines
//
// Package poll provides the bounded retry primitive used by every
// discovery and wait operation.
//
// A Condition is evaluated repeatedly until it reports success or the
// timeout elapses. Conditions never return errors: a condition that hits a
// transient failure (a window still animating, a provider that is briefly
// unqueryable) reports "not yet" and is tried again on the next attempt.
// Only the timeout, or cancellation of the context, ends a wait early.
//
// Key utilities:
//   - Until: polls a Condition until it yields a value or times out
//   - Poller: carries the interval and the clock used between attempts

package poll

import (
	"context"
	"errors"
	"time"
)

// DefaultInterval is the delay between attempts when none is configured.
const DefaultInterval = 100 * time.Millisecond

// ErrTimeout is returned by Until when the timeout elapsed before the
// condition was satisfied.
var ErrTimeout = errors.New("timed out waiting for condition")

// Condition is a single attempt. It returns the value and true once the
// awaited state is reached; on any other outcome, including a transient
// failure, it returns false.
type Condition[T any] func(ctx context.Context) (T, bool)

// Poller holds the retry policy. A nil *Poller is valid and uses
// DefaultInterval with the real clock.
type Poller struct {
	now      func() time.Time                     // injectable clock for testing
	after    func(time.Duration) <-chan time.Time // injectable timer for testing
	interval time.Duration
}

// New creates a Poller sleeping interval between attempts.
// A non-positive interval selects DefaultInterval.
func New(interval time.Duration) *Poller {
	return NewWithClock(interval, time.Now, time.After)
}

// NewWithClock creates a Poller with an injectable clock.
// This is primarily used for testing to control time progression.
func NewWithClock(interval time.Duration, now func() time.Time, after func(time.Duration) <-chan time.Time) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		now:      now,
		after:    after,
		interval: interval,
	}
}

// Interval returns the delay between attempts.
func (p *Poller) Interval() time.Duration {
	if p == nil {
		return DefaultInterval
	}
	return p.interval
}

func (p *Poller) clock() (func() time.Time, func(time.Duration) <-chan time.Time) {
	if p == nil {
		return time.Now, time.After
	}
	return p.now, p.after
}

// Until evaluates cond until it succeeds, returning its value.
//
// The condition is always attempted at least once. Between attempts Until
// sleeps for the poll interval, shortened so that it never sleeps past the
// deadline; once the elapsed time reaches timeout after an attempt, it
// returns ErrTimeout without sleeping again. If ctx is done while sleeping,
// ctx.Err() is returned.
func Until[T any](ctx context.Context, p *Poller, timeout time.Duration, cond Condition[T]) (T, error) {
	var zero T
	now, after := p.clock()
	interval := p.Interval()
	start := now()

	for {
		if v, ok := cond(ctx); ok {
			return v, nil
		}

		elapsed := now().Sub(start)
		if elapsed >= timeout {
			return zero, ErrTimeout
		}

		wait := interval
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-after(wait):
		}
	}
}

// Exists is Until for boolean conditions: it reports whether cond became
// true within timeout. Timeouts and cancellation both read as false.
func Exists(ctx context.Context, p *Poller, timeout time.Duration, cond func(ctx context.Context) bool) bool {
	_, err := Until(ctx, p, timeout, func(ctx context.Context) (struct{}, bool) {
		return struct{}{}, cond(ctx)
	})
	return err == nil
}
