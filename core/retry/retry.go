// Package retry runs an operation a bounded number of times with
// separate backoff strategies for ordinary and rate-limited failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// ErrExhausted wraps the last failure once every attempt has been used.
var ErrExhausted = errors.New("retry attempts exhausted")

// Sleeper waits for d, returning early with ctx.Err() if ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns the wait after failed attempt n (1-based).
type Backoff func(n int) time.Duration

// Flat waits the same duration after every failure.
func Flat(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Linear waits step*n after failure n.
func Linear(step time.Duration) Backoff {
	return func(n int) time.Duration { return step * time.Duration(n) }
}

// Policy describes how an operation is retried.
//
// Plain applies to ordinary failures and is skipped after the final
// attempt, whose error is returned. Throttled applies to failures for which
// IsThrottled reports true and is honored after every attempt, including the
// last one.
type Policy struct {
	Attempts    int
	Plain       Backoff
	Throttled   Backoff
	IsThrottled func(error) bool
	Sleep       Sleeper

	// OnFailure is called after each failed attempt with the wait that follows it.
	OnFailure func(attempt int, wait time.Duration, err error)
}

// Send returns the policy used for outbound messages: 3 attempts, a flat
// 1s between ordinary failures and 1s*attempt after a rate-limited one.
func Send(isThrottled func(error) bool) Policy {
	return Policy{
		Attempts:    DefaultAttempts,
		Plain:       Flat(DefaultDelay),
		Throttled:   Linear(DefaultDelay),
		IsThrottled: isThrottled,
	}
}

// Do runs op until it succeeds, attempts run out, or ctx is cancelled.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for n := 1; n <= attempts; n++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return err
		}

		wait := p.wait(n, attempts, err)
		if p.OnFailure != nil {
			p.OnFailure(n, wait, err)
		}
		if wait > 0 {
			if serr := sleep(ctx, wait); serr != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

func (p Policy) wait(n, attempts int, err error) time.Duration {
	if p.IsThrottled != nil && p.IsThrottled(err) && p.Throttled != nil {
		return p.Throttled(n)
	}
	if n < attempts && p.Plain != nil {
		return p.Plain(n)
	}
	return 0
}
