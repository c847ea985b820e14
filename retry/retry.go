// Package retry implements bounded exponential backoff for transient faults.
//
// Information Hiding:
// - Backoff schedule computation
// - Sleep/cancellation interleaving
//
// Which errors count as transient is the caller's decision, supplied as a
// predicate; this package only owns the budget and the schedule.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBudgetExhausted is returned (wrapped around the last attempt's error)
// when every allowed attempt has failed with a transient fault.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Policy controls the retry schedule.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// Transient decides whether an error is worth retrying.
	// A nil predicate retries nothing.
	Transient func(error) bool
}

// DefaultPolicy returns the schedule used for upstream model calls.
func DefaultPolicy(transient func(error) bool) Policy {
	return Policy{
		MaxAttempts:    8,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Transient:      transient,
	}
}

// Stats records what a Do invocation actually did.
type Stats struct {
	// Attempts is the number of calls made, including the successful one.
	Attempts int
	// Backoff is the total time spent sleeping between attempts.
	Backoff time.Duration
}

// Backoff returns the delay before attempt number attempt+2, i.e. the sleep
// after the given zero-based attempt fails. The delay doubles per attempt and
// never exceeds MaxBackoff, so the schedule is non-decreasing.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do runs fn until it succeeds, fails non-transiently, exhausts the attempt
// budget, or the context is cancelled. Non-transient errors propagate
// unchanged after a single attempt.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, Stats, error) {
	var zero T
	var stats Stats

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, stats, err
		}

		stats.Attempts++
		result, err := fn(ctx)
		if err == nil {
			return result, stats, nil
		}
		lastErr = err

		if p.Transient == nil || !p.Transient(err) {
			return zero, stats, err
		}

		if attempt == attempts-1 {
			break
		}

		delay := p.Backoff(attempt)
		stats.Backoff += delay
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, stats, ctx.Err()
		}
	}

	return zero, stats, fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, stats.Attempts, lastErr)
}
