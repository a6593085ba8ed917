// Package retry provides bounded retry policies with exponential backoff and
// jitter for optimistic-concurrency command execution.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy defines retry behavior for a command execution.
// A retry stops as soon as either MaxAttempts or MaxElapsed is reached.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Must be at least 1.
	MaxAttempts int

	// MaxElapsed bounds the total time spent across all attempts.
	// Zero means no time bound.
	MaxElapsed time.Duration

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier applied after each retry.
	// For example, 2.0 doubles the delay each time.
	Multiplier float64

	// Jitter is a random factor (0-1) applied to the delay.
	// For example, 0.1 adds up to 10% random variation.
	Jitter float64
}

// Default returns the policy used for command execution under contention.
// 10 attempts within 15 seconds, 100ms initial delay, 2 second max,
// 1.2x multiplier, 20% jitter.
func Default() *Policy {
	return &Policy{
		MaxAttempts:  10,
		MaxElapsed:   15 * time.Second,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   1.2,
		Jitter:       0.2,
	}
}

// NoRetry returns a policy that doesn't retry.
func NoRetry() *Policy {
	return &Policy{
		MaxAttempts:  1,
		InitialDelay: 0,
		MaxDelay:     0,
		Multiplier:   1.0,
		Jitter:       0,
	}
}

// Validate reports whether the policy can be used.
func (p *Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return errors.New("retry: MaxAttempts must be at least 1")
	case p.MaxElapsed < 0:
		return errors.New("retry: MaxElapsed must not be negative")
	case p.InitialDelay < 0 || p.MaxDelay < 0:
		return errors.New("retry: delays must not be negative")
	case p.Multiplier < 1:
		return errors.New("retry: Multiplier must be at least 1")
	case p.Jitter < 0 || p.Jitter > 1:
		return errors.New("retry: Jitter must be between 0 and 1")
	}
	return nil
}

// NextDelay calculates the delay for the given attempt.
// Attempt is 1-indexed (attempt 1 is the first retry, after the initial try).
// Returns 0 for attempt 0 or negative attempts.
func (p *Policy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	// attempt 1 -> InitialDelay
	// attempt 2 -> InitialDelay * Multiplier
	// attempt 3 -> InitialDelay * Multiplier^2
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))

	// Clamp before converting; a large product overflows time.Duration.
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		// Range [1-jitter, 1+jitter]
		jitterFactor := 1 - p.Jitter + 2*p.Jitter*rand.Float64()
		d *= jitterFactor
	}

	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Backoff is NextDelay clamped to what remains of MaxElapsed, so the wait
// after a failed attempt never runs past the elapsed bound.
func (p *Policy) Backoff(attempt int, elapsed time.Duration) time.Duration {
	delay := p.NextDelay(attempt)
	if p.MaxElapsed > 0 {
		if remaining := p.MaxElapsed - elapsed; delay > remaining {
			delay = max(remaining, 0)
		}
	}
	return delay
}

// ShouldRetry returns true if another attempt should be made.
// Attempt is the number of the attempt that just failed (1-indexed) and
// elapsed is the time spent since the first attempt started.
func (p *Policy) ShouldRetry(attempt int, elapsed time.Duration) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	if p.MaxElapsed > 0 && elapsed >= p.MaxElapsed {
		return false
	}
	return true
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
