// This file implements the bounded-attempt retry policy used around network calls.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default retry configuration
const (
	// DefaultMaxAttempts bounds retries of a single network step.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the first backoff delay; it doubles per attempt.
	DefaultBaseDelay = 2 * time.Second
	// DefaultMaxDelay caps the backoff delay.
	DefaultMaxDelay = 30 * time.Second
)

// RetryPolicy retries an operation a bounded number of times with exponential
// backoff. Exhaustion surfaces as an error; there are no unbounded loops.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used by the relay engine.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Do runs fn up to MaxAttempts times, backing off exponentially between
// attempts: base, 2*base, 4*base, ... capped at MaxDelay. A cancelled context
// stops retrying immediately.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", op, lastErr)
		}
		if attempt == attempts {
			break
		}

		backoff := p.BaseDelay << (attempt - 1)
		if p.MaxDelay > 0 && backoff > p.MaxDelay {
			backoff = p.MaxDelay
		}
		slog.Warn("RetryPolicy.Do: attempt failed, backing off",
			"op", op, "attempt", attempt, "max_attempts", attempts, "backoff", backoff, "error", lastErr)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s cancelled during backoff: %w", op, lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
