// Package retry provides the bounded-retry-with-backoff loop shared by store
// reads, store writes, and generation-service calls.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Fixed waits the same duration between every attempt.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential doubles the delay after each failed attempt, starting at base.
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base << (attempt - 1)
	}
}

// Do runs op up to attempts times, sleeping per backoff between failures.
// The sleep is context-aware; a cancelled context aborts the loop with the
// context's error. Returns the last error once the budget is exhausted.
func Do(ctx context.Context, attempts int, backoff Backoff, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		if err := sleep(ctx, backoff(attempt)); err != nil {
			return err
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sleep waits for d or until ctx is cancelled. Exported for the pacing
// delays between generation-service calls, which share the same contract.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}
