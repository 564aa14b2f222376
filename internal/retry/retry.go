// Package retry runs operations under an explicit retry policy with capped
// exponential backoff. Exhaustion is terminal: the executor reports it to the
// policy's OnExhausted hook and stops, it never loops indefinitely.
package retry

import (
	"context"
	"fmt"
	"time"

	"posterlab/internal/domain"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	// OnExhausted, if set, is called with the last error once MaxAttempts
	// have been spent.
	OnExhausted func(lastErr error)
}

// CappedExponential returns the standard backoff used across this codebase:
// min(2^attempt * base, cap).
func CappedExponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 0; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// Default is the platform-wide policy: 20 attempts, min(2^n*10ms, 1s).
func Default() Policy {
	return Policy{
		MaxAttempts: 20,
		Backoff:     CappedExponential(10*time.Millisecond, time.Second),
	}
}

// Do runs op until it succeeds, the context is done, or attempts run out.
// On exhaustion the returned error wraps domain.ErrRetriesExhausted together
// with the last error from op.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 && p.Backoff != nil {
			select {
			case <-time.After(p.Backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
	}

	if p.OnExhausted != nil {
		p.OnExhausted(lastErr)
	}
	return fmt.Errorf("%w: %w", domain.ErrRetriesExhausted, lastErr)
}
