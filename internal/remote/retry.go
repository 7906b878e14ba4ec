// Package remote propagates store snapshots to a remote system on a
// best-effort basis. Local durability is authoritative; a failed sync is
// logged and swallowed, never surfaced to the caller of the local write.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrRetriesExhausted marks an operation that kept failing retryably until
// the attempt budget ran out.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Retryer runs an idempotent operation with bounded retries and exponential
// backoff. It replaces the ad hoc retry loops scattered through earlier
// versions of this tool: any remote target plugs in via the operation and
// the retryable-error predicate.
type Retryer struct {
	// Attempts is the maximum number of tries, including the first.
	Attempts int

	// BaseDelay is the wait before the second attempt; it doubles after
	// each further failure (1s, 2s, 4s, ...).
	BaseDelay time.Duration

	// Sleep is overridable in tests. Nil means a context-aware sleep.
	Sleep func(context.Context, time.Duration) error
}

// Do runs op until it succeeds, fails non-retryably, the attempt budget is
// spent, or ctx is done. isRetryable decides whether a failure is worth
// another attempt; a nil predicate retries everything.
func (r Retryer) Do(ctx context.Context, isRetryable func(error) bool, op func(context.Context) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	delay := r.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		slog.Warn("retryable failure, backing off",
			"attempt", attempt, "max_attempts", attempts, "delay", delay, "error", lastErr)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
