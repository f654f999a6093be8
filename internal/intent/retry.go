package intent

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds external HTTP calls with exponential backoff, grounded
// on ashi009-asr-eval's pkg/volc/client.createConnection: backoff doubles
// each attempt starting at Base, capped at Cap, for at most Limit attempts
// (spec.md §4.5 default base 1s, cap 30s, 3 attempts).
type RetryPolicy struct {
	Limit int
	Base  time.Duration
	Cap   time.Duration
}

// DefaultRetryPolicy returns spec.md's stated defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Limit: 3, Base: 1 * time.Second, Cap: 30 * time.Second}
}

// ErrRetriesExhausted wraps the last error after RetryPolicy.Limit attempts
// all failed.
type ErrRetriesExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrRetriesExhausted) Error() string {
	return fmt.Sprintf("intent: exhausted %d attempts: %v", e.Attempts, e.Last)
}

func (e *ErrRetriesExhausted) Unwrap() error { return e.Last }

// backoffFor returns the k-th retry delay (k is 1-indexed; it is the wait
// before attempt k+1), following base * 2^(k-1) capped at ceiling —
// spec.md §8 invariant 5.
func backoffFor(base, ceiling time.Duration, attempt int) time.Duration {
	d := base * time.Duration(1<<uint(attempt-1))
	if d > ceiling {
		d = ceiling
	}
	return d
}

// callWithRetry invokes fn up to policy.Limit times, sleeping with
// exponential backoff between attempts, honoring ctx cancellation.
func callWithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (string, error)) (string, error) {
	limit := policy.Limit
	if limit <= 0 {
		limit = DefaultRetryPolicy().Limit
	}
	base := policy.Base
	if base <= 0 {
		base = DefaultRetryPolicy().Base
	}
	ceiling := policy.Cap
	if ceiling <= 0 {
		ceiling = DefaultRetryPolicy().Cap
	}

	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			delay := backoffFor(base, ceiling, attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return "", &ErrRetriesExhausted{Attempts: limit, Last: lastErr}
}
