package resilience

import (
	"context"
	"fmt"
	"time"
)

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default [SleepFunc]. It never busy-waits.
func Sleep(ctx context.Context, d time.Duration) error {
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

// RetryPolicy is a fixed retry schedule: one initial attempt plus one retry
// per entry in Delays, with Delays[i] waited before retry i+1. There is no
// wait after the final attempt.
type RetryPolicy struct {
	Delays []time.Duration

	// IsRetryable decides whether a failed attempt may be retried. Nil means
	// every error is retryable.
	IsRetryable func(error) bool

	// Sleep waits between attempts. Nil means [Sleep].
	Sleep SleepFunc

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Attempts returns the maximum number of calls the policy makes.
func (p RetryPolicy) Attempts() int { return len(p.Delays) + 1 }

// ExhaustedError reports that every attempt of a [RetryPolicy] failed with a
// retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// schedule is exhausted. Attempt numbers passed to fn start at 1. A
// non-retryable error is returned as is; exhaustion yields *ExhaustedError.
// Cancellation of ctx during a wait returns ctx.Err().
func Retry[R any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (R, error)) (R, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	var zero R
	attempts := p.Attempts()
	for attempt := 1; ; attempt++ {
		res, err := fn(ctx, attempt)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return zero, err
		}
		if attempt >= attempts {
			return zero, &ExhaustedError{Attempts: attempt, Last: err}
		}
		delay := p.Delays[attempt-1]
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}
