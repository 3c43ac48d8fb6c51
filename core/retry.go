package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// =============================================================================
// Retry Policy
// =============================================================================

// RetryPolicy defines retry behavior for tasks wrapped with Retry
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retry, 1 = one retry)
	MaxRetries int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// BackoffRatio is the multiplier for delay after each retry (e.g., 2.0 for exponential)
	// For example, with InitialDelay=100ms and BackoffRatio=2.0:
	// - Retry 1 delay: 100ms
	// - Retry 2 delay: 200ms
	// - Retry 3 delay: 400ms (capped by MaxDelay)
	BackoffRatio float64

	// Jitter randomizes each delay by +/- Jitter*delay. 0 disables it.
	Jitter float64
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		BackoffRatio: 2.0,
	}
}

// NoRetry returns a retry policy with no retries
func NoRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   0,
		InitialDelay: 0,
		MaxDelay:     0,
		BackoffRatio: 1.0,
	}
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.BackoffRatio
	b.RandomizationFactor = p.Jitter
	// The attempt count is the only stop condition.
	b.MaxElapsedTime = 0
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0))), ctx)
}

// Retry wraps task so that failed attempts are retried inside the same
// queue slot according to policy. Timeouts, aborts and context errors are
// not retried. The wrapped task returns the last attempt's error.
//
// The whole sequence of attempts shares the task's timeout.
func Retry(task Task, policy RetryPolicy) Task {
	return RetryNotify(task, policy, nil)
}

// RetryNotify is like Retry and calls notify after every failed attempt
// that will be retried.
func RetryNotify(task Task, policy RetryPolicy, notify func(err error, next time.Duration)) Task {
	return func(ctx context.Context) (any, error) {
		var value any
		op := func() error {
			v, err := task(ctx)
			if err == nil {
				value = v
				return nil
			}
			if !isRetryable(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}

		if err := backoff.RetryNotify(op, policy.newBackOff(ctx), notify); err != nil {
			return nil, err
		}
		return value, nil
	}
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var panicErr *PanicError
	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &panicErr):
		return false
	}
	return true
}
