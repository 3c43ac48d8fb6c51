package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(n int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   n,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		BackoffRatio: 2.0,
	}
}

// flaky fails the first failures calls with err and then returns v.
func flaky(calls *atomic.Int32, failures int32, err error, v any) Task {
	return func(ctx context.Context) (any, error) {
		if calls.Add(1) <= failures {
			return nil, err
		}
		return v, nil
	}
}

// TestRetry_SucceedsAfterFailures verifies transient errors are retried
// Given: A task that fails twice and a policy allowing three retries
// When: The wrapped task runs in a queue
// Then: The future resolves with the value after three calls
func TestRetry_SucceedsAfterFailures(t *testing.T) {
	// Arrange
	q := newTestQueue(t, nil)
	var calls atomic.Int32
	task := Retry(flaky(&calls, 2, errors.New("transient"), "ok"), fastRetry(3))

	// Act
	v, err := waitFuture(t, q.Add(t.Context(), task))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	task := Retry(flaky(&calls, 10, boom, nil), fastRetry(2))

	_, err := task(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_NoRetry(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	task := Retry(flaky(&calls, 10, boom, nil), NoRetry())

	_, err := task(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetry_PermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"timeout", &TimeoutError{Timeout: time.Second}},
		{"aborted", ErrAborted},
		{"panic", &PanicError{Value: "x"}},
		{"canceled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			task := Retry(flaky(&calls, 10, tt.err, nil), fastRetry(5))

			_, err := task(context.Background())

			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

// TestRetryNotify_Callback verifies notify sees every retried failure
// Given: A task failing twice and a notify callback
// When: The wrapped task runs
// Then: notify is called twice with the failure and a non-negative delay
func TestRetryNotify_Callback(t *testing.T) {
	// Arrange
	var calls atomic.Int32
	transient := errors.New("transient")
	var notified []error
	task := RetryNotify(flaky(&calls, 2, transient, 7), fastRetry(5), func(err error, next time.Duration) {
		notified = append(notified, err)
		assert.GreaterOrEqual(t, next, time.Duration(0))
	})

	// Act
	v, err := task(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	require.Len(t, notified, 2)
	assert.ErrorIs(t, notified[0], transient)
}

// TestRetry_StopsOnContextCancel verifies a cancelled task context ends the attempts
func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	task := Retry(func(ctx context.Context) (any, error) {
		calls.Add(1)
		cancel()
		return nil, errors.New("failed")
	}, fastRetry(5))

	_, err := task(ctx)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
