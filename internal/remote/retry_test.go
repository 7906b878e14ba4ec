package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	r := Retryer{Attempts: 3, BaseDelay: time.Second, Sleep: noSleep(&delays)}

	calls := 0
	err := r.Do(context.Background(), nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays, "backoff doubles each attempt")
}

func TestRetryStopsOnFatalError(t *testing.T) {
	var delays []time.Duration
	r := Retryer{Attempts: 3, BaseDelay: time.Second, Sleep: noSleep(&delays)}

	fatal := errors.New("bad credentials")
	calls := 0
	err := r.Do(context.Background(), func(err error) bool { return false }, func(context.Context) error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls, "fatal errors are never retried")
	assert.Empty(t, delays)
}

func TestRetryExhaustion(t *testing.T) {
	var delays []time.Duration
	r := Retryer{Attempts: 3, BaseDelay: time.Second, Sleep: noSleep(&delays)}

	transient := errors.New("still down")
	calls := 0
	err := r.Do(context.Background(), nil, func(context.Context) error {
		calls++
		return transient
	})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, transient, "last failure stays in the chain")
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2, "no backoff after the final attempt")
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retryer{Attempts: 3, BaseDelay: time.Hour} // real sleep, must be interrupted

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, nil, func(context.Context) error {
			calls++
			return errors.New("transient")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
