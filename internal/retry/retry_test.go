package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond}
	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
}

func TestDoValueSucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		OnRetry:    func(_ int, d time.Duration, _ error) { delays = append(delays, d) },
	}

	calls := 0
	got, err := DoValue(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, delays)
}

func TestDoExhausts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 2, BaseDelay: time.Microsecond}, func(context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	bad := errors.New("400 bad request")
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 5, BaseDelay: time.Microsecond}, func(context.Context) error {
		calls++
		return Permanent(bad)
	})

	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnPermanentAfterRetry(t *testing.T) {
	bad := errors.New("401 unauthorized")
	var retries []int
	p := Policy{
		MaxRetries: 1,
		BaseDelay:  time.Microsecond,
		OnRetry:    func(retry int, _ time.Duration, _ error) { retries = append(retries, retry) },
	}

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("503")
		}
		return Permanent(bad)
	})

	assert.Equal(t, bad, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, retries)
}

func TestDoWithoutRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errors.New("503")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 1 attempts")
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxRetries: 3, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}
