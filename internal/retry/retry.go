// Package retry re-runs failing calls to unreliable services with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy controls how many times a call is retried and how long to wait.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is doubled for every retry: BaseDelay*2, BaseDelay*4, ...
	BaseDelay time.Duration
	// OnRetry, when set, is called before each wait.
	OnRetry func(retry int, delay time.Duration, err error)
}

// Backoff returns the wait before the given retry (1-based).
func (p Policy) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(1<<uint(retry))
}

func (p Policy) retries() int {
	return max(p.MaxRetries, 0)
}

// exponential is the backoff.BackOff matching Backoff: no jitter, doubling
// from Backoff(1) up to Backoff(MaxRetries).
func (p Policy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff(1)
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Backoff(max(p.retries(), 1))
	return b
}

// Permanent marks err so that Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a permanent error, the context is
// done, or MaxRetries retries have been spent.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := 0
	var lastErr error

	value, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := fn(ctx)
		if err != nil && !IsPermanent(err) {
			lastErr = err
		}
		return v, err
	},
		backoff.WithBackOff(p.exponential()),
		backoff.WithMaxTries(uint(p.retries()+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempts, delay, err)
			}
		}),
	)
	if err == nil {
		return value, nil
	}

	var perm *backoff.PermanentError
	switch {
	case errors.As(err, &perm):
		return zero, perm.Unwrap()
	case lastErr != nil && ctx.Err() != nil && !errors.Is(err, lastErr):
		return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempts, errors.Join(err, lastErr))
	case lastErr != nil && errors.Is(err, lastErr) && attempts > p.retries():
		return zero, fmt.Errorf("failed after %d attempts: %w", attempts, err)
	default:
		return zero, err
	}
}
