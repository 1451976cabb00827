package raiox

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy bounds the attempts made for a single month. The wait after the
// k-th failed attempt is k*Unit.
type Policy struct {
	MaxAttempts int
	Unit        time.Duration
}

// DefaultPolicy allows 10 attempts with a one second unit.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 10, Unit: time.Second}
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 || p.Unit < 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// Backoff returns a fresh linear schedule capped at MaxAttempts-1 waits.
func (p Policy) Backoff() retry.Backoff {
	var attempt int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * p.Unit, false
	})
	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), linear)
}

// Delays lists every wait the policy would perform, in order.
func (p Policy) Delays() []time.Duration {
	b := p.Backoff()
	var out []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			return out
		}
		out = append(out, d)
	}
}

// Do calls fn until it succeeds, returns an error not marked with
// retry.RetryableError, or the attempts are spent. It reports how many
// attempts were made. On exhaustion the last retryable error is returned
// unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := 0
	err := retry.Do(ctx, p.Backoff(), func(ctx context.Context) error {
		attempts++
		return fn(ctx, attempts)
	})
	return attempts, err
}
