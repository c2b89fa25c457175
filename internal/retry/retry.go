// Package retry provides the bounded retry policy shared by the execution
// gateway and the snapshot reconnection path, so backoff behavior is
// testable independent of the decision loop.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Default mirrors the broker adapter's historical retry behavior: five
// attempts with short exponential backoff.
func Default() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Do runs op until it succeeds, retryable reports an error as permanent,
// the attempt budget is exhausted, or ctx is done. The last error is
// returned unwrapped.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, retryable func(error) bool) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	// Attempt-bounded, never wall-clock bounded.
	b.MaxElapsedTime = 0

	var sched backoff.BackOff = b
	if p.MaxAttempts > 0 {
		sched = backoff.WithMaxRetries(sched, uint64(p.MaxAttempts-1))
	}
	sched = backoff.WithContext(sched, ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, sched)
}

// Always treats every error as retryable.
func Always(error) bool { return true }
