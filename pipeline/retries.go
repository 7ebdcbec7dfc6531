// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds an exponential backoff loop. MaxRetries zero means
// retry forever.
type RetryPolicy struct {
	MaxRetries    uint64
	BackoffUnit   time.Duration
	BackoffFactor float64
	MaxBackoff    time.Duration
}

// DefaultBootstrapRetry matches the stage bootstrap discipline: the first
// attempt plus 20 retries, 1s doubling up to 60s.
func DefaultBootstrapRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    20,
		BackoffUnit:   time.Second,
		BackoffFactor: 2,
		MaxBackoff:    60 * time.Second,
	}
}

// DefaultWorkRetry restarts work with a short backoff, unbounded.
func DefaultWorkRetry() RetryPolicy {
	return RetryPolicy{
		BackoffUnit:   100 * time.Millisecond,
		BackoffFactor: 2,
		MaxBackoff:    5 * time.Second,
	}
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BackoffUnit
	bo.Multiplier = p.BackoffFactor
	bo.MaxInterval = p.MaxBackoff
	bo.MaxElapsedTime = 0
	var wrapped backoff.BackOff = bo
	if p.MaxRetries > 0 {
		wrapped = backoff.WithMaxRetries(wrapped, p.MaxRetries)
	}
	return backoff.WithContext(wrapped, ctx)
}

// Retry runs op under the policy until it succeeds, the attempts are
// exhausted, or ctx is cancelled.
func (p RetryPolicy) Retry(ctx context.Context, op func() error) error {
	return backoff.Retry(op, p.backoff(ctx))
}
