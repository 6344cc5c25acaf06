// Package retry wraps capped exponential backoff for operations that opt
// in, typically transient external-service failures.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do runs op with exponential backoff until it succeeds, the context is
// cancelled, or maxElapsed passes. Wrap an error with Permanent to stop
// retrying immediately.
func Do(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
