// Package retry turns a ports.RetryPolicy into bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ghalamif/databridge/internal/ports"
)

// BackOff builds an exponential backoff that stops after p.MaxRetries retries
// or when ctx is done, whichever comes first.
func BackOff(ctx context.Context, p ports.RetryPolicy) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// Do runs op until it succeeds, returns a permanent error, or the budget runs out.
// notify, when non-nil, is called before every wait.
func Do(ctx context.Context, p ports.RetryPolicy, op func() error, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(op, BackOff(ctx, p), notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
