// Package retry runs broker connects and discovery with bounded
// exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultPolicy waits 500ms, doubling up to 8s, for at most maxRetries
// retries after the first attempt.
func DefaultPolicy(maxRetries int) Policy {
	return Policy{Initial: 500 * time.Millisecond, Max: 8 * time.Second, MaxRetries: maxRetries}
}

// Permanent wraps err so Do stops retrying immediately.
func Permanent(err error) error { return backoff.Permanent(err) }

// Do runs op until it succeeds, returns a Permanent error, the retry budget
// is spent, or ctx ends. The last error is returned.
func Do(ctx context.Context, p Policy, logger *slog.Logger, what string, op func(context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0

	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(p.MaxRetries, 0))), ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		return op(ctx)
	}, b, func(err error, wait time.Duration) {
		logger.Warn(what+" failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	})
}
