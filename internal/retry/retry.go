// Package retry wraps github.com/cenkalti/backoff/v4 with a fixed policy:
// three attempts in all, with exponential waits starting at 1s and
// doubling (capped at 4s), jittered by the library's default randomization.
// Only the payment gateway's order call goes through Do; database calls
// are not retried, and IsTransientSQLite has no caller.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxAttempts = 3

func policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 4 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)
}

// Do runs fn, retrying with the fixed backoff policy as long as fn returns
// an error for which isTransient reports true. The first non-transient
// error, or the last transient error once retries are exhausted, is
// returned unchanged.
func Do(ctx context.Context, isTransient func(error) bool, fn func() error) error {
	var lastErr error
	op := func() error {
		err := fn()
		lastErr = err
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, policy(ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return lastErr
	}
	return nil
}

// IsTransientSQLite reports whether err looks like a transient SQLite
// condition (database busy/locked) worth retrying, as opposed to a
// permanent fault such as a constraint violation.
func IsTransientSQLite(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}
