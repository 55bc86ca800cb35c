package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/lunikdev/pledo/internal/engine/types"
)

// ErrRetriesExhausted wraps the last error once every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy runs an operation until it succeeds, fails with an error the
// policy does not retry, or runs out of attempts.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt too.
	MaxAttempts int
	// Backoff is the wait after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Retryable defaults to IsTransient.
	Retryable func(err error) bool
	// Sleep defaults to SleepContext; tests swap in a fake clock.
	Sleep   func(ctx context.Context, d time.Duration) error
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryPolicy waits base*2^attempt between attempts.
func DefaultRetryPolicy(maxAttempts int, base time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = types.DefaultMaxAttempts
	}
	if base <= 0 {
		base = types.RetryBaseDelay
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     ExponentialBackoff(base),
	}
}

// ExponentialBackoff returns base<<attempt: 2s, 4s, 8s, 16s for a 1s base.
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << attempt
	}
}

// Do runs op and returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, op func() error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := op()
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) {
			return attempt, err
		}
		if attempt >= maxAttempts {
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent stops a RetryPolicy from retrying err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTransient reports whether err is worth another attempt. Cancellation,
// local file system failures and errors marked Permanent are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	// Socket failures wrap *os.SyscallError too; they are remote, not local.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return false
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return false
	}
	return true
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
