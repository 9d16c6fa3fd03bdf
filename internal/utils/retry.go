package utils

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy is a bounded retry with a fixed pause between attempts.
// Only errors accepted by Retryable are retried.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Retryable  func(error) bool
}

// TimeoutOnly builds a policy that retries timeouts and nothing else.
func TimeoutOnly(backoffDelay time.Duration, maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		Backoff:    backoffDelay,
		Retryable:  IsTimeout,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error or the
// retry budget is spent. notify is called before each retry and may be nil.
func (p RetryPolicy) Do(ctx context.Context, op func() error, notify func(err error, wait time.Duration)) error {
	// WithMaxRetries treats zero as unlimited
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(p.MaxRetries))
	}
	b := backoff.WithContext(policy, ctx)

	operation := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait)
		}
	})

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// IsTimeout reports whether err is a deadline or network timeout
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
