/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy builds backoff strategies for retried calls.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// The PolicyFunc type is an adapter that allows ordinary functions to be used as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffPolicy retries up to a maximum attempt count
// with exponentially growing delays (1.5 multiplier).
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxAttempts     int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with the given
// initial interval and maximum retry attempt count. Non-positive maxRetryAttempts
// means no attempt limit.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval, maxRetryAttempts}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	var b backoff.BackOff = eb
	if p.maxAttempts > 0 {
		b = backoff.WithMaxRetries(eb, uint64(p.maxAttempts))
	}
	b.Reset()
	return b
}

// ConstantBackoffPolicy retries up to a maximum attempt count with a fixed delay.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy with the given
// interval and maximum retry attempt count. Non-positive maxRetryAttempts
// means no attempt limit.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxRetryAttempts}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.interval)
	if p.maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.maxAttempts))
	}
	b.Reset()
	return b
}

// IsRetryable tells transient errors apart from persistent ones.
type IsRetryable func(error) bool

// RetryableFunc is a unit of work that may be retried.
type RetryableFunc func(ctx context.Context) error

// DoWithRetry runs fn, retrying failures according to p until fn succeeds,
// the backoff gives up, or ctx is canceled.
// isRetryable limits which errors trigger a retry; nil makes every error retryable.
// notify, when non-nil, is called before each retry with the error and the upcoming delay.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := backoff.WithContext(p.NewBackOff(), ctx)
	op := func() error {
		err := fn(b.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, b, notify)
}

type ctxKeyPolicy struct{}

// NewContextWithPolicy creates a new context with the retry policy.
// It allows overriding the policy for a single call served by a shared client.
func NewContextWithPolicy(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, ctxKeyPolicy{}, p)
}

// PolicyFromContext extracts the retry policy from the context.
func PolicyFromContext(ctx context.Context) (Policy, bool) {
	p, ok := ctx.Value(ctxKeyPolicy{}).(Policy)
	return p, ok
}
