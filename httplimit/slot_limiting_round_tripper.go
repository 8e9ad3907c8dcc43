/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httplimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-limitkit/log"
	"github.com/acronis/go-limitkit/slotlimit"
)

// Default parameter values for SlotLimitingRoundTripper.
const (
	DefaultSlotLimitingReductionDuration    = 30 * time.Second
	DefaultSlotLimitingMaxReductionDuration = 5 * time.Minute
)

// SlotLimitingRoundTripperOpts represents an options for SlotLimitingRoundTripper.
type SlotLimitingRoundTripperOpts struct {
	// Priority is an admission priority with which slots are acquired for outgoing requests.
	// By default, slotlimit.PriorityNormal is used.
	Priority slotlimit.Priority

	// AcquireTimeout is the maximum time to wait for a slot before giving up on the request.
	// If it's 0, the default acquire timeout of the limiter is used.
	AcquireTimeout time.Duration

	// ReductionDuration determines for how long the slot limit is reduced
	// when the server pushes back (responds with 429 or 503) without a Retry-After header.
	// By default, DefaultSlotLimitingReductionDuration const is used.
	ReductionDuration time.Duration

	// MaxReductionDuration caps the reduction duration parsed from the Retry-After response header.
	// By default, DefaultSlotLimitingMaxReductionDuration const is used.
	MaxReductionDuration time.Duration

	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// SlotLimitingRoundTripper wraps an object that implements http.RoundTripper interface
// and gates outgoing requests through a slot limiter. A slot is acquired before the request
// is sent and released right after the response is received. When the server pushes back
// with 429 or 503, the slot limit is temporarily reduced.
type SlotLimitingRoundTripper struct {
	Delegate http.RoundTripper
	Limiter  *slotlimit.SlotLimiter

	Priority             slotlimit.Priority
	AcquireTimeout       time.Duration
	ReductionDuration    time.Duration
	MaxReductionDuration time.Duration

	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// NewSlotLimitingRoundTripper creates a new SlotLimitingRoundTripper with default options.
func NewSlotLimitingRoundTripper(
	delegate http.RoundTripper, limiter *slotlimit.SlotLimiter,
) (*SlotLimitingRoundTripper, error) {
	return NewSlotLimitingRoundTripperWithOpts(delegate, limiter, SlotLimitingRoundTripperOpts{})
}

// NewSlotLimitingRoundTripperWithOpts creates a new SlotLimitingRoundTripper with specified options.
// For options that are not presented, the default values will be used.
func NewSlotLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, limiter *slotlimit.SlotLimiter, opts SlotLimitingRoundTripperOpts,
) (*SlotLimitingRoundTripper, error) {
	if delegate == nil {
		return nil, fmt.Errorf("delegate must not be nil")
	}
	if limiter == nil {
		return nil, fmt.Errorf("slot limiter must not be nil")
	}

	if opts.Priority == "" {
		opts.Priority = slotlimit.PriorityNormal
	}
	switch opts.Priority {
	case slotlimit.PriorityHigh, slotlimit.PriorityNormal, slotlimit.PriorityLow:
	default:
		return nil, fmt.Errorf("unknown priority %q, should be one of [%s %s %s]",
			opts.Priority, slotlimit.PriorityHigh, slotlimit.PriorityNormal, slotlimit.PriorityLow)
	}

	if opts.AcquireTimeout < 0 {
		return nil, fmt.Errorf("acquire timeout must not be negative")
	}
	if opts.ReductionDuration == 0 {
		opts.ReductionDuration = DefaultSlotLimitingReductionDuration
	}
	if opts.MaxReductionDuration == 0 {
		opts.MaxReductionDuration = DefaultSlotLimitingMaxReductionDuration
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}

	return &SlotLimitingRoundTripper{
		Delegate:             delegate,
		Limiter:              limiter,
		Priority:             opts.Priority,
		AcquireTimeout:       opts.AcquireTimeout,
		ReductionDuration:    opts.ReductionDuration,
		MaxReductionDuration: opts.MaxReductionDuration,
		Logger:               opts.Logger,
		LoggerProvider:       opts.LoggerProvider,
	}, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
// The request occupies a slot of the limiter for the whole duration of the round trip.
func (rt *SlotLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	release, err := rt.Limiter.AcquireWithOpts(r.Context(), slotlimit.AcquireOpts{
		Priority: rt.Priority,
		Timeout:  rt.AcquireTimeout,
	})
	if err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, &SlotLimitingWaitError{Inner: err}
	}
	defer release()

	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		rt.reduceLimit(r.Context(), resp)
	}

	return resp, nil
}

func (rt *SlotLimitingRoundTripper) reduceLimit(ctx context.Context, resp *http.Response) {
	reduceFor := rt.ReductionDuration
	if retryAfter, ok := parseRetryAfterFromResponse(resp); ok && retryAfter > 0 {
		reduceFor = retryAfter
		if reduceFor > rt.MaxReductionDuration {
			reduceFor = rt.MaxReductionDuration
		}
	}

	logger := rt.logger(ctx)
	if err := rt.Limiter.ReduceLimitTemporarily(reduceFor); err != nil {
		logger.Warn("failed to reduce slot limit on server push-back", log.Error(err))
		return
	}
	logger.Info("slot limit reduced on server push-back",
		log.Int("status_code", resp.StatusCode),
		log.Duration("reduction_duration", reduceFor),
	)
}

func (rt *SlotLimitingRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.LoggerProvider != nil {
		return rt.LoggerProvider(ctx)
	}
	return rt.Logger
}

// SlotLimitingWaitError is returned in RoundTrip method of SlotLimitingRoundTripper
// when a slot was not acquired for the outgoing request.
type SlotLimitingWaitError struct {
	Inner error
}

func (e *SlotLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side slot limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *SlotLimitingWaitError) Unwrap() error {
	return e.Inner
}
