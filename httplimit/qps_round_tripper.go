/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httplimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for QPSRoundTripper.
const (
	DefaultQPSLimitingBurst       = 1
	DefaultQPSLimitingWaitTimeout = 15 * time.Second
)

// QPSRoundTripperAdaptation describes how to adapt the client-side QPS limit
// to the value the server reports in a response header.
// The reported value is lowered by SlackPercent before it's applied.
type QPSRoundTripperAdaptation struct {
	ResponseHeaderName string
	SlackPercent       int
}

// QPSRoundTripperOpts represents an options for QPSRoundTripper.
type QPSRoundTripperOpts struct {
	// Burst is the maximum number of requests that may start at once.
	// DefaultQPSLimitingBurst is used when the value is 0.
	Burst int

	// WaitTimeout limits how long a request may wait for its turn.
	// DefaultQPSLimitingWaitTimeout is used when the value is 0.
	WaitTimeout time.Duration

	// Adaptation, when its ResponseHeaderName is not empty, makes the limit adaptive.
	Adaptation QPSRoundTripperAdaptation
}

// QPSRoundTripper is an http.RoundTripper that paces outgoing requests
// to the configured queries-per-second limit.
// Unlike SlotLimitingRoundTripper, it only spreads request starts in time
// and does not bound concurrency.
type QPSRoundTripper struct {
	Delegate http.RoundTripper

	pacer *rate.Limiter

	QPS         int
	Burst       int
	WaitTimeout time.Duration
	Adaptation  QPSRoundTripperAdaptation
}

// NewQPSRoundTripper creates a new QPSRoundTripper with specified queries-per-second limit.
func NewQPSRoundTripper(delegate http.RoundTripper, qps int) (*QPSRoundTripper, error) {
	return NewQPSRoundTripperWithOpts(delegate, qps, QPSRoundTripperOpts{})
}

// NewQPSRoundTripperWithOpts creates a new QPSRoundTripper with specified queries-per-second limit and options.
// For options that are not presented, the default values will be used.
func NewQPSRoundTripperWithOpts(
	delegate http.RoundTripper, qps int, opts QPSRoundTripperOpts,
) (*QPSRoundTripper, error) {
	if qps <= 0 {
		return nil, fmt.Errorf("qps limit must be positive")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst must be positive")
	}
	if opts.Adaptation.SlackPercent < 0 || opts.Adaptation.SlackPercent > 100 {
		return nil, fmt.Errorf("slack percent must be in range [0..100]")
	}

	if opts.Burst == 0 {
		opts.Burst = DefaultQPSLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultQPSLimitingWaitTimeout
	}

	return &QPSRoundTripper{
		Delegate:    delegate,
		pacer:       rate.NewLimiter(rate.Limit(qps), opts.Burst),
		QPS:         qps,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
		Adaptation:  opts.Adaptation,
	}, nil
}

// RoundTrip waits for the request's turn under the QPS limit and sends it.
func (rt *QPSRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Body != nil {
		defer func() {
			_ = r.Body.Close() // Per RoundTripper contract.
		}()
	}

	waitCtx, waitCtxCancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	defer waitCtxCancel()
	if err := rt.pacer.Wait(waitCtx); err != nil {
		// A canceled parent context is surfaced by the delegate as a usual request error.
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			return nil, &QPSWaitError{Inner: err}
		}
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err == nil && rt.Adaptation.ResponseHeaderName != "" {
		rt.adaptLimit(resp)
	}
	return resp, err
}

// adaptLimit recalculates the pacing limit after a response. A missing or malformed
// header restores the configured limit, a reported one lowers it but never raises it
// above the configured QPS.
func (rt *QPSRoundTripper) adaptLimit(resp *http.Response) {
	newLimit := rt.QPS
	if headerVal := resp.Header.Get(rt.Adaptation.ResponseHeaderName); headerVal != "" {
		if reported, err := strconv.Atoi(headerVal); err == nil && reported >= 0 {
			slacked := reported * (100 - rt.Adaptation.SlackPercent) / 100
			switch {
			case slacked == 0:
				newLimit = 1 // Send 1 request per second instead of stopping at all.
			case slacked < rt.QPS:
				newLimit = slacked
			}
		}
	}
	if rt.pacer.Limit() != rate.Limit(newLimit) {
		rt.pacer.SetLimit(rate.Limit(newLimit))
	}
}

// QPSWaitError is returned in RoundTrip method of QPSRoundTripper when the QPS limit is exceeded.
type QPSWaitError struct {
	Inner error
}

func (e *QPSWaitError) Error() string {
	return fmt.Sprintf("wait due to client side QPS limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *QPSWaitError) Unwrap() error {
	return e.Inner
}
