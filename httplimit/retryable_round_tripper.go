/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httplimit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-limitkit/log"
	"github.com/acronis/go-limitkit/retry"
	"github.com/acronis/go-limitkit/slotlimit"
)

// Default parameter values for RetryableRoundTripper.
const (
	DefaultMaxRetryAttempts                  = 10
	DefaultExponentialBackoffInitialInterval = time.Second
	DefaultExponentialBackoffMultiplier      = 2
)

// UnlimitedRetryAttempts should be used as RetryableRoundTripperOpts.MaxRetryAttempts value
// when retrying should be stopped by RetryableRoundTripperOpts.BackoffPolicy only.
const UnlimitedRetryAttempts = -1

// RetryAttemptNumberHeader is an HTTP header name that will contain the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckRetryFunc is called after each round trip and reports whether one more attempt is needed.
type CheckRetryFunc func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error)

// RetryableRoundTripper wraps another http.RoundTripper and re-sends the request
// when the response or the round trip error indicates a transient failure.
type RetryableRoundTripper struct {
	// Delegate is the wrapped round tripper that actually sends requests.
	Delegate http.RoundTripper

	// Logger is used for logging round tripper events.
	// LoggerProvider should be used instead when a context-specific logger is needed.
	Logger log.FieldLogger

	// LoggerProvider extracts a logger from the request context. Handy when the client is used
	// inside a request handler and its logs should carry request-specific fields (e.g. request ID).
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MaxRetryAttempts limits the number of retry attempts. The total number of sent requests
	// may be MaxRetryAttempts + 1 since the first request is not a retry.
	// UnlimitedRetryAttempts value means the retrying is stopped by BackoffPolicy only.
	// DefaultMaxRetryAttempts is used when the value is 0.
	MaxRetryAttempts int

	// CheckRetry is called after each round trip and reports whether one more attempt is needed.
	// DefaultCheckRetry is used by default.
	CheckRetry CheckRetryFunc

	// IgnoreRetryAfter disables honoring the Retry-After HTTP header of the response.
	// When it's true or the response carries no such header, BackoffPolicy computes the delay.
	IgnoreRetryAfter bool

	// BackoffPolicy computes the delay before the next attempt when the Retry-After header
	// is not used. It can be overridden for a single request by putting a policy
	// into the request context with retry.NewContextWithPolicy.
	// DefaultBackoffPolicy is used by default.
	BackoffPolicy retry.Policy
}

// RetryableRoundTripperOpts represents an options for RetryableRoundTripper.
// See the RetryableRoundTripper fields of the same names for details.
type RetryableRoundTripperOpts struct {
	Logger           log.FieldLogger
	LoggerProvider   func(ctx context.Context) log.FieldLogger
	MaxRetryAttempts int
	CheckRetryFunc   CheckRetryFunc
	IgnoreRetryAfter bool
	BackoffPolicy    retry.Policy
}

// NewRetryableRoundTripper returns a new instance of RetryableRoundTripper.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts creates a new instance of RetryableRoundTripper with specified options.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	if opts.MaxRetryAttempts < 0 && opts.MaxRetryAttempts != UnlimitedRetryAttempts {
		return nil, fmt.Errorf("incorrect max retry attempts")
	}
	rt := &RetryableRoundTripper{
		Delegate:         delegate,
		Logger:           opts.Logger,
		LoggerProvider:   opts.LoggerProvider,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetryFunc,
		IgnoreRetryAfter: opts.IgnoreRetryAfter,
		BackoffPolicy:    opts.BackoffPolicy,
	}
	if rt.MaxRetryAttempts == 0 {
		rt.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if rt.Logger == nil {
		rt.Logger = log.NewDisabledLogger()
	}
	if rt.CheckRetry == nil {
		rt.CheckRetry = DefaultCheckRetry
	}
	if rt.BackoffPolicy == nil {
		rt.BackoffPolicy = DefaultBackoffPolicy
	}
	return rt, nil
}

// RoundTrip sends the request and retries it until CheckRetry says to stop,
// the attempt limit is reached, or the backoff policy is exhausted.
// nolint: gocyclo
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var rewindBody func(*http.Request) error
	if req.Body != nil {
		origBody := req.Body
		defer func() {
			_ = origBody.Close() // Per RoundTripper contract.
		}()

		var err error
		if rewindBody, err = newRequestBodyRewinder(req); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}
	}

	ctx := req.Context()
	nextDelay := rt.newRetryDelayFunc(ctx)
	reqCloned := false

	var resp *http.Response
	var roundTripErr error
	for attempt := 0; ; attempt++ {
		if rewindBody != nil {
			if rewindErr := rewindBody(req); rewindErr != nil {
				if attempt == 0 {
					return nil, &RetryableRoundTripperError{Inner: rewindErr}
				}
				rt.logger(ctx).Error(fmt.Sprintf(
					"failed to rewind request body between retry attempts, %d request(s) done", attempt+1),
					log.Error(rewindErr))
				return resp, roundTripErr
			}
		}

		// The response from the previous attempt is not needed anymore.
		if resp != nil && roundTripErr == nil {
			rt.discardResponseBody(ctx, resp)
		}

		if attempt > 0 {
			if !reqCloned {
				req, reqCloned = req.Clone(ctx), true // Per RoundTripper contract.
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		}

		resp, roundTripErr = rt.Delegate.RoundTrip(req)

		retryNeeded, checkRetryErr := rt.CheckRetry(ctx, resp, roundTripErr, attempt)
		if checkRetryErr != nil {
			rt.logger(ctx).Error(fmt.Sprintf(
				"failed to check if retry is needed, %d request(s) done", attempt+1),
				log.Error(checkRetryErr))
			return resp, roundTripErr
		}
		if !retryNeeded {
			return resp, roundTripErr
		}

		if rt.MaxRetryAttempts > 0 && attempt >= rt.MaxRetryAttempts {
			rt.logger(ctx).Warnf("max retry attempts exceeded (%d), %d request(s) done",
				rt.MaxRetryAttempts, attempt+1)
			return resp, roundTripErr
		}
		delay, stop := nextDelay(resp)
		if stop {
			return resp, roundTripErr
		}

		delayTimer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			delayTimer.Stop()
			rt.logger(ctx).Warnf("context canceled (%v) while waiting for the next retry attempt, %d request(s) done",
				ctx.Err(), attempt+1)
			return resp, roundTripErr
		case <-delayTimer.C:
		}
	}
}

// retryDelayFunc tells how long to wait before the next retry attempt.
// stop is true when the backoff policy is exhausted and retrying must end.
type retryDelayFunc func(resp *http.Response) (delay time.Duration, stop bool)

func (rt *RetryableRoundTripper) newRetryDelayFunc(ctx context.Context) retryDelayFunc {
	policy := rt.BackoffPolicy
	if ctxPolicy, ok := retry.PolicyFromContext(ctx); ok {
		policy = ctxPolicy
	}
	bf := policy.NewBackOff()
	return func(resp *http.Response) (time.Duration, bool) {
		if resp != nil && !rt.IgnoreRetryAfter {
			if retryAfter, ok := parseRetryAfterFromResponse(resp); ok {
				return retryAfter, false
			}
		}
		delay := bf.NextBackOff()
		return delay, delay == backoff.Stop
	}
}

func (rt *RetryableRoundTripper) discardResponseBody(ctx context.Context, resp *http.Response) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		rt.logger(ctx).Error("failed to discard previous response body between retry attempts", log.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		rt.logger(ctx).Error("failed to close previous response body between retry attempts", log.Error(err))
	}
}

func (rt *RetryableRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.LoggerProvider != nil {
		return rt.LoggerProvider(ctx)
	}
	return rt.Logger
}

// RetryableRoundTripperError is returned in RoundTrip method of RetryableRoundTripper
// when the original request cannot be potentially retried.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return fmt.Sprintf("retryable round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry is the default function to determine if the next retry attempt is needed.
// Temporary network errors, acquire timeouts of the local slot limiter (when RetryableRoundTripper
// wraps SlotLimitingRoundTripper), 429 and 5xx responses are considered retryable.
func DefaultCheckRetry(
	ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int,
) (needRetry bool, err error) {
	if roundTripErr != nil {
		var acquireTimeoutErr *slotlimit.AcquireTimeoutError
		if errors.As(roundTripErr, &acquireTimeoutErr) {
			return true, nil
		}
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("both response and round trip error are nil")
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError, nil
}

// DefaultBackoffPolicy is a default backoff policy.
var DefaultBackoffPolicy = retry.PolicyFunc(func() backoff.BackOff {
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = DefaultExponentialBackoffInitialInterval
	bf.Multiplier = DefaultExponentialBackoffMultiplier
	bf.Reset()
	return bf
})

// CheckErrorIsTemporary reports whether the error looks transient (EOFs and temporary network errors).
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var tempErr interface{ Temporary() bool }
	return errors.As(err, &tempErr) && tempErr.Temporary()
}

// newRequestBodyRewinder prepares the request body to be sent more than once and returns
// a function that rewinds it before the next attempt. A seekable body is rewound in place,
// any other body is fully buffered in memory on the first read.
func newRequestBodyRewinder(req *http.Request) (func(*http.Request) error, error) {
	if bodySeeker, ok := req.Body.(io.ReadSeeker); ok {
		startOffset, err := bodySeeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek request body before doing first request: %w", err)
		}
		req.Body = io.NopCloser(req.Body)
		return func(r *http.Request) error {
			if _, seekErr := bodySeeker.Seek(startOffset, io.SeekStart); seekErr != nil {
				return fmt.Errorf("seek request body (offset=%d, whence=%d): %w", startOffset, io.SeekStart, seekErr)
			}
			return nil
		}, nil
	}

	bufferedBody, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read all request body before doing first request: %w", err)
	}
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(bufferedBody))
		return nil
	}, nil
}

func parseRetryAfterFromResponse(resp *http.Response) (retryAfter time.Duration, ok bool) {
	headerVal := resp.Header.Get("Retry-After")
	if headerVal == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(headerVal); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	date, err := time.Parse(time.RFC1123, headerVal)
	if err != nil {
		return 0, false
	}
	return time.Until(date), true
}
