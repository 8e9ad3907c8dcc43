/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httplimit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/acronis/go-limitkit/log"
	"github.com/acronis/go-limitkit/slotlimit"
)

// AdmissionLimitErrCode is the error code that is used in a response body
// if the request is rejected by the middleware that limits admission of HTTP requests.
const AdmissionLimitErrCode = "tooManyRequests"

// ErrCodeInternal is the error code that is used in a response body
// when an unexpected error occurs during the admission limiting.
const ErrCodeInternal = "internalError"

// Log fields for AdmissionLimit middleware.
const (
	AdmissionLimitLogFieldPriority = "admission_limit_priority"
	userAgentLogFieldKey           = "user_agent"
)

// AdmissionLimitParams contains data that relates to the admission limiting procedure
// and could be used for rejecting or handling an occurred error.
type AdmissionLimitParams struct {
	ResponseStatusCode int
	GetRetryAfter      AdmissionLimitGetRetryAfterFunc
	ErrDomain          string
	Priority           slotlimit.Priority
}

// AdmissionLimitGetRetryAfterFunc is a function that is called to get a value for Retry-After response HTTP header
// when the request is rejected by the admission limiter.
type AdmissionLimitGetRetryAfterFunc func(r *http.Request) time.Duration

// AdmissionLimitOnRejectFunc is a function that is called for rejecting HTTP request
// when a slot was not acquired within the acquire timeout.
type AdmissionLimitOnRejectFunc func(rw http.ResponseWriter, r *http.Request,
	params AdmissionLimitParams, next http.Handler, logger log.FieldLogger)

// AdmissionLimitOnErrorFunc is a function that is called in case of any error that may occur during
// the admission limiting (e.g., the request context is done or the limiter is closed).
type AdmissionLimitOnErrorFunc func(rw http.ResponseWriter, r *http.Request,
	params AdmissionLimitParams, err error, next http.Handler, logger log.FieldLogger)

type admissionLimitHandler struct {
	next           http.Handler
	limiter        *slotlimit.SlotLimiter
	getPriority    func(r *http.Request) slotlimit.Priority
	acquireTimeout time.Duration
	errDomain      string
	respStatusCode int
	getRetryAfter  AdmissionLimitGetRetryAfterFunc

	onReject AdmissionLimitOnRejectFunc
	onError  AdmissionLimitOnErrorFunc

	logger         log.FieldLogger
	loggerProvider func(ctx context.Context) log.FieldLogger
}

// AdmissionLimitOpts represents an options for the middleware to limit admission of HTTP requests.
type AdmissionLimitOpts struct {
	// Rules define how the admission priority is assigned to incoming requests.
	// The first matching rule wins; requests that match no rule are admitted
	// with slotlimit.PriorityNormal.
	Rules []PriorityRule

	// GetPriority overrides Rules and computes the admission priority for each request.
	GetPriority func(r *http.Request) slotlimit.Priority

	// AcquireTimeout is the maximum time a request may wait for a slot before it's rejected.
	// If it's 0, the default acquire timeout of the limiter is used.
	AcquireTimeout time.Duration

	// ResponseStatusCode is an HTTP status code that is used in responses for rejected requests.
	// By default, http.StatusServiceUnavailable.
	ResponseStatusCode int

	// GetRetryAfter is called to get a value for Retry-After response HTTP header for rejected requests.
	GetRetryAfter AdmissionLimitGetRetryAfterFunc

	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	OnReject AdmissionLimitOnRejectFunc
	OnError  AdmissionLimitOnErrorFunc
}

// AdmissionLimit is a middleware that gates request handling through the passed slot limiter.
// A slot is acquired before the next handler is called and released when it returns.
// Requests that don't get a slot within the acquire timeout are rejected with 503.
func AdmissionLimit(limiter *slotlimit.SlotLimiter, errDomain string) (func(next http.Handler) http.Handler, error) {
	return AdmissionLimitWithOpts(limiter, errDomain, AdmissionLimitOpts{})
}

// MustAdmissionLimit is a version of AdmissionLimit that panics on error.
func MustAdmissionLimit(limiter *slotlimit.SlotLimiter, errDomain string) func(next http.Handler) http.Handler {
	mw, err := AdmissionLimit(limiter, errDomain)
	if err != nil {
		panic(err)
	}
	return mw
}

// AdmissionLimitWithOpts is a configurable version of a middleware to limit admission of HTTP requests.
func AdmissionLimitWithOpts(
	limiter *slotlimit.SlotLimiter, errDomain string, opts AdmissionLimitOpts,
) (func(next http.Handler) http.Handler, error) {
	if limiter == nil {
		return nil, errors.New("slot limiter must not be nil")
	}
	if opts.AcquireTimeout < 0 {
		return nil, errors.New("acquire timeout must not be negative")
	}

	getPriority := opts.GetPriority
	if getPriority == nil {
		matcher, err := newPriorityMatcher(opts.Rules)
		if err != nil {
			return nil, err
		}
		getPriority = matcher.match
	}

	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusServiceUnavailable
	}

	onReject := opts.OnReject
	if onReject == nil {
		onReject = DefaultAdmissionLimitOnReject
	}
	onError := opts.OnError
	if onError == nil {
		onError = DefaultAdmissionLimitOnError
	}

	return func(next http.Handler) http.Handler {
		return &admissionLimitHandler{
			next:           next,
			limiter:        limiter,
			getPriority:    getPriority,
			acquireTimeout: opts.AcquireTimeout,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			getRetryAfter:  opts.GetRetryAfter,
			onReject:       onReject,
			onError:        onError,
			logger:         opts.Logger,
			loggerProvider: opts.LoggerProvider,
		}
	}, nil
}

// MustAdmissionLimitWithOpts is a version of AdmissionLimitWithOpts that panics on error.
func MustAdmissionLimitWithOpts(
	limiter *slotlimit.SlotLimiter, errDomain string, opts AdmissionLimitOpts,
) func(next http.Handler) http.Handler {
	mw, err := AdmissionLimitWithOpts(limiter, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *admissionLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	priority := h.getPriority(r)

	release, err := h.limiter.AcquireWithOpts(r.Context(), slotlimit.AcquireOpts{
		Priority: priority,
		Timeout:  h.acquireTimeout,
	})
	if err != nil {
		params := AdmissionLimitParams{
			ResponseStatusCode: h.respStatusCode,
			GetRetryAfter:      h.getRetryAfter,
			ErrDomain:          h.errDomain,
			Priority:           priority,
		}
		var timeoutErr *slotlimit.AcquireTimeoutError
		if errors.As(err, &timeoutErr) {
			h.onReject(rw, r, params, h.next, h.requestLogger(r))
			return
		}
		h.onError(rw, r, params, err, h.next, h.requestLogger(r))
		return
	}
	defer release()

	h.next.ServeHTTP(rw, r)
}

func (h *admissionLimitHandler) requestLogger(r *http.Request) log.FieldLogger {
	if h.loggerProvider != nil {
		return h.loggerProvider(r.Context())
	}
	return h.logger
}

// DefaultAdmissionLimitOnReject sends a 503 response with a JSON error body
// when a slot was not acquired within the acquire timeout.
func DefaultAdmissionLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params AdmissionLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(AdmissionLimitLogFieldPriority, string(params.Priority)),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	if params.GetRetryAfter != nil {
		rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(params.GetRetryAfter(r).Seconds()))))
	}
	respondError(rw, params.ResponseStatusCode,
		apiError{Domain: params.ErrDomain, Code: AdmissionLimitErrCode, Message: "Too many requests."}, logger)
}

// DefaultAdmissionLimitOnError sends a 500 response with a JSON error body in case
// when the error occurs during the admission limiting.
func DefaultAdmissionLimitOnError(
	rw http.ResponseWriter, r *http.Request, params AdmissionLimitParams, err error, next http.Handler,
	logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error(err.Error(), log.String(AdmissionLimitLogFieldPriority, string(params.Priority)))
	}
	respondError(rw, http.StatusInternalServerError,
		apiError{Domain: params.ErrDomain, Code: ErrCodeInternal, Message: "Internal error."}, logger)
}

// apiError describes an occurred error in a response body.
type apiError struct {
	Domain  string `json:"domain"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Err apiError `json:"error"`
}

// respondError sets HTTP status code in response and writes the wrapped error in body in JSON format.
// Also, it logs info (code and message) about error.
func respondError(rw http.ResponseWriter, httpStatusCode int, apiErr apiError, logger log.FieldLogger) {
	if logger != nil {
		logger.Error("error in response",
			log.String("error_code", apiErr.Code), log.String("error_message", apiErr.Message))
	}

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", "application/json")
	}

	// JSON marshaling with disabled HTML escaping.
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(apiErrorResponse{Err: apiErr}); err != nil {
		if logger != nil {
			logger.Error("error while marshaling json for response body", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(httpStatusCode)
	if _, err := rw.Write(bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
		if logger != nil {
			logger.Error("error while writing response body", log.Error(err))
		}
	}
}
