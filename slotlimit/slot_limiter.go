/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-limitkit/log"
)

// Default values for SlotLimiter options.
const (
	DefaultReductionPercentage = 25
	DefaultPollInterval        = time.Millisecond * 50
	DefaultStuckSlotThreshold  = time.Minute
	DefaultAcquireTimeout      = time.Minute
)

const (
	// endedSlotRetentionPeriod determines how long a released slot still counts against
	// the effective limit. Together with the limit it approximates a sliding
	// one-second admission rate window.
	endedSlotRetentionPeriod = time.Second

	// reductionDebouncePeriod determines the minimal interval between two effective
	// limit reductions. Reduction calls within the period are skipped, so a burst
	// of throttling signals doesn't collapse the limit.
	reductionDebouncePeriod = time.Second
)

// Priority determines the order in which waiting acquirers are admitted.
type Priority string

// Admission priorities, from the most to the least urgent.
const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func validatePriority(p Priority) error {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return nil
	}
	return fmt.Errorf("unknown priority %q, should be one of [%s %s %s]",
		string(p), PriorityHigh, PriorityNormal, PriorityLow)
}

// ReleaseFunc releases a previously acquired slot. It's safe to call it multiple times,
// all calls after the first one are no-ops.
type ReleaseFunc func()

// Opts represents options for SlotLimiter.
type Opts struct {
	// ReductionPercentage is a percentage of the maximum rate by which the effective
	// limit is lowered on each temporary reduction, at least 1 slot.
	// Should be in the range [0..100]. 0 means DefaultReductionPercentage.
	ReductionPercentage int

	// PollInterval is the interval between capacity re-checks
	// while acquirers are waiting and all slots are busy.
	PollInterval time.Duration

	// StuckSlotThreshold is the time after which a slot that was acquired
	// but never released is reclaimed.
	StuckSlotThreshold time.Duration

	// DefaultAcquireTimeout is the acquire timeout used when AcquireOpts.Timeout is not set.
	DefaultAcquireTimeout time.Duration

	// Logger is used for logging limiter events. No logging by default.
	Logger log.FieldLogger

	// Metrics is a collector of the limiter metrics. Metrics are disabled by default.
	Metrics MetricsCollector
}

// AcquireOpts represents options for a single acquire call.
type AcquireOpts struct {
	// Priority determines the lane the acquirer waits in. Empty means PriorityNormal.
	Priority Priority

	// Timeout limits how long the acquirer may wait for a slot.
	// Non-positive means Opts.DefaultAcquireTimeout.
	Timeout time.Duration
}

// SlotLimiter is an in-process admission-control limiter. It limits the number
// of operations admitted per second, admits waiting acquirers in priority order,
// and supports temporary, debounced reduction of the effective limit
// (e.g. in response to a throttling signal from a server).
type SlotLimiter struct {
	pollInterval          time.Duration
	stuckSlotThreshold    time.Duration
	defaultAcquireTimeout time.Duration

	logger  log.FieldLogger
	metrics MetricsCollector

	mu      sync.Mutex
	rate    *rateController
	queues  admissionQueues
	running runningSet
	closed  bool

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a new SlotLimiter with the provided maximum admission rate
// (slots per second) and default options.
func New(maxRatePerSec int) (*SlotLimiter, error) {
	return NewWithOpts(maxRatePerSec, Opts{})
}

// MustNew is a version of New that panics on error.
func MustNew(maxRatePerSec int) *SlotLimiter {
	l, err := New(maxRatePerSec)
	if err != nil {
		panic(err)
	}
	return l
}

// NewWithOpts creates a new SlotLimiter with the provided maximum admission rate
// (slots per second) and options.
func NewWithOpts(maxRatePerSec int, opts Opts) (*SlotLimiter, error) {
	if maxRatePerSec <= 0 {
		return nil, fmt.Errorf("max rate per second should be positive, got %d", maxRatePerSec)
	}
	if opts.ReductionPercentage < 0 || opts.ReductionPercentage > 100 {
		return nil, fmt.Errorf("reduction percentage should be in the range [0..100], got %d", opts.ReductionPercentage)
	}
	if opts.PollInterval < 0 {
		return nil, fmt.Errorf("poll interval should not be negative, got %s", opts.PollInterval)
	}
	if opts.StuckSlotThreshold < 0 {
		return nil, fmt.Errorf("stuck slot threshold should not be negative, got %s", opts.StuckSlotThreshold)
	}
	if opts.DefaultAcquireTimeout < 0 {
		return nil, fmt.Errorf("default acquire timeout should not be negative, got %s", opts.DefaultAcquireTimeout)
	}

	if opts.ReductionPercentage == 0 {
		opts.ReductionPercentage = DefaultReductionPercentage
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StuckSlotThreshold == 0 {
		opts.StuckSlotThreshold = DefaultStuckSlotThreshold
	}
	if opts.DefaultAcquireTimeout == 0 {
		opts.DefaultAcquireTimeout = DefaultAcquireTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}

	l := &SlotLimiter{
		pollInterval:          opts.PollInterval,
		stuckSlotThreshold:    opts.StuckSlotThreshold,
		defaultAcquireTimeout: opts.DefaultAcquireTimeout,
		logger:                opts.Logger,
		metrics:               opts.Metrics,
		rate:                  newRateController(maxRatePerSec, opts.ReductionPercentage),
		wakeCh:                make(chan struct{}, 1),
		stopCh:                make(chan struct{}),
		doneCh:                make(chan struct{}),
	}
	l.metrics.SetEffectiveLimit(maxRatePerSec)
	go l.run()
	return l, nil
}

// MustNewWithOpts is a version of NewWithOpts that panics on error.
func MustNewWithOpts(maxRatePerSec int, opts Opts) *SlotLimiter {
	l, err := NewWithOpts(maxRatePerSec, opts)
	if err != nil {
		panic(err)
	}
	return l
}

// Acquire acquires a slot with the default options (normal priority, default timeout).
// See AcquireWithOpts for details.
func (l *SlotLimiter) Acquire(ctx context.Context) (ReleaseFunc, error) {
	return l.AcquireWithOpts(ctx, AcquireOpts{})
}

// AcquireWithOpts blocks until a slot is granted, the acquire timeout fires,
// the passed context is done, or the limiter is closed. On success it returns
// a ReleaseFunc that should be called when the admitted operation finishes.
// If the slot is not granted within the timeout, *AcquireTimeoutError is returned
// and the acquirer leaves its lane, so it cannot be granted later.
func (l *SlotLimiter) AcquireWithOpts(ctx context.Context, opts AcquireOpts) (ReleaseFunc, error) {
	priority := opts.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if err := validatePriority(priority); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = l.defaultAcquireTimeout
	}

	w := &waiter{priority: priority, enqueuedAt: time.Now(), grantCh: make(chan ReleaseFunc, 1)}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.queues.enqueue(w)
	l.mu.Unlock()
	l.wake()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case release := <-w.grantCh:
		return release, nil

	case <-timer.C:
		if release, granted := l.cancelWaiter(w); granted {
			return release, nil
		}
		l.metrics.IncAcquireTimeouts(priority)
		return nil, &AcquireTimeoutError{Priority: priority, Timeout: timeout}

	case <-ctx.Done():
		if release, granted := l.cancelWaiter(w); granted {
			release()
		}
		return nil, ctx.Err()

	case <-l.stopCh:
		if release, granted := l.cancelWaiter(w); granted {
			release()
		}
		return nil, ErrClosed
	}
}

// cancelWaiter removes the waiter from its lane. If the slot was granted before the limiter's
// mutex was taken, the grant wins: the waiter is already out of the lanes, and the release
// func is handed back to the caller to return or to call right away.
func (l *SlotLimiter) cancelWaiter(w *waiter) (release ReleaseFunc, granted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w.granted {
		return <-w.grantCh, true // the send is buffered and was done under the same mutex
	}
	l.queues.remove(w)
	return nil, false
}

// newReleaseFunc makes a release func for the granted slot. The release only marks the slot
// as ended: the slot keeps counting against the limit until it ages out of the rate window.
func (l *SlotLimiter) newReleaseFunc(s *runningSlot) ReleaseFunc {
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !s.endedAt.IsZero() {
			return
		}
		s.endedAt = time.Now()
	}
}

// ReduceLimitTemporarily lowers the effective admission limit for the given duration,
// after which the limit is fully restored to the maximum rate. The reduction amount
// is derived from Opts.ReductionPercentage, and the limit never goes below 1.
// Calls within the debounce period of the previous reduction are skipped silently;
// calls outside of it lower the limit further and replace the pending restoration.
func (l *SlotLimiter) ReduceLimitTemporarily(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("reduction duration should be positive, got %s", d)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	now := time.Now()
	if l.rate.withinDebounce(now) {
		l.logger.Info("limit reduction debounced",
			log.Duration("since_last_reduction", now.Sub(l.rate.lastReductionAt)))
		l.metrics.IncLimitReductions(true)
		return nil
	}

	l.rate.reduce(d, now, l.restoreLimit)
	l.logger.Info("limit temporarily reduced",
		log.Int("effective_limit", l.rate.current),
		log.Int("max_rate", l.rate.maxRate),
		log.Duration("restore_in", d))
	l.metrics.IncLimitReductions(false)
	l.metrics.SetEffectiveLimit(l.rate.current)
	return nil
}

func (l *SlotLimiter) restoreLimit(epoch int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.rate.restore(epoch) {
		return
	}
	l.logger.Info("limit restored", log.Int("effective_limit", l.rate.current))
	l.metrics.SetEffectiveLimit(l.rate.current)
}

// EffectiveLimit returns the current effective admission limit.
// It equals the maximum rate unless the limit is temporarily reduced.
func (l *SlotLimiter) EffectiveLimit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate.current
}

// Close stops the scheduling goroutine and fails all waiting acquirers with ErrClosed.
// All subsequent calls on the closed limiter fail with ErrClosed as well.
// Already returned release funcs remain safe to call.
// Close is safe to call multiple times, it returns after the scheduling goroutine exits.
func (l *SlotLimiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.doneCh
		return
	}
	l.closed = true
	l.rate.stopRestoreTimer()
	l.mu.Unlock()

	close(l.stopCh)
	<-l.doneCh
}
