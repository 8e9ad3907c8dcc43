/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsLabelPriority = "priority"

const (
	metricsValYes = "yes"
	metricsValNo  = "no"
)

// DefaultAcquireWaitBuckets is default buckets into which observations of waiting for a slot are counted.
var DefaultAcquireWaitBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// MetricsCollector represents a collector of metrics to analyze how the limiter is used.
type MetricsCollector interface {
	// IncGrantedSlots increments the counter of granted slots.
	IncGrantedSlots(priority Priority)

	// ObserveAcquireWait observes the time an acquirer waited for a slot before it was granted.
	ObserveAcquireWait(priority Priority, waitTime time.Duration)

	// IncAcquireTimeouts increments the counter of acquire calls that gave up waiting.
	IncAcquireTimeouts(priority Priority)

	// IncReclaimedSlots increments the counter of slots that were acquired
	// but never released and had to be reclaimed.
	IncReclaimedSlots(priority Priority)

	// IncLimitReductions increments the counter of temporary limit reductions.
	// Debounced (skipped) reductions are counted separately.
	IncLimitReductions(debounced bool)

	// SetEffectiveLimit sets the current effective admission limit.
	SetEffectiveLimit(limit int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// AcquireWaitBuckets is a list of buckets into which observations
	// of waiting for a slot are counted.
	AcquireWaitBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for the limiter.
type PrometheusMetrics struct {
	GrantedSlots      *prometheus.CounterVec
	AcquireWaitTime   *prometheus.HistogramVec
	AcquireTimeouts   *prometheus.CounterVec
	ReclaimedSlots    *prometheus.CounterVec
	LimitReductions   *prometheus.CounterVec
	EffectiveLimitVal *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	makeLabelNames := func(names ...string) []string {
		return append(append(make([]string, 0, len(opts.CurriedLabelNames)+len(names)),
			opts.CurriedLabelNames...), names...)
	}

	waitBuckets := opts.AcquireWaitBuckets
	if waitBuckets == nil {
		waitBuckets = DefaultAcquireWaitBuckets
	}

	grantedSlots := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "slot_limit_granted_slots_total",
			Help:        "Number of granted slots.",
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(metricsLabelPriority),
	)

	acquireWaitTime := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "slot_limit_acquire_wait_seconds",
			Help:        "A histogram of the times acquirers waited for a slot.",
			Buckets:     waitBuckets,
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(metricsLabelPriority),
	)

	acquireTimeouts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "slot_limit_acquire_timeouts_total",
			Help:        "Number of acquire calls that gave up waiting for a slot.",
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(metricsLabelPriority),
	)

	reclaimedSlots := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "slot_limit_reclaimed_slots_total",
			Help:        "Number of slots that were acquired but never released and had to be reclaimed.",
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(metricsLabelPriority),
	)

	limitReductions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "slot_limit_reductions_total",
			Help:        "Number of temporary limit reductions, including the debounced ones.",
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames("debounced"),
	)

	effectiveLimit := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "slot_limit_effective_limit",
			Help:        "Current effective admission limit.",
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(),
	)

	return &PrometheusMetrics{
		GrantedSlots:      grantedSlots,
		AcquireWaitTime:   acquireWaitTime,
		AcquireTimeouts:   acquireTimeouts,
		ReclaimedSlots:    reclaimedSlots,
		LimitReductions:   limitReductions,
		EffectiveLimitVal: effectiveLimit,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		GrantedSlots:      pm.GrantedSlots.MustCurryWith(labels),
		AcquireWaitTime:   pm.AcquireWaitTime.MustCurryWith(labels).(*prometheus.HistogramVec),
		AcquireTimeouts:   pm.AcquireTimeouts.MustCurryWith(labels),
		ReclaimedSlots:    pm.ReclaimedSlots.MustCurryWith(labels),
		LimitReductions:   pm.LimitReductions.MustCurryWith(labels),
		EffectiveLimitVal: pm.EffectiveLimitVal.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.GrantedSlots,
		pm.AcquireWaitTime,
		pm.AcquireTimeouts,
		pm.ReclaimedSlots,
		pm.LimitReductions,
		pm.EffectiveLimitVal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.GrantedSlots)
	prometheus.Unregister(pm.AcquireWaitTime)
	prometheus.Unregister(pm.AcquireTimeouts)
	prometheus.Unregister(pm.ReclaimedSlots)
	prometheus.Unregister(pm.LimitReductions)
	prometheus.Unregister(pm.EffectiveLimitVal)
}

// IncGrantedSlots increments the counter of granted slots.
func (pm *PrometheusMetrics) IncGrantedSlots(priority Priority) {
	pm.GrantedSlots.With(prometheus.Labels{metricsLabelPriority: string(priority)}).Inc()
}

// ObserveAcquireWait observes the time an acquirer waited for a slot before it was granted.
func (pm *PrometheusMetrics) ObserveAcquireWait(priority Priority, waitTime time.Duration) {
	pm.AcquireWaitTime.With(prometheus.Labels{metricsLabelPriority: string(priority)}).Observe(waitTime.Seconds())
}

// IncAcquireTimeouts increments the counter of acquire calls that gave up waiting.
func (pm *PrometheusMetrics) IncAcquireTimeouts(priority Priority) {
	pm.AcquireTimeouts.With(prometheus.Labels{metricsLabelPriority: string(priority)}).Inc()
}

// IncReclaimedSlots increments the counter of slots that were acquired
// but never released and had to be reclaimed.
func (pm *PrometheusMetrics) IncReclaimedSlots(priority Priority) {
	pm.ReclaimedSlots.With(prometheus.Labels{metricsLabelPriority: string(priority)}).Inc()
}

// IncLimitReductions increments the counter of temporary limit reductions.
func (pm *PrometheusMetrics) IncLimitReductions(debounced bool) {
	debouncedVal := metricsValNo
	if debounced {
		debouncedVal = metricsValYes
	}
	pm.LimitReductions.With(prometheus.Labels{"debounced": debouncedVal}).Inc()
}

// SetEffectiveLimit sets the current effective admission limit.
func (pm *PrometheusMetrics) SetEffectiveLimit(limit int) {
	pm.EffectiveLimitVal.With(nil).Set(float64(limit))
}

type disabledMetrics struct{}

func (disabledMetrics) IncGrantedSlots(Priority)                   {}
func (disabledMetrics) ObserveAcquireWait(Priority, time.Duration) {}
func (disabledMetrics) IncAcquireTimeouts(Priority)                {}
func (disabledMetrics) IncReclaimedSlots(Priority)                 {}
func (disabledMetrics) IncLimitReductions(bool)                    {}
func (disabledMetrics) SetEffectiveLimit(int)                      {}
