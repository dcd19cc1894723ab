// Package metrics provides oracle metrics collection.
// It wraps Prometheus collectors for contract polling, entropy sourcing and
// fulfillment outcomes on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fulfillment outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeReverted = "reverted"
	OutcomeFailed   = "failed"
)

// Collector provides oracle metrics collection.
type Collector struct {
	registry *prometheus.Registry

	polls            *prometheus.CounterVec
	requests         prometheus.Counter
	rolls            *prometheus.CounterVec
	entropyFallbacks *prometheus.CounterVec
	fulfillments     *prometheus.CounterVec
	fulfillLatency   prometheus.Histogram
	cycleErrors      *prometheus.CounterVec
	processing       prometheus.Gauge
}

// NewCollector creates a new oracle metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "oracle"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "polls_total",
			Help:      "Total isRolling polls by result",
		},
		[]string{"result"},
	)

	c.requests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "requests_detected_total",
			Help:      "Total polls that found a pending roll request",
		},
	)

	c.rolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entropy",
			Name:      "rolls_total",
			Help:      "Total die rolls by entropy source",
		},
		[]string{"source"},
	)

	c.entropyFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entropy",
			Name:      "fallbacks_total",
			Help:      "Total remote entropy failures by reason",
		},
		[]string{"reason"},
	)

	c.fulfillments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fulfillment",
			Name:      "total",
			Help:      "Total fulfillment attempts by outcome (success, reverted, failed)",
		},
		[]string{"outcome"},
	)

	c.fulfillLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fulfillment",
			Name:      "duration_seconds",
			Help:      "Time from nonce read to terminal receipt",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	c.cycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "cycle_errors_total",
			Help:      "Total failed relay cycles by kind",
		},
		[]string{"kind"},
	)

	c.processing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "processing",
			Help:      "1 while a roll request is being processed, 0 when idle",
		},
	)

	c.registry.MustRegister(
		c.polls,
		c.requests,
		c.rolls,
		c.entropyFallbacks,
		c.fulfillments,
		c.fulfillLatency,
		c.cycleErrors,
		c.processing,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordPoll records an isRolling poll.
func (c *Collector) RecordPoll(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.polls.WithLabelValues(result).Inc()
}

// RecordRequest records a detected roll request.
func (c *Collector) RecordRequest() {
	c.requests.Inc()
}

// RecordRoll records a die roll from source.
func (c *Collector) RecordRoll(source string) {
	c.rolls.WithLabelValues(source).Inc()
}

// RecordEntropyFallback records a remote entropy failure.
func (c *Collector) RecordEntropyFallback(reason string) {
	c.entropyFallbacks.WithLabelValues(reason).Inc()
}

// RecordFulfillment records a fulfillment outcome and latency.
func (c *Collector) RecordFulfillment(outcome string, duration time.Duration) {
	c.fulfillments.WithLabelValues(outcome).Inc()
	c.fulfillLatency.Observe(duration.Seconds())
}

// RecordCycleError records a failed relay cycle.
func (c *Collector) RecordCycleError(kind string) {
	c.cycleErrors.WithLabelValues(kind).Inc()
}

// SetProcessing records the relay state.
func (c *Collector) SetProcessing(processing bool) {
	if processing {
		c.processing.Set(1)
		return
	}
	c.processing.Set(0)
}
