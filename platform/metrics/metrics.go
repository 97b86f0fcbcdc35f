// Package metrics exposes Prometheus instruments for the deal engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultApplied  = "applied"
	ResultReplayed = "replayed"
	ResultNoOp     = "noop"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// DealMetrics groups the counters recorded while applying inbound events.
type DealMetrics struct {
	eventsProcessed      *prometheus.CounterVec
	eventDuration        *prometheus.HistogramVec
	dealsCreated         prometheus.Counter
	autoClosed           prometheus.Counter
	idempotencyConflicts prometheus.Counter
	dedupeRetries        prometheus.Counter
}

// NewDealMetrics registers the deal instruments on registerer.
// A nil registerer creates a private registry, which keeps tests isolated.
func NewDealMetrics(registerer prometheus.Registerer) *DealMetrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	m := &DealMetrics{
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deals",
			Name:      "events_processed_total",
			Help:      "Inbound lifecycle events by type and result.",
		}, []string{"event", "result"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deals",
			Name:      "event_duration_seconds",
			Help:      "Time spent applying an inbound lifecycle event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		dealsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deals",
			Name:      "created_total",
			Help:      "Deals created from quote activity.",
		}),
		autoClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deals",
			Name:      "auto_closed_total",
			Help:      "Deals closed by the contact cadence policy.",
		}),
		idempotencyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deals",
			Name:      "idempotency_conflicts_total",
			Help:      "Idempotency keys reused with a different payload.",
		}),
		dedupeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deals",
			Name:      "dedupe_retries_total",
			Help:      "Deal creations retried after losing a concurrent create race.",
		}),
	}

	registerer.MustRegister(
		m.eventsProcessed,
		m.eventDuration,
		m.dealsCreated,
		m.autoClosed,
		m.idempotencyConflicts,
		m.dedupeRetries,
	)
	return m
}

func (m *DealMetrics) ObserveEvent(event, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(event, result).Inc()
	m.eventDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

func (m *DealMetrics) DealCreated() {
	if m == nil {
		return
	}
	m.dealsCreated.Inc()
}

func (m *DealMetrics) AutoClosed() {
	if m == nil {
		return
	}
	m.autoClosed.Inc()
}

func (m *DealMetrics) IdempotencyConflict() {
	if m == nil {
		return
	}
	m.idempotencyConflicts.Inc()
}

func (m *DealMetrics) DedupeRetry() {
	if m == nil {
		return
	}
	m.dedupeRetries.Inc()
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
