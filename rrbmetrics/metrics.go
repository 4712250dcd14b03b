// Package rrbmetrics declares the broker's Prometheus instrumentation,
// following the teacher repo's metrics package conventions: a
// namespace_subsystem_name naming scheme, one struct of collectors built
// with promauto against a caller-supplied registerer (so embedding
// applications can share a single registry instead of the global default).
package rrbmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the broker emits. Namespace is fixed to
// "rrb"; subsystem groups by participant (worker, client, publisher,
// subscriber, breaker).
type Metrics struct {
	WorkerStateTransitions *prometheus.CounterVec
	WorkerClaimMisses      *prometheus.CounterVec
	WorkerHandlerDuration  *prometheus.HistogramVec

	ClientRequestDuration *prometheus.HistogramVec
	ClientRequestsTotal   *prometheus.CounterVec

	PublisherRecipients       *prometheus.HistogramVec
	PublisherInsufficientTotal *prometheus.CounterVec

	SubscriberMessagesTotal      *prometheus.CounterVec
	SubscriberHandlerFailures    *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec
}

// New registers every collector against reg and returns the bundle. Passing
// prometheus.NewRegistry() (rather than the package-global default
// registerer) keeps repeated construction in tests collision-free.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WorkerStateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrb",
			Subsystem: "worker",
			Name:      "state_transitions_total",
			Help:      "Total worker dispatch state-machine transitions.",
		}, []string{"queue", "from", "to"}),

		WorkerClaimMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrb",
			Subsystem: "worker",
			Name:      "claim_misses_total",
			Help:      "Total LPOP claim attempts that found nothing (another worker won the race).",
		}, []string{"queue"}),

		WorkerHandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rrb",
			Subsystem: "worker",
			Name:      "handler_duration_seconds",
			Help:      "Time spent inside the user handler, per claimed request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue", "outcome"}),

		ClientRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rrb",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request() latency, enqueue to resolution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue", "outcome"}),

		ClientRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrb",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total requests issued, labeled by outcome.",
		}, []string{"queue", "outcome"}),

		PublisherRecipients: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rrb",
			Subsystem: "publisher",
			Name:      "recipients",
			Help:      "Recipient count returned by PUBLISH.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"channel"}),

		PublisherInsufficientTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrb",
			Subsystem: "publisher",
			Name:      "insufficient_recipients_total",
			Help:      "Total publishes rejected for not meeting minimumRecipients.",
		}, []string{"channel"}),

		SubscriberMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrb",
			Subsystem: "subscriber",
			Name:      "messages_total",
			Help:      "Total messages delivered to a subscriber handler.",
		}, []string{"channel"}),

		SubscriberHandlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrb",
			Subsystem: "subscriber",
			Name:      "handler_failures_total",
			Help:      "Total subscriber handler panics/errors, caught and logged.",
		}, []string{"channel"}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rrb",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per participant (0=closed, 1=open, 2=half-open).",
		}, []string{"participant"}),
	}
}
