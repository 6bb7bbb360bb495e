package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service-level Prometheus metrics. Domain packages keep
// their own metrics subpackages; these cover the consumption pipeline.
type Metrics struct {
	EventsConsumed   *prometheus.CounterVec
	EventsDuplicate  prometheus.Counter
	EventsDeadLetter *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
}

// New creates and registers the pipeline metrics.
func New() *Metrics {
	return &Metrics{
		EventsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comply_events_consumed_total",
			Help: "Total inbound compliance events consumed, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		EventsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comply_events_duplicate_total",
			Help: "Inbound events skipped by the dedup cache.",
		}),
		EventsDeadLetter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comply_events_dead_letter_total",
			Help: "Events routed to the dead-letter topic, by reason.",
		}, []string{"reason"}),
		HandlerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "comply_handler_duration_seconds",
			Help:    "Time spent in the domain handler per event, by topic.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

// RecordConsumed increments the consumed counter for a topic/outcome pair.
func (m *Metrics) RecordConsumed(topic, outcome string) {
	m.EventsConsumed.WithLabelValues(topic, outcome).Inc()
}

// RecordDeadLetter increments the dead-letter counter for a reason.
func (m *Metrics) RecordDeadLetter(reason string) {
	m.EventsDeadLetter.WithLabelValues(reason).Inc()
}

// ObserveHandlerDuration records handler latency for a topic.
func (m *Metrics) ObserveHandlerDuration(topic string, seconds float64) {
	m.HandlerDuration.WithLabelValues(topic).Observe(seconds)
}
