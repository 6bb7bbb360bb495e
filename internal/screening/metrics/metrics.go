package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the screening module.
type Metrics struct {
	// Per-source call latencies
	SourceLatency *prometheus.HistogramVec

	// Per-source call outcomes: result, no_result
	SourceOutcome *prometheus.CounterVec

	// Consolidated screening actions
	Actions *prometheus.CounterVec

	// Result cache hits and misses
	CacheLookups *prometheus.CounterVec

	// Overall screening latency including all source calls
	ScreenLatency prometheus.Histogram
}

// New creates a new Metrics instance with all screening module metrics registered.
func New() *Metrics {
	return &Metrics{
		SourceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "comply_screening_source_duration_seconds",
			Help:    "Duration of individual screening source calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),

		SourceOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comply_screening_source_outcomes_total",
			Help: "Screening source call outcomes by source and status",
		}, []string{"source", "status"}), // status: "result", "no_result"

		Actions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comply_screening_actions_total",
			Help: "Consolidated screening dispositions",
		}, []string{"action"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comply_screening_cache_lookups_total",
			Help: "Screening result cache lookups by outcome",
		}, []string{"outcome"}), // outcome: "hit", "miss"

		ScreenLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "comply_screening_duration_seconds",
			Help:    "Duration of full screening including all source calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveSourceLatency records the duration of one source call.
func (m *Metrics) ObserveSourceLatency(source string, d time.Duration) {
	if m != nil {
		m.SourceLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// RecordSourceOutcome records whether a source contributed a result.
func (m *Metrics) RecordSourceOutcome(source, status string) {
	if m != nil {
		m.SourceOutcome.WithLabelValues(source, status).Inc()
	}
}

// RecordAction records a consolidated disposition.
func (m *Metrics) RecordAction(action string) {
	if m != nil {
		m.Actions.WithLabelValues(action).Inc()
	}
}

// RecordCacheLookup records a result-cache hit or miss.
func (m *Metrics) RecordCacheLookup(outcome string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(outcome).Inc()
	}
}

// ObserveScreenLatency records the total screening duration.
func (m *Metrics) ObserveScreenLatency(d time.Duration) {
	if m != nil {
		m.ScreenLatency.Observe(d.Seconds())
	}
}
