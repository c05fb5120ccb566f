package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "continuity"

// Metrics holds the engine counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	violations   *prometheus.CounterVec
	validations  *prometheus.CounterVec
	corrections  *prometheus.CounterVec
	updates      *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// NewMetrics registers the engine counters on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Consistency violations detected, by dimension and severity.",
		}, []string{"dimension", "severity"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validation runs, by outcome (valid, invalid, degraded, cancelled).",
		}, []string{"outcome"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_applied_total",
			Help:      "Corrections considered for application, by outcome (applied, skipped, failed).",
		}, []string{"outcome"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "universe_updates_total",
			Help:      "Universe updates, by outcome (ok, failed).",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_lookups_total",
			Help:      "Result cache lookups, by result (hit, miss).",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.violations, m.validations, m.corrections, m.updates, m.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Violation(dimension, severity string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(dimension, severity).Inc()
}

func (m *Metrics) Validation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Correction(outcome string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Update(outcome string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// UpdateCounter returns the universe update counter for one outcome.
func (m *Metrics) UpdateCounter(outcome string) prometheus.Counter {
	return m.updates.WithLabelValues(outcome)
}
