// Package metrics holds the Prometheus collectors for board activity.
//
// Collectors live on their own registry so tests can create as many Metrics
// as they like without duplicate-registration panics. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memeboard"

// Login results.
const (
	LoginStarted      = "started"
	LoginSucceeded    = "succeeded"
	LoginInvalidCode  = "invalid_code"
	LoginProviderFail = "provider_error"
)

// Metrics groups every collector the service records into.
type Metrics struct {
	registry *prometheus.Registry

	memesCreated         prometheus.Counter
	interactions         *prometheus.CounterVec
	duplicates           *prometheus.CounterVec
	logins               *prometheus.CounterVec
	handleAllocations    *prometheus.CounterVec
	httpRequestDurations *prometheus.HistogramVec
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// memesCreated counts memes posted.
		memesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memes_created_total",
			Help:      "Total memes created",
		}),

		// interactions counts recorded ledger entries.
		// Labels: type (refute, refine, praise)
		interactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Total interactions recorded by type",
		}, []string{"type"}),

		// duplicates counts interactions rejected by the uniqueness rule.
		// Labels: type
		duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_duplicate_total",
			Help:      "Total interactions rejected as duplicates by type",
		}, []string{"type"}),

		// logins counts login steps by outcome.
		// Labels: result (started, succeeded, invalid_code, provider_error)
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Total login attempts by result",
		}, []string{"result"}),

		// handleAllocations counts generated handles.
		// Labels: result (assigned, exhausted)
		handleAllocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handle_allocations_total",
			Help:      "Total generated handle allocations by result",
		}, []string{"result"}),

		// httpRequestDurations measures request latency.
		// Labels: method, route, status
		httpRequestDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) MemeCreated() {
	if m == nil {
		return
	}
	m.memesCreated.Inc()
}

func (m *Metrics) InteractionRecorded(typ string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(typ).Inc()
}

func (m *Metrics) InteractionDuplicate(typ string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(typ).Inc()
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// HandleAllocated records a generated handle; ok is false on exhaustion.
func (m *Metrics) HandleAllocated(ok bool) {
	if m == nil {
		return
	}
	result := "assigned"
	if !ok {
		result = "exhausted"
	}
	m.handleAllocations.WithLabelValues(result).Inc()
}

// ObserveRequest records one HTTP request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestDurations.WithLabelValues(method, route, statusClass(status)).Observe(seconds)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
