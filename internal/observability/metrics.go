package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway-level Prometheus metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	activeRequests   *prometheus.GaugeVec
	admissionTotal   *prometheus.CounterVec
	fanoutBranches   *prometheus.CounterVec
	enrichIDsTotal   prometheus.Counter
	enrichTruncated  prometheus.Counter
	enrichDegraded   prometheus.Counter
	startTime        prometheus.Gauge
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "bffgw"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method", "route", "status"},
	)

	m.activeRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of active HTTP requests",
		},
		[]string{"method"},
	)

	m.admissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Total number of rate limit admission decisions",
		},
		[]string{"class", "decision"},
	)

	m.fanoutBranches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_branches_total",
			Help:      "Total number of fan-out branch completions",
		},
		[]string{"branch", "outcome"},
	)

	m.enrichIDsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_reference_ids_total",
			Help:      "Total number of reference ids collected during enrichment",
		},
	)

	m.enrichTruncated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_truncations_total",
			Help:      "Total number of enrichment passes truncated by the id cap",
		},
	)

	m.enrichDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_degraded_total",
			Help:      "Total number of enrichment passes that fell back to defaults",
		},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the gateway in unix seconds",
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.admissionTotal,
		m.fanoutBranches,
		m.enrichIDsTotal,
		m.enrichTruncated,
		m.enrichDegraded,
		m.startTime,
	)

	m.startTime.SetToCurrentTime()

	return m
}

// Handler returns an HTTP handler serving the metrics registry. The
// default gatherer is included because subsystem packages (circuit
// breaker, cache) register their collectors through promauto, which uses
// the global registry.
func (m *Metrics) Handler() http.Handler {
	gatherers := prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, route, code).Inc()
	m.requestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
}

// IncActiveRequests increments the active request gauge.
func (m *Metrics) IncActiveRequests(method string) {
	m.activeRequests.WithLabelValues(method).Inc()
}

// DecActiveRequests decrements the active request gauge.
func (m *Metrics) DecActiveRequests(method string) {
	m.activeRequests.WithLabelValues(method).Dec()
}

// RecordAdmission records a rate limit admission decision.
func (m *Metrics) RecordAdmission(class string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.admissionTotal.WithLabelValues(class, decision).Inc()
}

// RecordFanoutBranch records a fan-out branch completion.
func (m *Metrics) RecordFanoutBranch(branch, outcome string) {
	m.fanoutBranches.WithLabelValues(branch, outcome).Inc()
}

// RecordEnrichment records the number of ids collected by an enrichment pass.
func (m *Metrics) RecordEnrichment(ids int, truncated bool) {
	m.enrichIDsTotal.Add(float64(ids))
	if truncated {
		m.enrichTruncated.Inc()
	}
}

// RecordEnrichmentDegraded records an enrichment pass that used defaults only.
func (m *Metrics) RecordEnrichmentDegraded() {
	m.enrichDegraded.Inc()
}
