// Package metrics exposes Prometheus collectors for the KPI pipeline and HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
)

// Metrics holds all application metrics.
type Metrics struct {
	Responses        *prometheus.CounterVec
	ResponseDuration *prometheus.HistogramVec
	Fetches          *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

var _ kpi.Recorder = (*Metrics)(nil)

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_responses_total",
			Help: "KPI snapshots served by location and overall availability",
		}, []string{"location", "availability"}),
		ResponseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kpi_response_duration_seconds",
			Help:    "Time to compute a KPI snapshot",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"location"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_source_fetches_total",
			Help: "Data source fetches by alias and result",
		}, []string{"alias", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kpi_source_fetch_duration_seconds",
			Help:    "Data source fetch latency",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"alias"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Responses,
		m.ResponseDuration,
		m.Fetches,
		m.FetchDuration,
		m.BreakerState,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// ObserveResponse implements kpi.Recorder.
func (m *Metrics) ObserveResponse(loc kpi.Location, availability kpi.AvailabilityStatus, elapsed time.Duration) {
	m.Responses.WithLabelValues(string(loc), string(availability)).Inc()
	m.ResponseDuration.WithLabelValues(string(loc)).Observe(elapsed.Seconds())
}

// ObserveFetch implements kpi.Recorder.
func (m *Metrics) ObserveFetch(alias string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Fetches.WithLabelValues(alias, result).Inc()
	m.FetchDuration.WithLabelValues(alias).Observe(elapsed.Seconds())
}

// ObserveBreaker records a circuit breaker transition.
func (m *Metrics) ObserveBreaker(name string, _, to gobreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus HTTP handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
