// Package metrics holds the Prometheus collectors of the identity backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors.
type Metrics struct {
	// AuthAttempts counts signup, token, refresh and logout calls.
	AuthAttempts *prometheus.CounterVec
	// GuardDecisions counts access decisions by route and outcome.
	GuardDecisions *prometheus.CounterVec
	// ProfileLookups counts profile store reads by result.
	ProfileLookups *prometheus.CounterVec
	// ProfileCache counts cached resolver hits and misses.
	ProfileCache *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_auth_attempts_total",
				Help: "Total number of authentication operations",
			},
			[]string{"op", "outcome"},
		),
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_guard_decisions_total",
				Help: "Total number of access guard decisions",
			},
			[]string{"route", "outcome"},
		),
		ProfileLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_profile_lookups_total",
				Help: "Total number of profile store lookups",
			},
			[]string{"result"},
		),
		ProfileCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_profile_cache_total",
				Help: "Profile cache hits and misses",
			},
			[]string{"result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studio_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}
}

// RecordAuth counts one auth operation.
func (m *Metrics) RecordAuth(op, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(op, outcome).Inc()
}

// RecordDecision counts one guard decision.
func (m *Metrics) RecordDecision(route, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(route, outcome).Inc()
}

// RecordLookup counts one profile lookup: "found", "missing" or "error".
func (m *Metrics) RecordLookup(result string) {
	if m == nil {
		return
	}
	m.ProfileLookups.WithLabelValues(result).Inc()
}

// RecordCache counts one cached resolver access.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ProfileCache.WithLabelValues(result).Inc()
}

// RecordRequest counts one HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
