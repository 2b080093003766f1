package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"frontdesk/internal/guard"
	"frontdesk/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inflight  prometheus.Gauge
	outcomes  *prometheus.CounterVec
	decisions *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg gets a private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frontdesk_http_inflight_requests",
			Help: "Requests being served.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_auth_outcomes_total",
			Help: "Sign-up, sign-in and sign-out results.",
		}, []string{"operation", "outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_guard_decisions_total",
			Help: "Route guard decisions by section.",
		}, []string{"section", "decision"}),
	}
	reg.MustRegister(m.requests, m.duration, m.inflight, m.outcomes, m.decisions)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) authOutcome(operation string, err error) {
	m.outcomes.WithLabelValues(operation, outcomeOf(err)).Inc()
}

func (m *Metrics) guardDecision(section string, state guard.State) {
	m.decisions.WithLabelValues(section, state.String()).Inc()
}

func outcomeOf(err error) string {
	var (
		validationErr *models.ValidationError
		banErr        *models.BanError
		authErr       *models.AuthError
		lookupErr     *models.LookupError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validationErr):
		return "invalid"
	case errors.As(err, &banErr):
		return "suspended"
	case errors.As(err, &authErr):
		return "rejected"
	case errors.As(err, &lookupErr):
		return "unavailable"
	default:
		return "error"
	}
}
