// Package metrics holds the Prometheus collectors the engine exports on /metrics.
// Every method is safe on a nil *Metrics so components can run without it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carwash"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	jobTransitions  *prometheus.CounterVec
	payments        *prometheus.CounterVec
	paymentAmount   *prometheus.CounterVec
	mpesaCallbacks  *prometheus.CounterVec
	bayConflicts    prometheus.Counter
	breakerState    *prometheus.GaugeVec
	workerJobs      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDurationSec *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.jobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_transitions_total",
		Help:      "Job status transitions, by target status.",
	}, []string{"to"})
	m.payments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_total",
		Help:      "Payments written, by method and resulting status.",
	}, []string{"method", "status"})
	m.paymentAmount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_amount_total",
		Help:      "Settled payment amount, by method.",
	}, []string{"method"})
	m.mpesaCallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mpesa_callbacks_total",
		Help:      "Gateway callbacks processed, by outcome.",
	}, []string{"outcome"})
	m.bayConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bay_conflicts_total",
		Help:      "Bay assignments rejected because the bay was not available.",
	})
	m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
	}, []string{"name"})
	m.workerJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_jobs_total",
		Help:      "Background jobs processed, by queue and outcome.",
	}, []string{"queue", "outcome"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "route", "status"})
	m.httpDurationSec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobTransitions, m.payments, m.paymentAmount, m.mpesaCallbacks,
		m.bayConflicts, m.breakerState, m.workerJobs,
		m.httpRequests, m.httpDurationSec,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (tests).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) JobTransition(to string) {
	if m == nil {
		return
	}
	m.jobTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) Payment(method, status string, amount float64) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method, status).Inc()
	if amount > 0 {
		m.paymentAmount.WithLabelValues(method).Add(amount)
	}
}

func (m *Metrics) MpesaCallback(outcome string) {
	if m == nil {
		return
	}
	m.mpesaCallbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BayConflict() {
	if m == nil {
		return
	}
	m.bayConflicts.Inc()
}

// BreakerState records a breaker state as its numeric code.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) WorkerJob(queue, outcome string) {
	if m == nil {
		return
	}
	m.workerJobs.WithLabelValues(queue, outcome).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDurationSec.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
