// Package metrics holds the Prometheus collectors for the swap flow and the
// HTTP backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devcamp"

// Metrics owns a private registry so tests and multiple servers never collide
type Metrics struct {
	registry *prometheus.Registry

	prices       *prometheus.CounterVec
	quotes       *prometheus.CounterVec
	transactions *prometheus.CounterVec
	upstream     *prometheus.HistogramVec
	logins       *prometheus.CounterVec
	requests     *prometheus.CounterVec
	durations    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		prices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "price_responses_total",
			Help:      "Settled price requests by outcome (applied, stale, validation, error).",
		}, []string{"outcome"}),
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "quote_responses_total",
			Help:      "Settled firm quote requests by outcome.",
		}, []string{"outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "transactions_total",
			Help:      "Approval and swap transactions by final status.",
		}, []string{"kind", "status"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "request_duration_seconds",
			Help:      "Latency of proxied aggregator requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "siwe",
			Name:      "verifications_total",
			Help:      "Sign-In-With-Ethereum verifications by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served by route and status.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(m.prices, m.quotes, m.transactions, m.upstream, m.logins, m.requests, m.durations)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PriceSettled(outcome string) {
	m.prices.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QuoteSettled(outcome string) {
	m.quotes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TxSettled(kind, status string) {
	m.transactions.WithLabelValues(kind, status).Inc()
}

// ObserveUpstream records one proxied aggregator call
func (m *Metrics) ObserveUpstream(endpoint string, status int, elapsed time.Duration) {
	m.upstream.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// LoginVerified counts SIWE verifications, result is "ok" or a failure reason
func (m *Metrics) LoginVerified(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// Middleware records request counts and durations under a fixed route label
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
