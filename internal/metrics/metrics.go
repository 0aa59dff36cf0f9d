// Package metrics exposes Prometheus collectors for the sale service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "licensesale"

// Metrics holds the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transactions   *prometheus.CounterVec
	txDuration     *prometheus.HistogramVec
	claims         *prometheus.CounterVec
	licenses       *prometheus.CounterVec
	commitFailures *prometheus.CounterVec
	rpcRequests    *prometheus.CounterVec
	rateLimited    prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry,
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Executed state transactions by name and result.",
		}, []string{"tx", "result"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Time spent executing a state transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"tx"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claims by sale mode and outcome code.",
		}, []string{"mode", "code"}),
		licenses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licenses_issued_total",
			Help:      "Licenses issued by sale mode.",
		}, []string{"mode"}),
		commitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_failures_total",
			Help:      "Failures persisting or publishing committed transactions.",
		}, []string{"stage"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and error code (0 on success).",
		}, []string{"method", "code"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transactions,
		m.txDuration,
		m.claims,
		m.licenses,
		m.commitFailures,
		m.rpcRequests,
		m.rateLimited,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTransaction records a transaction outcome and duration.
func (m *Metrics) ObserveTransaction(tx string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "committed"
	if err != nil {
		result = "reverted"
	}
	m.transactions.WithLabelValues(tx, result).Inc()
	m.txDuration.WithLabelValues(tx).Observe(elapsed.Seconds())
}

// ObserveClaim records a claim outcome. code is empty on success.
func (m *Metrics) ObserveClaim(mode, code string, issued int) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.claims.WithLabelValues(mode, code).Inc()
	if issued > 0 {
		m.licenses.WithLabelValues(mode).Add(float64(issued))
	}
}

// CommitFailed records a failure after commit. stage is "persist" or "publish".
func (m *Metrics) CommitFailed(stage string) {
	if m == nil {
		return
	}
	m.commitFailures.WithLabelValues(stage).Inc()
}

// ObserveRPC records a JSON-RPC call.
func (m *Metrics) ObserveRPC(method string, code int) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// RateLimited records a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
