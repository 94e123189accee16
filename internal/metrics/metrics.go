// Package metrics exposes the Prometheus instruments shared across the
// service. Everything registers on the default registry and is served by
// the /metrics endpoint.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bilancio",
		Name:      "mutations_total",
		Help:      "Ledger mutations by entity, operation and outcome.",
	}, []string{"entity", "op", "status"})

	reloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bilancio",
		Name:      "reload_duration_seconds",
		Help:      "Time to refresh a user's ledger snapshot from storage.",
		Buckets:   prometheus.DefBuckets,
	})

	reconcilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bilancio",
		Name:      "reconciles_total",
		Help:      "Completed month reconciliations.",
	})

	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bilancio",
		Name:      "exports_total",
		Help:      "Summary exports by outcome.",
	}, []string{"status"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bilancio",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bilancio",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// Mutation records one ledger mutation outcome.
func Mutation(entity, op, status string) {
	mutationsTotal.WithLabelValues(entity, op, status).Inc()
}

// ReloadTimer times one snapshot reload; call ObserveDuration when done.
func ReloadTimer() *prometheus.Timer {
	return prometheus.NewTimer(reloadDuration)
}

// Reconcile counts a completed month reconciliation.
func Reconcile() {
	reconcilesTotal.Inc()
}

// Export records one summary export attempt outcome ("ok" or "error").
func Export(status string) {
	exportsTotal.WithLabelValues(status).Inc()
}

// HTTPRequest records one served request.
func HTTPRequest(method, route string, code int, seconds float64) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}
