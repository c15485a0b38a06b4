// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridecore_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ridecore_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	RemoteCallRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridecore_remote_call_retries_total",
		Help: "Retries issued by the remote call executor.",
	}, []string{"op"})

	RemoteCallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridecore_remote_call_failures_total",
		Help: "Final remote call failures by error kind.",
	}, []string{"op", "kind"})

	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridecore_ledger_entries_total",
		Help: "Ledger entries written by entry type.",
	}, []string{"type"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridecore_settlements_total",
		Help: "Settlement outcomes by payment method and resulting status.",
	}, []string{"method", "status"})

	LedgerAuditMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ridecore_ledger_audit_mismatches",
		Help: "Wallets whose balance or running total disagreed with their entries in the last audit.",
	})

	ConnectivityOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ridecore_connectivity_online",
		Help: "1 when the backend probe last succeeded.",
	})

	RedisCommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridecore_redis_command_errors_total",
		Help: "Failed Redis commands by key family. Cache misses are not counted.",
	}, []string{"family"})
)

// Handler returns the scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
