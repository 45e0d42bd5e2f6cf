// Package metrics provides Prometheus instrumentation for the vending
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PurchasesTotal counts purchase attempts, partitioned by outcome.
	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vending_purchases_total",
		Help: "Total number of purchase attempts",
	}, []string{"outcome"})

	// PurchaseLatency tracks purchase execution latency in seconds.
	PurchaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vending_purchase_latency_seconds",
		Help:    "Purchase execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// DepositsTotal counts accepted coin deposits.
	DepositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vending_deposits_total",
		Help: "Total number of accepted coin deposits",
	})

	// DepositRejections counts deposits rejected for bad denominations.
	DepositRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vending_deposit_rejections_total",
		Help: "Deposits rejected due to invalid denomination",
	})

	// ReconciliationFailures counts purchases where reimbursement itself
	// failed. Any non-zero value needs operator attention.
	ReconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vending_reconciliation_failures_total",
		Help: "Purchases left inconsistent because reimbursement failed",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vending_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vending_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vending_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObservePurchase records one purchase attempt's latency and outcome.
func ObservePurchase(d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	PurchasesTotal.WithLabelValues(outcome).Inc()
	PurchaseLatency.Observe(d.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the route surface is small
		// enough that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
