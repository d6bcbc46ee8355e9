// Package metrics provides Prometheus instrumentation for the transfer
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
	// SettlementsTotal counts buy operations by outcome
	// (success, rejected, conflict).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_settlements_total",
		Help: "Total settlement attempts by outcome",
	}, []string{"result"})

	// SettlementConflicts counts individual transaction conflicts,
	// including ones that later succeeded on retry.
	SettlementConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfer_settlement_conflicts_total",
		Help: "Settlement transaction conflicts (pre-retry)",
	})

	// SettlementLatency tracks end-to-end buy latency including retries.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transfer_settlement_latency_seconds",
		Help:    "Settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ListingsCreated counts successfully created listings.
	ListingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfer_listings_created_total",
		Help: "Listings created",
	})

	// ListingsRetracted counts listings closed by their seller.
	ListingsRetracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfer_listings_retracted_total",
		Help: "Listings retracted by sellers",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transfer_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transfer_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

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

		// Use the raw path for the label; the route surface is small.
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
