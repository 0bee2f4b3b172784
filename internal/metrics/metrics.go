// Package metrics provides Prometheus instrumentation for the marketplace engine.
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
	// ListingsCreated counts listings created, partitioned by asset category.
	ListingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_listings_created_total",
		Help: "Total number of sell listings created",
	}, []string{"category"})

	// TradesTotal counts trades executed, partitioned by asset category.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_trades_total",
		Help: "Total number of trades executed",
	}, []string{"category"})

	// TradeLatency tracks end-to-end trade execution latency.
	TradeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketplace_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SettlementFailures counts external transfer executor failures.
	SettlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_settlement_failures_total",
		Help: "Trades rejected by the external transfer executor",
	})

	// OverfillRejections counts fills rejected because the requested
	// quantity exceeded the shares remaining.
	OverfillRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_overfill_rejections_total",
		Help: "Trades rejected for exceeding shares remaining",
	})

	// ListingsExpired counts listings swept to expired.
	ListingsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_listings_expired_total",
		Help: "Listings transitioned to expired by the sweep",
	})

	// ActiveListings tracks the number of currently open listings.
	ActiveListings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_active_listings",
		Help: "Number of currently open (active or partially filled) listings",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_http_request_duration_seconds",
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

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
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
