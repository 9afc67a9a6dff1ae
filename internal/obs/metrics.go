// Package obs exposes Prometheus metrics for both servers. Protocol
// rejections fold into one user-visible failure, so the per-reason
// counters here are where the different threat classes (clock skew,
// forged issuer, replay) stay distinguishable.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letsauth_auth_requests_total",
			Help: "Authentication request issuances by result.",
		},
		[]string{"result"},
	)

	confirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letsauth_confirmations_total",
			Help: "Confirmation-token redemptions by result.",
		},
		[]string{"result"},
	)

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letsauth_verifications_total",
			Help: "Assertion verifications by result.",
		},
		[]string{"result"},
	)
)

// Init registers the metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authRequestsTotal, confirmationsTotal, verificationsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthRequest records an issuance outcome ("ok" or an error kind).
func ObserveAuthRequest(result string) {
	authRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveConfirmation records a confirmation outcome.
func ObserveConfirmation(result string) {
	confirmationsTotal.WithLabelValues(result).Inc()
}

// ObserveVerification records a verification outcome ("ok" or the
// rejection reason).
func ObserveVerification(result string) {
	verificationsTotal.WithLabelValues(result).Inc()
}

// Instrument measures request counts, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
