package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sign-in and linking metrics
	LoginsTotal  *prometheus.CounterVec
	LinkingTotal *prometheus.CounterVec

	// Token lifecycle metrics
	TokenOperationsTotal *prometheus.CounterVec
	TokensSweptTotal     prometheus.Counter

	// Registry metrics
	RevisionConflictsTotal *prometheus.CounterVec
	UsersTotal             *prometheus.GaugeVec

	// Session metrics
	SessionWritesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firn_auth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "firn_auth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firn_auth_logins_total",
				Help: "Total number of sign-in attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		LinkingTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firn_auth_linking_total",
				Help: "Total number of secondary-identity link attempts by outcome",
			},
			[]string{"outcome"},
		),

		TokenOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firn_auth_token_operations_total",
				Help: "Total number of token operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		TokensSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "firn_auth_tokens_swept_total",
				Help: "Total number of expired token records removed by the sweeper",
			},
		),

		RevisionConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firn_auth_revision_conflicts_total",
				Help: "Total number of document writes lost to a revision race",
			},
			[]string{"operation"},
		),
		UsersTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "firn_auth_users_total",
				Help: "Number of user records by access state",
			},
			[]string{"state"},
		),

		SessionWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firn_auth_session_writes_total",
				Help: "Total number of session store writes by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.LinkingTotal,
		m.TokenOperationsTotal,
		m.TokensSweptTotal,
		m.RevisionConflictsTotal,
		m.UsersTotal,
		m.SessionWritesTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
