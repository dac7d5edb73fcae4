// Package observability provides structured logging, Prometheus metrics, and
// health probes.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("provider", "google").Info("sign-in complete")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.LoginsTotal.WithLabelValues("google", "success").Inc()
//	metrics.TokenOperationsTotal.WithLabelValues("issue", "conflict").Inc()
//
// # Health Checks
//
// Configure health checker over any backends exposing HealthCheck:
//
//	checker := observability.NewHealthChecker(map[string]observability.Pinger{
//		"docstore": store,
//		"sessions": sessions,
//	})
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request ID and logging middleware
package observability
