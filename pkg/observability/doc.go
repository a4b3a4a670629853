// Package observability provides structured logging, Prometheus metrics,
// health checks, OpenTelemetry wiring and graceful shutdown.
//
// # Structured Logging
//
// Build the shared logrus logger:
//
//	logger := observability.NewLogger(observability.LoggerConfig{Level: "info", Format: "json"})
//
// # Prometheus Metrics
//
// Initialize metrics on a private registry:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveDecision("update", "product", false, "missing permission")
//
// HTTP instrumentation labels requests with the mux route template rather
// than the raw path so identifiers do not explode label cardinality.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// The database is required for readiness. Redis only backs the decision
// cache and rate limiter, so a Redis outage reports degraded, not unhealthy.
//
// # Graceful Shutdown
//
//	manager := observability.NewShutdownManager(logger, server, 30*time.Second)
//	manager.Register("database", func(ctx context.Context) error { return db.Close() })
//	err := manager.WaitForShutdown()
package observability
