package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzChecksTotal   *prometheus.CounterVec
	AuthzDenialsTotal  *prometheus.CounterVec
	AuthzCheckDuration *prometheus.HistogramVec

	// Decision cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Rate limit metrics
	RateLimitedTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge

	// Business metrics
	OrganizationsTotal prometheus.Gauge
	MembershipsTotal   prometheus.Gauge
	ActiveUsersTotal   prometheus.Gauge
	APITokensActive    prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platemill_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platemill_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platemill_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platemill_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Authorization metrics
		AuthzChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platemill_authz_checks_total",
				Help: "Total number of authorization checks",
			},
			[]string{"action", "resource", "allowed"},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platemill_authz_denials_total",
				Help: "Total number of denied authorization checks",
			},
			[]string{"action", "resource", "reason"},
		),
		AuthzCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platemill_authz_check_duration_seconds",
				Help:    "Authorization check duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"action", "resource"},
		),

		// Decision cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platemill_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type", "tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platemill_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type", "tier"},
		),

		// Rate limit metrics
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platemill_rate_limited_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"scope"},
		),

		// Audit metrics
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platemill_audit_events_total",
				Help: "Total number of audit events recorded",
			},
			[]string{"event_type", "status"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),

		// Business metrics
		OrganizationsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_organizations_total",
				Help: "Total number of active organizations",
			},
		),
		MembershipsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_memberships_total",
				Help: "Total number of approved memberships",
			},
		),
		ActiveUsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_active_users_total",
				Help: "Total number of active users",
			},
		),
		APITokensActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platemill_api_tokens_active",
				Help: "Number of active API tokens",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.AuthzChecksTotal,
		m.AuthzDenialsTotal,
		m.AuthzCheckDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RateLimitedTotal,
		m.AuditEventsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsActive,
		m.OrganizationsTotal,
		m.MembershipsTotal,
		m.ActiveUsersTotal,
		m.APITokensActive,
	)

	return m
}

// ObserveDecision records the outcome of a single authorization check.
// Denials get a second counter with the refusal reason so dashboards can
// break out why requests are being refused.
func (m *Metrics) ObserveDecision(action, resource string, allowed bool, reason string) {
	m.AuthzChecksTotal.WithLabelValues(action, resource, strconv.FormatBool(allowed)).Inc()
	if !allowed {
		m.AuthzDenialsTotal.WithLabelValues(action, resource, reason).Inc()
	}
}

// CollectDBStats copies sql.DB pool stats into the database gauges. Call it
// periodically from a background goroutine.
func (m *Metrics) CollectDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// StartDBStatsCollector launches a goroutine that refreshes the database
// gauges every interval until the context is cancelled.
func (m *Metrics) StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CollectDBStats(db)
			}
		}
	}()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// metricsPath prefers the mux route template over the raw URL path so that
// /organizations/42 and /organizations/43 share one label value.
func metricsPath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := metricsPath(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(r *mux.Router, registry *prometheus.Registry) {
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
