package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	// Registering the same names twice must panic via MustRegister.
	assert.Panics(t, func() {
		NewMetrics(registry)
	})
}

func TestObserveDecision(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveDecision("update", "product", true, "")
	metrics.ObserveDecision("delete", "product", false, "missing permission")
	metrics.ObserveDecision("delete", "product", false, "missing permission")

	allowed := testutil.ToFloat64(metrics.AuthzChecksTotal.WithLabelValues("update", "product", "true"))
	assert.Equal(t, float64(1), allowed)

	denied := testutil.ToFloat64(metrics.AuthzChecksTotal.WithLabelValues("delete", "product", "false"))
	assert.Equal(t, float64(2), denied)

	denials := testutil.ToFloat64(metrics.AuthzDenialsTotal.WithLabelValues("delete", "product", "missing permission"))
	assert.Equal(t, float64(2), denials)

	// An allowed check must not produce a denial counter entry.
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.AuthzDenialsTotal))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/organizations/{org_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	// Two different org IDs should collapse into one route template label.
	for _, path := range []string{"/organizations/1", "/organizations/2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/organizations/{org_id}", "404"))
	assert.Equal(t, float64(2), count)
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.ObserveDecision("read", "catalog", true, "")

	router := mux.NewRouter()
	RegisterMetricsEndpoint(router, registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "platemill_authz_checks_total")
}
