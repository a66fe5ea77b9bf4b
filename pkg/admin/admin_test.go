package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bactalk/bacstack/pkg/config"
)

func newTestServer(t *testing.T, cfg config.MetricsConfig) http.Handler {
	t.Helper()
	s := New(cfg, nil, prometheus.NewRegistry())
	return s.httpSrv.Handler
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, config.MetricsConfig{Port: 9090})

	for _, path := range []string{"/health", "/health/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "bacstack_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(config.MetricsConfig{Port: 9090}, nil, reg)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bacstack_test_total 1")
}

func TestBasicAuth(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	h := newTestServer(t, config.MetricsConfig{
		Port:             9090,
		AuthUsername:     "ops",
		AuthPasswordHash: hash,
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.SetBasicAuth("ops", "swordfish")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("correct credentials accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.SetBasicAuth("ops", "hunter2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestPprofIndex(t *testing.T) {
	h := newTestServer(t, config.MetricsConfig{Port: 9090})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
