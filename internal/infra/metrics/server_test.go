package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadinessFollowsStartup(t *testing.T) {
	health := NewHealth()
	handler := Handler(health)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	// liveness is unconditional
	assert.Equal(t, http.StatusOK, get("/healthz").Code)

	// readiness fails until the worker is fully wired
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	health.SetReady()
	assert.Equal(t, http.StatusOK, get("/readyz").Code)
}

func TestMetricsEndpointExposed(t *testing.T) {
	JobsProcessedTotal.WithLabelValues("completed")
	handler := Handler(NewHealth())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reelfx_jobs_processed_total")
}
