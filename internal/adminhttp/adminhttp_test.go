package adminhttp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chim331u/mediabutler/internal/adminhttp"
)

type fakeQueue struct{ running bool }

func (f fakeQueue) Running() bool { return f.running }

type fakeBatch struct{ progress []adminhttp.BatchProgressView }

func (f fakeBatch) List() []adminhttp.BatchProgressView { return f.progress }

type fakeRescanner struct{ calls int }

func (f *fakeRescanner) ScanOnce(_ context.Context) { f.calls++ }

func TestHealthzAlwaysOK(t *testing.T) {
	h := adminhttp.NewRouter(adminhttp.Config{Log: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsQueueState(t *testing.T) {
	h := adminhttp.NewRouter(adminhttp.Config{Queue: fakeQueue{running: false}, Log: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h = adminhttp.NewRouter(adminhttp.Config{Queue: fakeQueue{running: true}, Log: zerolog.Nop()})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzWithoutQueueIsNotReady(t *testing.T) {
	h := adminhttp.NewRouter(adminhttp.Config{Log: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsServedWhenRegistrySet(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := adminhttp.NewRouter(adminhttp.Config{MetricsRegistry: reg, Log: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsNotFoundWithoutRegistry(t *testing.T) {
	h := adminhttp.NewRouter(adminhttp.Config{Log: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusReportsQueueAndBatchState(t *testing.T) {
	h := adminhttp.NewRouter(adminhttp.Config{
		Queue: fakeQueue{running: true},
		Batch: fakeBatch{progress: []adminhttp.BatchProgressView{{JobID: "b1", Status: "RUNNING", Total: 3, Completed: 1}}},
		Log:   zerolog.Nop(),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		WorkerPoolRunning bool                            `json:"worker_pool_running"`
		Batches           []adminhttp.BatchProgressView   `json:"batches"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.WorkerPoolRunning)
	require.Len(t, body.Batches, 1)
	assert.Equal(t, "b1", body.Batches[0].JobID)
}

func TestRescanTriggersScanAndIsRateLimited(t *testing.T) {
	rescanner := &fakeRescanner{}
	h := adminhttp.NewRouter(adminhttp.Config{Rescanner: rescanner, RescanRPS: 2, Log: zerolog.Nop()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/status/rescan", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, rescanner.calls)

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/status/rescan", nil)
	req2.RemoteAddr = "10.0.0.1:5555"
	h.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusAccepted, rec2.Code)

	rec3 := httptest.NewRecorder()
	req3 := httptest.NewRequest(http.MethodPost, "/status/rescan", nil)
	req3.RemoteAddr = "10.0.0.1:5555"
	h.ServeHTTP(rec3, req3)
	assert.Equal(t, http.StatusTooManyRequests, rec3.Code)
}

func TestRescanWithoutRescannerIsUnavailable(t *testing.T) {
	h := adminhttp.NewRouter(adminhttp.Config{Log: zerolog.Nop()})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/status/rescan", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
