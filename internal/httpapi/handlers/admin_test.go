package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sukryu/stellane/internal/config"
	"github.com/sukryu/stellane/internal/runtime"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.Runtime.Backend = "cross-platform"
	cfg.Runtime.Strategy = "fifo"
	cfg.Runtime.WorkerThreads = 2
	cfg.Runtime.MaxTasksPerLoop = 64
	cfg.Runtime.IdleTimeout = 10 * time.Millisecond
	cfg.Affinity.Mode = "none"
	return cfg
}

func newRunningRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.Init(testConfig(t))
	require.NoError(t, err)

	go func() { _ = rt.Start(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	t.Cleanup(func() { _ = rt.Stop(time.Second) })

	return rt
}

func withWorkerID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("workerID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestAdminHandler_ListWorkers(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	req := httptest.NewRequest(http.MethodGet, "/admin/workers", nil)
	w := httptest.NewRecorder()

	h.ListWorkers(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["count"])
}

func TestAdminHandler_GetWorker_NotFound(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	req := withWorkerID(httptest.NewRequest(http.MethodGet, "/admin/workers/99", nil), "99")
	w := httptest.NewRecorder()

	h.GetWorker(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_GetWorker_Found(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	req := withWorkerID(httptest.NewRequest(http.MethodGet, "/admin/workers/0", nil), "0")
	w := httptest.NewRecorder()

	h.GetWorker(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandler_PauseAndResumeWorker(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	pauseReq := withWorkerID(httptest.NewRequest(http.MethodPost, "/admin/workers/0/pause", nil), "0")
	pauseW := httptest.NewRecorder()
	h.PauseWorker(pauseW, pauseReq)
	assert.Equal(t, http.StatusOK, pauseW.Code)

	workers := rt.Workers()
	require.Len(t, workers, 2)
	assert.True(t, workers[0].Paused)

	resumeReq := withWorkerID(httptest.NewRequest(http.MethodPost, "/admin/workers/0/resume", nil), "0")
	resumeW := httptest.NewRecorder()
	h.ResumeWorker(resumeW, resumeReq)
	assert.Equal(t, http.StatusOK, resumeW.Code)

	workers = rt.Workers()
	assert.False(t, workers[0].Paused)
}

func TestAdminHandler_PauseWorker_InvalidID(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	req := withWorkerID(httptest.NewRequest(http.MethodPost, "/admin/workers/nope/pause", nil), "nope")
	w := httptest.NewRecorder()

	h.PauseWorker(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_GetQueues(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	req := httptest.NewRequest(http.MethodGet, "/admin/queues", nil)
	w := httptest.NewRecorder()

	h.GetQueues(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "queues")
	assert.Contains(t, body, "total_depth")
}

func TestAdminHandler_ListRecoverable_RecoveryDisabled(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	req := httptest.NewRequest(http.MethodGet, "/admin/journal/recoverable", nil)
	w := httptest.NewRecorder()

	h.ListRecoverable(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminHandler_RetryEntry_MissingID(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	req := httptest.NewRequest(http.MethodPost, "/admin/journal/retry", nil)
	w := httptest.NewRecorder()

	h.RetryEntry(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_HealthCheck_Running(t *testing.T) {
	rt := newRunningRuntime(t)
	h := NewAdminHandler(rt)

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandler_HealthCheck_NotRunning(t *testing.T) {
	rt, err := runtime.Init(testConfig(t))
	require.NoError(t, err)
	h := NewAdminHandler(rt)

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
