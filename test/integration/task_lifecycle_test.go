package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sukryu/stellane/internal/config"
	"github.com/sukryu/stellane/internal/events"
	"github.com/sukryu/stellane/internal/httpapi"
	"github.com/sukryu/stellane/internal/journal"
	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/recovery"
	"github.com/sukryu/stellane/internal/runtime"
	"github.com/sukryu/stellane/internal/task"
)

func init() {
	logger.Init("error", false)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.Runtime.Backend = "cross-platform"
	cfg.Runtime.Strategy = "work-stealing"
	cfg.Runtime.WorkerThreads = 4
	cfg.Runtime.MaxTasksPerLoop = 64
	cfg.Runtime.IdleTimeout = 5 * time.Millisecond
	cfg.WorkStealing.Enabled = true
	cfg.WorkStealing.StealThreshold = 1
	cfg.WorkStealing.StealInterval = time.Millisecond
	cfg.WorkStealing.MaxStealAttempts = 2
	cfg.WorkStealing.MaxTasksPerSteal = 4
	cfg.WorkStealing.MinStealInterval = time.Millisecond
	cfg.WorkStealing.MaxStealInterval = 50 * time.Millisecond
	cfg.WorkStealing.RebalanceInterval = 10 * time.Millisecond
	cfg.Affinity.Mode = "none"
	cfg.Recovery.Enabled = true
	cfg.Recovery.Path = t.TempDir()
	cfg.Recovery.MaxAttempts = 3
	cfg.Recovery.Timeout = time.Second
	cfg.Recovery.MaxRecoveryAge = time.Hour
	cfg.Recovery.RetryBackoff = 10 * time.Millisecond
	cfg.Recovery.BackoffMultiplier = 2
	cfg.Recovery.MaxRetryDelay = time.Second
	cfg.Recovery.MaxRecoveriesPerSecond = 100
	cfg.Journal.MaxFileSize = 1 << 20
	cfg.Journal.MaxFiles = 4
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

func startRuntime(t *testing.T) (*runtime.Runtime, *httpapi.Server) {
	t.Helper()
	cfg := testConfig(t)

	rt, err := runtime.Init(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	startDone := make(chan struct{})
	go func() {
		defer close(startDone)
		_ = rt.Start(ctx) // blocks until shutdown
	}()
	require.Eventually(t, rt.Running, time.Second, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		_ = rt.Stop(time.Second)
		<-startDone
	})

	bus := events.NewLocalBus()
	t.Cleanup(func() { _ = bus.Close() })

	srv := httpapi.NewServer(&cfg, rt, bus)
	srv.Start(ctx)
	t.Cleanup(srv.Stop)

	return rt, srv
}

// TestTaskLifecycle_ScheduleRunsToCompletion submits a task through the
// runtime directly and confirms it reaches StateCompleted with its result.
func TestTaskLifecycle_ScheduleRunsToCompletion(t *testing.T) {
	rt, _ := startRuntime(t)

	done := make(chan struct{})
	var result any
	tk := task.New("lifecycle-echo", func(ctx context.Context) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	require.NoError(t, tk.OnComplete(func(t *task.Task) {
		result, _ = t.TryResult()
		close(done)
	}))

	require.NoError(t, rt.Schedule(tk))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete in time")
	}

	assert.Equal(t, task.StateCompleted, tk.State())
	assert.NotNil(t, result)
}

// TestTaskLifecycle_AdminSurfaceReflectsWorkers exercises the admin HTTP
// surface end-to-end against a running runtime: worker list, pause, resume.
func TestTaskLifecycle_AdminSurfaceReflectsWorkers(t *testing.T) {
	_, srv := startRuntime(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/workers", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listBody struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listBody))
	assert.Equal(t, 4, listBody.Count)

	pauseReq := httptest.NewRequest(http.MethodPost, "/admin/workers/0/pause", nil)
	pauseW := httptest.NewRecorder()
	srv.ServeHTTP(pauseW, pauseReq)
	assert.Equal(t, http.StatusOK, pauseW.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/admin/workers/0", nil)
	getW := httptest.NewRecorder()
	srv.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)

	var worker struct {
		Paused bool
	}
	require.NoError(t, json.Unmarshal(getW.Body.Bytes(), &worker))
	assert.True(t, worker.Paused)

	resumeReq := httptest.NewRequest(http.MethodPost, "/admin/workers/0/resume", nil)
	resumeW := httptest.NewRecorder()
	srv.ServeHTTP(resumeW, resumeReq)
	assert.Equal(t, http.StatusOK, resumeW.Code)
}

// TestTaskLifecycle_RecoveryReplaysJournaledRequest drives a request through
// the journal and confirms a manual retry via the admin surface re-enters
// the recovery engine and invokes the registered hook, matching the
// journal/recovery/httpapi wiring end-to-end.
func TestTaskLifecycle_RecoveryReplaysJournaledRequest(t *testing.T) {
	rt, srv := startRuntime(t)

	jrnl := rt.Journal()
	require.NotNil(t, jrnl)

	id, err := jrnl.Append(journal.AppendRequest{Method: "POST", Path: "/demo", Body: []byte(`{}`)})
	require.NoError(t, err)
	require.NoError(t, jrnl.MarkInFlight(id))

	replayed := make(chan string, 1)
	require.NoError(t, rt.OnRecover(func(ctx context.Context, req *recovery.RecoveredRequest) error {
		replayed <- req.JournalID
		return nil
	}))

	body, err := json.Marshal(map[string]string{"id": id})
	require.NoError(t, err)

	retryReq := httptest.NewRequest(http.MethodPost, "/admin/journal/retry", bytes.NewReader(body))
	retryReq.Header.Set("Content-Type", "application/json")
	retryW := httptest.NewRecorder()
	srv.ServeHTTP(retryW, retryReq)
	assert.Equal(t, http.StatusOK, retryW.Code)

	select {
	case gotID := <-replayed:
		assert.Equal(t, id, gotID)
	case <-time.After(2 * time.Second):
		t.Fatal("recovery hook was not invoked after manual retry")
	}
}
