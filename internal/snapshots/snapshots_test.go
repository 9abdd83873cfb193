package snapshots

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ossim/backend/internal/audit"
	"ossim/backend/internal/engine"
	"ossim/backend/internal/scheduler"
	"ossim/backend/internal/storage"
)

func newRun(t *testing.T) *engine.Runner {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Hold = 0
	cfg.Seed = 11
	procs := []*scheduler.Process{
		scheduler.NewProcess(0, 1, 4, []int{1, 2}, []string{"archivo1.txt"}),
		scheduler.NewProcess(1, 2, 2, []int{3}, []string{"archivo2.txt"}),
	}
	sim, err := engine.New(cfg, engine.WithProcesses(procs...))
	require.NoError(t, err)
	return engine.NewRunner(sim, engine.RunnerConfig{}, nil)
}

func TestManagerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sm, err := NewSnapshotManager(dir)
	require.NoError(t, err)

	run := newRun(t)
	_, _, err = run.StepOnce()
	require.NoError(t, err)

	meta, err := sm.CreateSnapshot("", "after one slice", run.Snapshot(0), []string{"lab1"})
	require.NoError(t, err)
	assert.Equal(t, run.ID().String()[:8]+"-step-1", meta.Name)
	assert.Equal(t, 1, meta.Step)
	assert.NotEmpty(t, meta.Checksum)

	loaded, err := sm.LoadSnapshot(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID(), loaded.State.RunID)
	assert.Equal(t, 1, loaded.State.Step)
	assert.Equal(t, "after one slice", loaded.Description)

	// registry survives a restart
	reopened, err := NewSnapshotManager(dir)
	require.NoError(t, err)
	list := reopened.ListSnapshots(run.ID(), "lab1")
	require.Len(t, list, 1)
	assert.Equal(t, meta.ID, list[0].ID)
	assert.Empty(t, reopened.ListSnapshots(uuid.New(), ""))
	assert.Empty(t, reopened.ListSnapshots(uuid.Nil, "other"))

	require.NoError(t, reopened.TagSnapshot(meta.ID, []string{"lab1", "graded"}))
	got, err := reopened.Metadata(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lab1", "graded"}, got.Tags)

	require.NoError(t, reopened.DeleteSnapshot(meta.ID))
	_, err = reopened.LoadSnapshot(meta.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.ErrorIs(t, reopened.DeleteSnapshot(meta.ID), ErrSnapshotNotFound)
	assert.ErrorIs(t, reopened.TagSnapshot(meta.ID, nil), ErrSnapshotNotFound)
}

func TestChecksumMismatch(t *testing.T) {
	sm, err := NewSnapshotManager(t.TempDir())
	require.NoError(t, err)

	meta, err := sm.CreateSnapshot("s", "", newRun(t).Snapshot(0), nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(meta.FilePath, []byte("tampered"), 0644))
	_, err = sm.LoadSnapshot(meta.ID)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestListNewestFirst(t *testing.T) {
	sm, err := NewSnapshotManager(t.TempDir())
	require.NoError(t, err)
	run := newRun(t)

	first, err := sm.CreateSnapshot("first", "", run.Snapshot(0), nil)
	require.NoError(t, err)
	later := first.CreatedAt.Add(1)
	sm.now = func() time.Time { return later }
	second, err := sm.CreateSnapshot("second", "", run.Snapshot(0), nil)
	require.NoError(t, err)

	list := sm.ListSnapshots(uuid.Nil, "")
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func setupHandlers(t *testing.T) (*gin.Engine, *engine.Runner, *audit.AuditLogger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sm, err := NewSnapshotManager(t.TempDir())
	require.NoError(t, err)
	logger, err := audit.NewAuditLogger(audit.AuditConfig{LogPath: filepath.Join(t.TempDir(), "audit.log")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	runs := storage.NewRunRegistry(4)
	run := newRun(t)
	require.NoError(t, runs.Store(run))

	h := NewSnapshotHandlers(sm, runs, logger)
	r := gin.New()
	r.POST("/runs/:id/snapshots", h.CreateSnapshot)
	r.GET("/snapshots", h.ListSnapshots)
	r.GET("/snapshots/stats", h.GetSnapshotStats)
	r.GET("/snapshots/:id", h.GetSnapshot)
	r.DELETE("/snapshots/:id", h.DeleteSnapshot)
	r.POST("/snapshots/:id/tags", h.TagSnapshot)
	return r, run, logger
}

func request(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSnapshotHandlers(t *testing.T) {
	r, run, logger := setupHandlers(t)

	assert.Equal(t, http.StatusBadRequest, request(r, http.MethodPost, "/runs/nope/snapshots", nil).Code)
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodPost, "/runs/"+uuid.New().String()+"/snapshots", nil).Code)

	w := request(r, http.MethodPost, "/runs/"+run.ID().String()+"/snapshots", map[string]interface{}{
		"name": "baseline", "tags": []string{"week3"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var meta SnapshotMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "baseline", meta.Name)
	assert.Equal(t, run.ID(), meta.RunID)

	w = request(r, http.MethodGet, "/snapshots?q=WEEK", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Snapshots []SnapshotMetadata `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Snapshots, 1)

	w = request(r, http.MethodGet, "/snapshots?q=missing", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Snapshots)
	assert.Equal(t, http.StatusBadRequest, request(r, http.MethodGet, "/snapshots?run_id=bad", nil).Code)

	w = request(r, http.MethodGet, "/snapshots/"+meta.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, run.ID(), snap.State.RunID)

	assert.Equal(t, http.StatusOK, request(r, http.MethodPost, "/snapshots/"+meta.ID+"/tags", map[string]interface{}{"tags": []string{"x"}}).Code)

	w = request(r, http.MethodGet, "/snapshots/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_snapshots":1`)

	assert.Equal(t, http.StatusOK, request(r, http.MethodDelete, "/snapshots/"+meta.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodDelete, "/snapshots/"+meta.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodGet, "/snapshots/"+meta.ID, nil).Code)

	entries, err := logger.Query(audit.AuditFilter{Resource: "snapshot"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, audit.ActionSnapshotSaved, entries[0].Action)
	assert.Equal(t, "anonymous", entries[0].Username)
	assert.True(t, entries[1].Success)
	assert.False(t, entries[2].Success)
}
