package audit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T, bufferSize int) (*AuditLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	al, err := NewAuditLogger(AuditConfig{LogPath: path, BufferSize: bufferSize, FlushInterval: time.Hour}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { al.Close() })
	return al, path
}

func TestQueryFiltersEntries(t *testing.T) {
	al, _ := createTestLogger(t, 100)
	runA, runB := uuid.New(), uuid.New()

	al.LogLogin("prof", "10.0.0.1", "curl", nil)
	al.LogRunAction("prof", ActionRunCreated, runA, "10.0.0.1", nil)
	al.LogRunAction("prof", ActionRunStarted, runA, "10.0.0.1", nil)
	al.LogRunAction("ta", ActionRunCreated, runB, "10.0.0.2", nil)
	al.LogRunAction("ta", ActionRunStarted, runB, "10.0.0.2", errors.New("runner is already active"))

	all, err := al.Query(AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ActionLogin, all[0].Action)

	byRun, err := al.Query(AuditFilter{RunID: &runA})
	require.NoError(t, err)
	assert.Len(t, byRun, 2)

	failed := false
	failures, err := al.Query(AuditFilter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "runner is already active", failures[0].Error)

	created, err := al.Query(AuditFilter{Action: ActionRunCreated, Limit: 1})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "prof", created[0].Username)
}

func TestBufferFullTriggersFlush(t *testing.T) {
	al, path := createTestLogger(t, 2)

	al.LogRunAction("prof", ActionRunCreated, uuid.New(), "", nil)
	al.LogRunAction("prof", ActionRunDeleted, uuid.New(), "", nil)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Count(string(data), "\n") == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseFlushesAndIsIdempotent(t *testing.T) {
	al, path := createTestLogger(t, 100)
	al.LogSnapshotAction("prof", ActionSnapshotSaved, uuid.New(), "snap-1", "", nil)

	require.NoError(t, al.Close())
	require.NoError(t, al.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"snapshot_id":"snap-1"`)
}
