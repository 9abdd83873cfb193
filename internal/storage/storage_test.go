package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ossim/backend/internal/engine"
	"ossim/backend/internal/scheduler"
	"ossim/backend/pkg/config"
)

func createTestRunner(t *testing.T) *engine.Runner {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Hold = 0
	cfg.Processes = 4
	cfg.Seed = 7
	sim, err := engine.New(cfg)
	require.NoError(t, err)
	return engine.NewRunner(sim, engine.RunnerConfig{}, nil)
}

func completedSummary(t *testing.T) engine.Summary {
	t.Helper()
	r := createTestRunner(t)
	for i := 0; i < 1000; i++ {
		_, ok, err := r.StepOnce()
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	summary := r.Summary()
	require.True(t, summary.Done)
	return summary
}

func TestRunRegistry(t *testing.T) {
	reg := NewRunRegistry(2)
	a, b, c := createTestRunner(t), createTestRunner(t), createTestRunner(t)

	require.NoError(t, reg.Store(a))
	require.NoError(t, reg.Store(b))
	assert.ErrorIs(t, reg.Store(c), ErrRegistryFull)
	require.NoError(t, reg.Store(a), "re-storing a known run is not a new slot")

	got, err := reg.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = reg.Get(uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Len(t, reg.List(), 2)

	require.NoError(t, reg.Delete(a.ID()))
	assert.ErrorIs(t, reg.Delete(a.ID()), ErrRunNotFound)
	assert.Equal(t, 1, reg.Len())
	require.NoError(t, reg.Store(c))
}

func TestRegistryDeleteStopsActiveRun(t *testing.T) {
	reg := NewRunRegistry(0)
	r := createTestRunner(t)
	require.NoError(t, reg.Store(r))
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, reg.Delete(r.ID()))
	assert.NotEqual(t, engine.RunnerRunning, r.State())
}

func TestNewRunResult(t *testing.T) {
	summary := completedSummary(t)
	result := NewRunResult(summary)

	assert.Equal(t, summary.RunID, result.ID)
	assert.Equal(t, "RR", result.Policy)
	assert.Equal(t, "LRU", result.Replacement)
	assert.Equal(t, 4, result.Processes)
	assert.Equal(t, summary.Time, result.Time)
	assert.Equal(t, *summary.FinishedAt, result.FinishedAt)
	assert.Equal(t, summary.Metrics.Memory.Faults, result.Faults)
}

func TestRunResultJSONKeepsEnums(t *testing.T) {
	result := NewRunResult(completedSummary(t))

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"TERMINATED"`)

	var decoded RunResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Summary.Processes, 4)
	assert.Equal(t, scheduler.StateTerminated, decoded.Summary.Processes[0].State)
	assert.Equal(t, result.Summary.Timeline, decoded.Summary.Timeline)
}

func exerciseStore(t *testing.T, store ResultStore) {
	t.Helper()
	ctx := context.Background()

	older := NewRunResult(completedSummary(t))
	older.FinishedAt = time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
	newer := NewRunResult(completedSummary(t))
	newer.FinishedAt = time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	got, err := store.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
	assert.Equal(t, older.Steps, got.Steps)
	assert.Len(t, got.Summary.Processes, 4)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrResultNotFound)

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(list), 2)
	ids := make([]uuid.UUID, len(list))
	for i, r := range list {
		ids[i] = r.ID
	}
	assert.Less(t, indexOf(ids, newer.ID), indexOf(ids, older.ID))

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func indexOf(ids []uuid.UUID, id uuid.UUID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestOpenMemoryAndUnknown(t *testing.T) {
	store, err := Open(context.Background(), config.StorageConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), config.StorageConfig{Driver: "sqlite"}, nil)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("OSSIM_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("OSSIM_TEST_POSTGRES_URL not set")
	}
	store, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("OSSIM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OSSIM_TEST_REDIS_ADDR not set")
	}
	store, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestRedisListReadsPastExpiredEntries(t *testing.T) {
	addr := os.Getenv("OSSIM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OSSIM_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisOptions{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.client.FlushDB(ctx).Err())

	base := time.Now().UTC().Truncate(time.Millisecond)
	saved := make([]RunResult, 4)
	for i := range saved {
		saved[i] = NewRunResult(completedSummary(t))
		saved[i].FinishedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Save(ctx, saved[i]))
	}
	// the two newest values disappear while their ids stay indexed
	require.NoError(t, store.client.Del(ctx, resultKey(saved[3].ID), resultKey(saved[2].ID)).Err())

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, saved[1].ID, list[0].ID)
	assert.Equal(t, saved[0].ID, list[1].ID)

	indexed, err := store.client.ZCard(ctx, resultIndexKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), indexed)
}
