package filesystem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T, cfg Config) *FileSystem {
	t.Helper()
	fs, err := New(cfg, nil)
	require.NoError(t, err)
	return fs
}

func TestNewUsesDefaultNames(t *testing.T) {
	fs := newTestFS(t, Config{})
	assert.Equal(t, DefaultResourceNames, fs.Names())
}

func TestNewRejectsBadNames(t *testing.T) {
	_, err := New(Config{Names: []string{"a", "a"}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateResource)

	_, err = New(Config{Names: []string{"a", " "}}, nil)
	assert.ErrorIs(t, err, ErrEmptyResourceName)
}

func TestUncontendedAccessSucceeds(t *testing.T) {
	stamp := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := newTestFS(t, Config{Now: func() time.Time { return stamp }})

	ok := fs.Access("archivo2.txt", 4, ModeRead)
	require.True(t, ok)

	entries := fs.Log()
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].ProcessID)
	assert.Equal(t, "archivo2.txt", entries[0].Resource)
	assert.Equal(t, ModeRead, entries[0].Mode)
	assert.Equal(t, StatusSuccess, entries[0].Status)
	assert.Equal(t, stamp, entries[0].Timestamp)
	assert.Zero(t, fs.Conflicts())

	// released after use
	assert.True(t, fs.Access("archivo2.txt", 5, ModeWrite))
}

func TestHeldResourceConflicts(t *testing.T) {
	fs := newTestFS(t, Config{})

	require.True(t, fs.resources["archivo1.txt"].tryAcquire())

	assert.False(t, fs.Access("archivo1.txt", 1, ModeRead))
	assert.False(t, fs.Access("archivo1.txt", 2, ModeRead))
	assert.True(t, fs.Access("archivo3.txt", 3, ModeRead))

	fs.resources["archivo1.txt"].release()
	assert.True(t, fs.Access("archivo1.txt", 1, ModeRead))

	conflicts := 0
	for _, entry := range fs.Log() {
		if entry.Status == StatusConflict {
			conflicts++
		}
	}
	assert.Equal(t, 2, conflicts)
	assert.Equal(t, int64(conflicts), fs.Conflicts())

	stats := fs.Stats()
	assert.Equal(t, 4, stats.Accesses)
	assert.Equal(t, 2, stats.Successes)
}

func TestConcurrentCallersConflict(t *testing.T) {
	fs := newTestFS(t, Config{Hold: 200 * time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fs.Access("archivo1.txt", 1, ModeWrite)
	}()

	require.Eventually(t, func() bool { return len(fs.Log()) == 1 }, time.Second, time.Millisecond)

	assert.False(t, fs.Access("archivo1.txt", 2, ModeRead))
	wg.Wait()

	entries := fs.Log()
	require.Len(t, entries, 2)
	assert.Equal(t, StatusSuccess, entries[0].Status)
	assert.Equal(t, StatusConflict, entries[1].Status)
	assert.Equal(t, int64(1), fs.Conflicts())
}

func TestUnknownResourceIsRefused(t *testing.T) {
	fs := newTestFS(t, Config{})

	assert.False(t, fs.Access("missing.txt", 1, ModeRead))
	assert.Empty(t, fs.Log())
	assert.Zero(t, fs.Conflicts())
}

func TestTailAndSince(t *testing.T) {
	fs := newTestFS(t, Config{Names: []string{"f"}})
	for pid := 0; pid < 5; pid++ {
		fs.Access("f", pid, ModeRead)
	}

	tail := fs.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, 3, tail[0].ProcessID)
	assert.Equal(t, 4, tail[1].ProcessID)

	assert.Len(t, fs.Tail(0), 5)
	assert.Len(t, fs.Since(3), 2)
	assert.Empty(t, fs.Since(10))
}
