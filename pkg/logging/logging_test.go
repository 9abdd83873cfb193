package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"ERROR", slog.LevelError, true},
		{"TRACE", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, err == nil, tt.in)
	}
}

func TestNewWithWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("WARN", &buf)

	logger.Info("hidden")
	logger.Warn("shown", "pid", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "pid=3")
}

func TestUnknownLevelWarns(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("LOUD", &buf)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "LOUD")
}

func TestNewAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ossim.log")
	logger, err := New("INFO", path)
	require.NoError(t, err)

	logger.Info("simulation created", "processes", 8)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "simulation created")
}

func TestNewBadPath(t *testing.T) {
	_, err := New("INFO", filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}
