package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ossim/backend/internal/memory"
	"ossim/backend/internal/scheduler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ossim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "RR", cfg.Simulation.Policy)
	assert.Equal(t, 2, cfg.Simulation.Quantum)
	assert.Equal(t, 10, cfg.Simulation.Frames)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.Simulation.StepInterval)
	assert.Equal(t, []string{"archivo1.txt", "archivo2.txt", "archivo3.txt"}, cfg.Workload.Files)
	assert.False(t, cfg.Auth.Enabled)

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, scheduler.PolicyRoundRobin, ec.Policy)
	assert.Equal(t, memory.ReplacementLRU, ec.Replacement)
	assert.Equal(t, 3, ec.Workload.Burst.Min)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
simulation:
  policy: sjf
  quantum: 4
  replacement: fifo
  step_interval: 250ms
workload:
  burst:
    min: 2
    max: 6
storage:
  driver: redis
  redis_addr: cache:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.StepInterval)
	assert.Equal(t, "cache:6379", cfg.Storage.RedisAddr)

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, scheduler.PolicySJF, ec.Policy)
	assert.Equal(t, memory.ReplacementFIFO, ec.Replacement)
	assert.Equal(t, 4, ec.Quantum)
	assert.Equal(t, 6, ec.Workload.Burst.Max)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OSSIM_SIMULATION_QUANTUM", "5")
	t.Setenv("OSSIM_LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Simulation.Quantum)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad policy", "simulation:\n  policy: fcfs\n"},
		{"zero quantum", "simulation:\n  quantum: 0\n"},
		{"unknown driver", "storage:\n  driver: sqlite\n"},
		{"postgres without url", "storage:\n  driver: postgres\n"},
		{"auth without secret", "auth:\n  enabled: true\n"},
		{"inverted workload", "workload:\n  burst:\n    min: 9\n    max: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestAuthUsers(t *testing.T) {
	path := writeConfig(t, `
auth:
  enabled: true
  jwt_secret: 0123456789abcdef0123
  users:
    - username: prof
      password: secret
      role: instructor
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "instructor", cfg.Auth.Users[0].Role)
}
