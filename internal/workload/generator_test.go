package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ossim/backend/internal/scheduler"
)

func TestGenerateRespectsRanges(t *testing.T) {
	cfg := DefaultConfig()
	g, err := NewGenerator(cfg, NewSource(42))
	require.NoError(t, err)

	procs := g.Generate(200)
	require.Len(t, procs, 200)

	for i, p := range procs {
		assert.Equal(t, i, p.ID)
		assert.Equal(t, scheduler.StateNew, p.State)
		assert.Equal(t, p.BurstTime, p.RemainingTime)
		assert.GreaterOrEqual(t, p.BurstTime, 3)
		assert.LessOrEqual(t, p.BurstTime, 15)
		assert.GreaterOrEqual(t, p.Priority, 1)
		assert.LessOrEqual(t, p.Priority, 10)

		assert.GreaterOrEqual(t, len(p.Pages), 3)
		assert.LessOrEqual(t, len(p.Pages), 8)
		for _, page := range p.Pages {
			assert.GreaterOrEqual(t, page, 0)
			assert.LessOrEqual(t, page, 19)
		}

		assert.GreaterOrEqual(t, len(p.Files), 1)
		assert.LessOrEqual(t, len(p.Files), 2)
		seen := map[string]bool{}
		for _, f := range p.Files {
			assert.Contains(t, cfg.Files, f)
			assert.False(t, seen[f], "duplicate file %s", f)
			seen[f] = true
		}
	}
}

func TestSameSeedSameBatch(t *testing.T) {
	a, err := NewGenerator(DefaultConfig(), NewSource(7))
	require.NoError(t, err)
	b, err := NewGenerator(DefaultConfig(), NewSource(7))
	require.NoError(t, err)

	assert.Equal(t, a.Generate(10), b.Generate(10))
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Burst = Range{Min: 5, Max: 2}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidRange)

	cfg = DefaultConfig()
	cfg.FileCount = Range{Min: 1, Max: 4}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidRange)

	cfg = DefaultConfig()
	cfg.Burst = Range{Min: 0, Max: 3}
	_, err := NewGenerator(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidRange)
}
