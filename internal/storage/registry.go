package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"ossim/backend/internal/engine"
)

// RunRegistry holds the live runs of this process.
type RunRegistry struct {
	runs    map[uuid.UUID]*engine.Runner
	maxRuns int
	mu      sync.RWMutex
}

// NewRunRegistry caps the number of live runs at maxRuns; zero or less means
// no cap.
func NewRunRegistry(maxRuns int) *RunRegistry {
	return &RunRegistry{
		runs:    make(map[uuid.UUID]*engine.Runner),
		maxRuns: maxRuns,
	}
}

func (r *RunRegistry) Store(run *engine.Runner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID()]; !exists && r.maxRuns > 0 && len(r.runs) >= r.maxRuns {
		return fmt.Errorf("%w: %d live runs", ErrRegistryFull, len(r.runs))
	}
	r.runs[run.ID()] = run
	return nil
}

func (r *RunRegistry) Get(id uuid.UUID) (*engine.Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, exists := r.runs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// List returns the live runs, oldest first.
func (r *RunRegistry) List() []*engine.Runner {
	r.mu.RLock()
	runs := make([]*engine.Runner, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	r.mu.RUnlock()

	created := make(map[uuid.UUID]int64, len(runs))
	for _, run := range runs {
		run.View(func(sim *engine.Simulation) {
			created[run.ID()] = sim.CreatedAt().UnixNano()
		})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		ci, cj := created[runs[i].ID()], created[runs[j].ID()]
		if ci != cj {
			return ci < cj
		}
		return runs[i].ID().String() < runs[j].ID().String()
	})
	return runs
}

// Delete removes a run, stopping it first if it is still active.
func (r *RunRegistry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	run, exists := r.runs[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	delete(r.runs, id)
	r.mu.Unlock()

	state := run.State()
	if state == engine.RunnerRunning || state == engine.RunnerPaused {
		_ = run.Stop()
	}
	return nil
}

func (r *RunRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// StopAll stops every active run. It is used on shutdown.
func (r *RunRegistry) StopAll() {
	for _, run := range r.List() {
		state := run.State()
		if state == engine.RunnerRunning || state == engine.RunnerPaused {
			_ = run.Stop()
		}
	}
}
