package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RunnerState int

const (
	RunnerIdle RunnerState = iota
	RunnerRunning
	RunnerPaused
	RunnerStopped
	RunnerCompleted
)

func (s RunnerState) String() string {
	switch s {
	case RunnerIdle:
		return "idle"
	case RunnerRunning:
		return "running"
	case RunnerPaused:
		return "paused"
	case RunnerStopped:
		return "stopped"
	case RunnerCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s RunnerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RunnerState) UnmarshalText(text []byte) error {
	for candidate := RunnerIdle; candidate <= RunnerCompleted; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown runner state %q", text)
}

// Observer receives every step a Runner makes. Calls happen outside the
// runner lock, in step order, from the goroutine that made the step. An
// observer may read from the Runner but must not step it.
type Observer interface {
	OnStep(runID uuid.UUID, result StepResult, snapshot Snapshot)
	OnComplete(runID uuid.UUID, summary Summary)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Step     func(runID uuid.UUID, result StepResult, snapshot Snapshot)
	Complete func(runID uuid.UUID, summary Summary)
}

func (o ObserverFuncs) OnStep(runID uuid.UUID, result StepResult, snapshot Snapshot) {
	if o.Step != nil {
		o.Step(runID, result, snapshot)
	}
}

func (o ObserverFuncs) OnComplete(runID uuid.UUID, summary Summary) {
	if o.Complete != nil {
		o.Complete(runID, summary)
	}
}

type RunnerConfig struct {
	Interval time.Duration
	LogTail  int
}

// Runner drives a Simulation from a background goroutine. Every call into the
// simulation, including reads, goes through one mutex so the engine only ever
// sees a single writer. Pausing withholds steps; stopping ends the loop and
// leaves the simulation as it is.
type Runner struct {
	sim       *Simulation
	config    RunnerConfig
	observers []Observer
	logger    *slog.Logger

	// stepMu is taken before mu and held until observers have seen the step.
	stepMu sync.Mutex
	mu     sync.Mutex
	state  RunnerState
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewRunner(sim *Simulation, config RunnerConfig, logger *slog.Logger, observers ...Observer) *Runner {
	if config.Interval <= 0 {
		config.Interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sim:       sim,
		config:    config,
		observers: observers,
		logger:    logger.With("component", "runner", "run_id", sim.ID().String()),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case RunnerRunning, RunnerPaused:
		r.mu.Unlock()
		return ErrRunnerActive
	case RunnerCompleted:
		r.mu.Unlock()
		return ErrRunComplete
	}
	r.state = RunnerRunning
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	go r.loop(ctx, stopCh, doneCh)
	r.logger.Info("runner started", "interval", r.config.Interval)
	return nil
}

func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RunnerRunning {
		return ErrRunnerNotActive
	}
	r.state = RunnerPaused
	r.logger.Info("runner paused", "step", r.sim.Steps())
	return nil
}

func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RunnerPaused {
		return ErrRunnerNotPaused
	}
	r.state = RunnerRunning
	r.logger.Info("runner resumed", "step", r.sim.Steps())
	return nil
}

// Stop ends the background loop and waits for it to exit.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.state != RunnerRunning && r.state != RunnerPaused {
		r.mu.Unlock()
		return ErrRunnerNotActive
	}
	r.state = RunnerStopped
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	r.logger.Info("runner stopped", "step", r.Steps())
	return nil
}

// StepOnce advances the simulation by hand. It is refused while the
// background loop is active.
func (r *Runner) StepOnce() (StepResult, bool, error) {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	r.mu.Lock()
	switch r.state {
	case RunnerRunning, RunnerPaused:
		r.mu.Unlock()
		return StepResult{}, false, ErrRunnerActive
	case RunnerCompleted:
		r.mu.Unlock()
		return StepResult{Step: r.sim.Steps(), Done: true}, false, nil
	}
	result, ok, snapshot, summary := r.stepLocked()
	r.mu.Unlock()

	r.notify(result, ok, snapshot, summary)
	return result, ok, nil
}

func (r *Runner) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			r.mu.Lock()
			if r.state == RunnerRunning || r.state == RunnerPaused {
				r.state = RunnerStopped
			}
			r.mu.Unlock()
			return
		case <-ticker.C:
			if !r.tick() {
				return
			}
		}
	}
}

// tick makes one background step. It returns false once the loop should exit.
func (r *Runner) tick() bool {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	r.mu.Lock()
	switch r.state {
	case RunnerPaused:
		r.mu.Unlock()
		return true
	case RunnerRunning:
	default:
		r.mu.Unlock()
		return false
	}
	result, ok, snapshot, summary := r.stepLocked()
	finished := r.state == RunnerCompleted
	r.mu.Unlock()

	r.notify(result, ok, snapshot, summary)
	return !finished
}

// stepLocked must be called with r.mu held. A non-nil summary means the run
// completed during this call.
func (r *Runner) stepLocked() (StepResult, bool, Snapshot, *Summary) {
	result, ok := r.sim.Step()
	snapshot := r.sim.Snapshot(r.config.LogTail)

	if result.Done && r.state != RunnerCompleted {
		r.state = RunnerCompleted
		summary := r.sim.Summary()
		return result, ok, snapshot, &summary
	}
	return result, ok, snapshot, nil
}

func (r *Runner) notify(result StepResult, ok bool, snapshot Snapshot, summary *Summary) {
	runID := r.sim.ID()
	for _, o := range r.observers {
		if ok {
			o.OnStep(runID, result, snapshot)
		}
		if summary != nil {
			o.OnComplete(runID, *summary)
		}
	}
	if summary != nil {
		r.logger.Info("run completed", "steps", summary.Steps, "time", summary.Time)
	}
}

func (r *Runner) State() RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) Snapshot(logTail int) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Snapshot(logTail)
}

func (r *Runner) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Summary()
}

func (r *Runner) Steps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Steps()
}

func (r *Runner) ID() uuid.UUID { return r.sim.ID() }

// Wait blocks until the background loop exits or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	doneCh := r.doneCh
	r.mu.Unlock()
	if doneCh == nil {
		return nil
	}
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View runs fn against the simulation under the runner lock.
func (r *Runner) View(fn func(sim *Simulation)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.sim)
}
