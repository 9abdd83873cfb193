// Package engine ties the scheduler, memory manager and file system into a
// single run that advances one time-slice per Step call.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ossim/backend/internal/filesystem"
	"ossim/backend/internal/memory"
	"ossim/backend/internal/scheduler"
	"ossim/backend/internal/workload"
)

// StepResult is what one call to Step did.
type StepResult struct {
	Step  int                   `json:"step"`
	Slice scheduler.SliceResult `json:"slice"`
	Done  bool                  `json:"done"`
}

// Simulation is one run. It has no internal locking: a single goroutine (or a
// Runner) must serialise every call.
type Simulation struct {
	id        uuid.UUID
	config    Config
	createdAt time.Time
	now       func() time.Time
	logger    *slog.Logger

	scheduler *scheduler.Scheduler
	memory    *memory.Manager
	files     *filesystem.FileSystem
	processes []*scheduler.Process

	steps      int
	timeline   []scheduler.SliceResult
	finishedAt *time.Time
}

func New(cfg Config, opts ...Option) (*Simulation, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.processes) > 0 {
		cfg.Processes = len(o.processes)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.generator == nil {
		o.generator = workload.NewSource(cfg.Seed)
	}
	if o.random == nil {
		// offset the seed so slice picks do not mirror the generator stream
		seed := cfg.Seed
		if seed != 0 {
			seed++
		}
		o.random = workload.NewSource(seed)
	}

	id := uuid.New()
	logger := o.logger.With("run_id", id.String())

	sched, err := scheduler.New(scheduler.Config{
		Policy:                cfg.Policy,
		Quantum:               cfg.Quantum,
		FileAccessProbability: cfg.FileAccessProbability,
		DisablePageAccess:     cfg.DisablePageAccess,
		FileMode:              filesystem.ModeRead,
		Logger:                logger,
	}, o.random)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	mem, err := memory.NewManager(memory.Config{
		Frames:      cfg.Frames,
		Replacement: cfg.Replacement,
		Clock:       o.clock,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	files, err := filesystem.New(newFileSystemConfig(cfg, o), logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	procs := o.processes
	if len(procs) == 0 {
		gen, err := workload.NewGenerator(cfg.Workload, o.generator)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		procs = gen.Generate(cfg.Processes)
	}

	for _, p := range procs {
		if err := sched.Admit(p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	logger.Info("simulation created",
		"policy", string(cfg.Policy),
		"quantum", cfg.Quantum,
		"frames", cfg.Frames,
		"replacement", string(cfg.Replacement),
		"processes", len(procs),
	)

	return &Simulation{
		id:        id,
		config:    cfg,
		createdAt: o.now(),
		now:       o.now,
		logger:    logger,
		scheduler: sched,
		memory:    mem,
		files:     files,
		processes: procs,
		timeline:  make([]scheduler.SliceResult, 0),
	}, nil
}

// Step dispatches the head of the ready queue and executes one slice. It
// returns false, with no state change, when no process is eligible.
func (s *Simulation) Step() (StepResult, bool) {
	p, ok := s.scheduler.Dispatch()
	if !ok {
		s.markFinished()
		return StepResult{Step: s.steps, Done: true}, false
	}

	slice, err := s.scheduler.ExecuteSlice(p, s.memory, s.files)
	if err != nil {
		s.logger.Error("slice execution failed", "pid", p.ID, "error", err)
		return StepResult{Step: s.steps}, false
	}

	s.steps++
	s.timeline = append(s.timeline, slice)

	done := s.Done()
	if done {
		s.markFinished()
	}
	return StepResult{Step: s.steps, Slice: slice, Done: done}, true
}

func (s *Simulation) markFinished() {
	if s.finishedAt != nil || !s.Done() {
		return
	}
	t := s.now()
	s.finishedAt = &t

	m := s.scheduler.Metrics()
	s.logger.Info("simulation complete",
		"steps", s.steps,
		"time", s.scheduler.CurrentTime(),
		"avg_waiting", m.AvgWaitingTime,
		"avg_turnaround", m.AvgTurnaroundTime,
		"faults", s.memory.Faults(),
		"conflicts", s.files.Conflicts(),
	)
}

// Done reports whether every generated process has terminated.
func (s *Simulation) Done() bool {
	return s.scheduler.Idle() && len(s.scheduler.Completed()) == len(s.processes)
}

// CheckInvariants verifies process conservation and the per-process state
// rules. A non-nil result is always a defect.
func (s *Simulation) CheckInvariants() error {
	seen := make(map[int]string, len(s.processes))
	mark := func(p *scheduler.Process, where string) error {
		if prev, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: pid %d in both %s and %s", ErrInvariantViolation, p.ID, prev, where)
		}
		seen[p.ID] = where
		return nil
	}

	for _, p := range s.scheduler.Ready() {
		if err := mark(p, "ready"); err != nil {
			return err
		}
		if p.State != scheduler.StateReady {
			return fmt.Errorf("%w: pid %d queued in state %s", ErrInvariantViolation, p.ID, p.State)
		}
	}
	if running := s.scheduler.Running(); running != nil {
		if err := mark(running, "running"); err != nil {
			return err
		}
	}
	for _, p := range s.scheduler.Completed() {
		if err := mark(p, "completed"); err != nil {
			return err
		}
	}
	if len(seen) != len(s.processes) {
		return fmt.Errorf("%w: tracking %d of %d processes", ErrInvariantViolation, len(seen), len(s.processes))
	}

	for _, p := range s.processes {
		if p.RemainingTime < 0 || p.RemainingTime > p.BurstTime {
			return fmt.Errorf("%w: pid %d remaining %d of %d", ErrInvariantViolation, p.ID, p.RemainingTime, p.BurstTime)
		}
		terminated := p.State == scheduler.StateTerminated
		if terminated != (p.RemainingTime == 0 && p.FinishTime != nil) {
			return fmt.Errorf("%w: pid %d state %s remaining %d", ErrInvariantViolation, p.ID, p.State, p.RemainingTime)
		}
		if terminated != (seen[p.ID] == "completed") {
			return fmt.Errorf("%w: pid %d is %s but in %s", ErrInvariantViolation, p.ID, p.State, seen[p.ID])
		}
	}
	return nil
}

func (s *Simulation) ID() uuid.UUID { return s.id }

func (s *Simulation) Config() Config { return s.config }

func (s *Simulation) Steps() int { return s.steps }

func (s *Simulation) CurrentTime() int { return s.scheduler.CurrentTime() }

func (s *Simulation) CreatedAt() time.Time { return s.createdAt }

// Timeline returns every executed slice in order.
func (s *Simulation) Timeline() []scheduler.SliceResult {
	result := make([]scheduler.SliceResult, len(s.timeline))
	copy(result, s.timeline)
	return result
}

// LogSince returns access log entries past offset, for incremental readers.
func (s *Simulation) LogSince(offset int) []filesystem.AccessLogEntry {
	return s.files.Since(offset)
}
