package scheduler

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"ossim/backend/internal/filesystem"
)

// Scheduler owns the ready queue, the running slot and the completed list.
// It is single-writer: callers must serialise Admit, Dispatch and ExecuteSlice.
type Scheduler struct {
	config Config
	order  ordering
	random RandomSource
	logger *slog.Logger

	ready     []*Process
	running   *Process
	completed []*Process

	currentTime     int
	totalWaiting    int
	totalTurnaround int
}

func New(config Config, random RandomSource) (*Scheduler, error) {
	order, err := newOrdering(config.Policy)
	if err != nil {
		return nil, err
	}
	if config.Quantum <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantum, config.Quantum)
	}
	if config.FileAccessProbability < 0 || config.FileAccessProbability > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProbability, config.FileAccessProbability)
	}
	if config.FileMode == "" {
		config.FileMode = filesystem.ModeRead
	}
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		config:    config,
		order:     order,
		random:    random,
		logger:    logger.With("component", "scheduler", "policy", string(order.Policy())),
		ready:     make([]*Process, 0),
		completed: make([]*Process, 0),
	}, nil
}

// Admit moves a NEW process to the tail of the ready queue, stamps its arrival
// with the current time and reorders the queue.
func (s *Scheduler) Admit(p *Process) error {
	if p == nil {
		return fmt.Errorf("%w: nil process", ErrInvalidProcess)
	}
	if p.State != StateNew {
		return fmt.Errorf("%w: pid %d is %s", ErrProcessAlreadyQueued, p.ID, p.State)
	}
	if p.BurstTime <= 0 || p.RemainingTime != p.BurstTime {
		return fmt.Errorf("%w: pid %d burst=%d remaining=%d", ErrInvalidProcess, p.ID, p.BurstTime, p.RemainingTime)
	}

	p.State = StateReady
	p.ArrivalTime = s.currentTime
	s.ready = append(s.ready, p)
	s.order.Reorder(s.ready)

	s.logger.Debug("process admitted", "pid", p.ID, "burst", p.BurstTime, "priority", p.Priority)
	return nil
}

// Dispatch pops the head of the ready queue into the running slot. It returns
// false when there is nothing to run.
func (s *Scheduler) Dispatch() (*Process, bool) {
	if len(s.ready) == 0 {
		return nil, false
	}

	p := s.ready[0]
	s.ready[0] = nil
	s.ready = s.ready[1:]

	p.State = StateRunning
	if p.StartTime == nil {
		start := s.currentTime
		p.StartTime = &start
	}
	s.running = p

	s.logger.Debug("process dispatched", "pid", p.ID, "remaining", p.RemainingTime, "time", s.currentTime)
	return p, true
}

// ExecuteSlice runs the dispatched process for one slice. Page and file
// accesses happen as side effects and never change the slice length.
func (s *Scheduler) ExecuteSlice(p *Process, mem PageAccessor, fs FileAccessor) (SliceResult, error) {
	if p == nil || p != s.running {
		return SliceResult{}, ErrNotRunning
	}

	executed := s.order.SliceLength(p, s.config.Quantum)
	result := SliceResult{
		ProcessID: p.ID,
		Start:     s.currentTime,
		Executed:  executed,
	}

	if mem != nil && !s.config.DisablePageAccess && len(p.Pages) > 0 {
		page := p.Pages[s.random.Intn(len(p.Pages))]
		result.Page = &PageAccess{Page: page, Result: mem.Access(page, p.ID)}
	}

	if fs != nil && s.config.FileAccessProbability > 0 && len(p.Files) > 0 {
		if s.random.Float64() < s.config.FileAccessProbability {
			name := p.Files[s.random.Intn(len(p.Files))]
			result.File = &FileAccess{Resource: name, Granted: fs.Access(name, p.ID, s.config.FileMode)}
		}
	}

	p.RemainingTime -= executed
	s.currentTime += executed
	s.running = nil

	result.End = s.currentTime
	result.Remaining = p.RemainingTime

	if p.RemainingTime == 0 {
		s.terminate(p)
		result.Terminated = true
		return result, nil
	}

	p.State = StateReady
	s.ready = append(s.ready, p)
	s.order.Reorder(s.ready)
	return result, nil
}

func (s *Scheduler) terminate(p *Process) {
	finish := s.currentTime
	p.State = StateTerminated
	p.FinishTime = &finish
	p.WaitingTime = finish - p.ArrivalTime - p.BurstTime

	s.completed = append(s.completed, p)
	s.totalWaiting += p.WaitingTime
	s.totalTurnaround += p.Turnaround()

	s.logger.Info("process terminated",
		"pid", p.ID,
		"finish", finish,
		"waiting", p.WaitingTime,
		"turnaround", p.Turnaround(),
	)
}

func (s *Scheduler) Metrics() Metrics {
	n := len(s.completed)
	if n == 0 {
		return Metrics{}
	}
	return Metrics{
		Completed:         n,
		AvgWaitingTime:    float64(s.totalWaiting) / float64(n),
		AvgTurnaroundTime: float64(s.totalTurnaround) / float64(n),
	}
}

// Ready returns the ready queue in dispatch order.
func (s *Scheduler) Ready() []*Process {
	result := make([]*Process, len(s.ready))
	copy(result, s.ready)
	return result
}

func (s *Scheduler) Completed() []*Process {
	result := make([]*Process, len(s.completed))
	copy(result, s.completed)
	return result
}

func (s *Scheduler) Running() *Process { return s.running }

func (s *Scheduler) CurrentTime() int { return s.currentTime }

func (s *Scheduler) Policy() Policy { return s.order.Policy() }

func (s *Scheduler) Quantum() int { return s.config.Quantum }

// Idle reports whether nothing is queued or running.
func (s *Scheduler) Idle() bool {
	return len(s.ready) == 0 && s.running == nil
}
