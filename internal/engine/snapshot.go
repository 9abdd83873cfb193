package engine

import (
	"time"

	"github.com/google/uuid"

	"ossim/backend/internal/filesystem"
	"ossim/backend/internal/memory"
	"ossim/backend/internal/scheduler"
)

type Metrics struct {
	Scheduler scheduler.Metrics `json:"scheduler"`
	Memory    memory.Stats      `json:"memory"`
	Files     filesystem.Stats  `json:"files"`
	Total     int               `json:"total_processes"`
}

// Snapshot is a detached copy of a run's state; readers may keep it after the
// run moves on.
type Snapshot struct {
	RunID       uuid.UUID                   `json:"run_id"`
	Policy      scheduler.Policy            `json:"policy"`
	Quantum     int                         `json:"quantum"`
	Replacement memory.Replacement          `json:"replacement"`
	Step        int                         `json:"step"`
	Time        int                         `json:"time"`
	Done        bool                        `json:"done"`
	Ready       []scheduler.Process         `json:"ready"`
	Completed   []scheduler.Process         `json:"completed"`
	Frames      []memory.PageFrame          `json:"frames"`
	Log         []filesystem.AccessLogEntry `json:"log"`
	LogSize     int                         `json:"log_size"`
	Metrics     Metrics                     `json:"metrics"`
	TakenAt     time.Time                   `json:"taken_at"`
}

// Summary is the durable record of a run.
type Summary struct {
	RunID      uuid.UUID               `json:"run_id"`
	Config     Config                  `json:"config"`
	Steps      int                     `json:"steps"`
	Time       int                     `json:"time"`
	Done       bool                    `json:"done"`
	Metrics    Metrics                 `json:"metrics"`
	Processes  []scheduler.Process     `json:"processes"`
	Timeline   []scheduler.SliceResult `json:"timeline"`
	CreatedAt  time.Time               `json:"created_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
}

func (s *Simulation) Metrics() Metrics {
	return Metrics{
		Scheduler: s.scheduler.Metrics(),
		Memory:    s.memory.Stats(),
		Files:     s.files.Stats(),
		Total:     len(s.processes),
	}
}

// Snapshot copies the current state. logTail limits the access log to the
// most recent entries; zero or less keeps all of it.
func (s *Simulation) Snapshot(logTail int) Snapshot {
	fsStats := s.files.Stats()
	return Snapshot{
		RunID:       s.id,
		Policy:      s.config.Policy,
		Quantum:     s.config.Quantum,
		Replacement: s.config.Replacement,
		Step:        s.steps,
		Time:        s.scheduler.CurrentTime(),
		Done:        s.Done(),
		Ready:       cloneAll(s.scheduler.Ready()),
		Completed:   cloneAll(s.scheduler.Completed()),
		Frames:      s.memory.Frames(),
		Log:         s.files.Tail(logTail),
		LogSize:     fsStats.Accesses,
		Metrics:     s.Metrics(),
		TakenAt:     s.now(),
	}
}

// Processes returns every process of the run in id order.
func (s *Simulation) Processes() []scheduler.Process {
	return cloneAll(s.processes)
}

func (s *Simulation) Summary() Summary {
	summary := Summary{
		RunID:     s.id,
		Config:    s.config,
		Steps:     s.steps,
		Time:      s.scheduler.CurrentTime(),
		Done:      s.Done(),
		Metrics:   s.Metrics(),
		Processes: cloneAll(s.processes),
		Timeline:  s.Timeline(),
		CreatedAt: s.createdAt,
	}
	if s.finishedAt != nil {
		t := *s.finishedAt
		summary.FinishedAt = &t
	}
	return summary
}

func cloneAll(procs []*scheduler.Process) []scheduler.Process {
	result := make([]scheduler.Process, len(procs))
	for i, p := range procs {
		result[i] = p.Clone()
	}
	return result
}
