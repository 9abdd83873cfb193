package scheduler

import (
	"fmt"
	"log/slog"

	"ossim/backend/internal/filesystem"
	"ossim/backend/internal/memory"
)

type State int

const (
	StateNew State = iota
	StateReady
	StateRunning
	StateWaiting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateWaiting:
		return "WAITING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateNew; candidate <= StateTerminated; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown process state %q", text)
}

type Policy string

const (
	PolicyRoundRobin Policy = "RR"
	PolicySJF        Policy = "SJF"
	PolicyPriority   Policy = "PRIORITY"
)

// Process is the simulated unit of work. ID, BurstTime, Pages and Files are
// fixed at creation; the scheduler owns every other field once admitted.
type Process struct {
	ID            int      `json:"pid"`
	Priority      int      `json:"priority"`
	BurstTime     int      `json:"burst_time"`
	RemainingTime int      `json:"remaining_time"`
	ArrivalTime   int      `json:"arrival_time"`
	StartTime     *int     `json:"start_time"`
	FinishTime    *int     `json:"finish_time"`
	WaitingTime   int      `json:"waiting_time"`
	Pages         []int    `json:"pages"`
	Files         []string `json:"files"`
	State         State    `json:"state"`
}

func NewProcess(id, priority, burst int, pages []int, files []string) *Process {
	return &Process{
		ID:            id,
		Priority:      priority,
		BurstTime:     burst,
		RemainingTime: burst,
		Pages:         pages,
		Files:         files,
		State:         StateNew,
	}
}

// Turnaround is FinishTime - ArrivalTime, or zero while the process is alive.
func (p *Process) Turnaround() int {
	if p.FinishTime == nil {
		return 0
	}
	return *p.FinishTime - p.ArrivalTime
}

// Progress is the executed fraction of the burst in [0, 1].
func (p *Process) Progress() float64 {
	if p.BurstTime <= 0 {
		return 0
	}
	return float64(p.BurstTime-p.RemainingTime) / float64(p.BurstTime)
}

// Clone returns a deep copy, safe to hand to readers outside the engine.
func (p *Process) Clone() Process {
	c := *p
	if p.StartTime != nil {
		v := *p.StartTime
		c.StartTime = &v
	}
	if p.FinishTime != nil {
		v := *p.FinishTime
		c.FinishTime = &v
	}
	c.Pages = append([]int(nil), p.Pages...)
	c.Files = append([]string(nil), p.Files...)
	return c
}

type Metrics struct {
	Completed         int     `json:"completed"`
	AvgWaitingTime    float64 `json:"avg_waiting_time"`
	AvgTurnaroundTime float64 `json:"avg_turnaround_time"`
}

// RandomSource drives the per-slice page and file picks. *rand.Rand satisfies it.
type RandomSource interface {
	Intn(n int) int
	Float64() float64
}

type PageAccessor interface {
	Access(page, processID int) memory.AccessResult
}

type FileAccessor interface {
	Access(name string, processID int, mode filesystem.Mode) bool
}

type Config struct {
	Policy  Policy
	Quantum int
	// FileAccessProbability gates the per-slice file access. Zero disables it.
	FileAccessProbability float64
	DisablePageAccess     bool
	FileMode              filesystem.Mode
	Logger                *slog.Logger
}

type PageAccess struct {
	Page   int                 `json:"page"`
	Result memory.AccessResult `json:"result"`
}

type FileAccess struct {
	Resource string `json:"resource"`
	Granted  bool   `json:"granted"`
}

// SliceResult records one unit of execution.
type SliceResult struct {
	ProcessID  int         `json:"pid"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Executed   int         `json:"executed"`
	Remaining  int         `json:"remaining"`
	Terminated bool        `json:"terminated"`
	Page       *PageAccess `json:"page,omitempty"`
	File       *FileAccess `json:"file,omitempty"`
}
