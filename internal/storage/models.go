package storage

import (
	"time"

	"github.com/google/uuid"

	"ossim/backend/internal/engine"
)

// RunResult is the stored record of a completed run. The flat columns repeat
// the headline numbers of Summary so list views need not decode it.
type RunResult struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	Policy        string         `json:"policy" db:"policy"`
	Replacement   string         `json:"replacement" db:"replacement"`
	Quantum       int            `json:"quantum" db:"quantum"`
	Frames        int            `json:"frames" db:"frames"`
	Processes     int            `json:"processes" db:"processes"`
	Steps         int            `json:"steps" db:"steps"`
	Time          int            `json:"time" db:"sim_time"`
	AvgWaiting    float64        `json:"avg_waiting_time" db:"avg_waiting"`
	AvgTurnaround float64        `json:"avg_turnaround_time" db:"avg_turnaround"`
	Faults        int64          `json:"page_faults" db:"faults"`
	Hits          int64          `json:"page_hits" db:"hits"`
	Conflicts     int64          `json:"conflicts" db:"conflicts"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	FinishedAt    time.Time      `json:"finished_at" db:"finished_at"`
	Summary       engine.Summary `json:"summary" db:"summary"`
}

func NewRunResult(summary engine.Summary) RunResult {
	finished := time.Now()
	if summary.FinishedAt != nil {
		finished = *summary.FinishedAt
	}
	m := summary.Metrics
	return RunResult{
		ID:            summary.RunID,
		Policy:        string(summary.Config.Policy),
		Replacement:   string(summary.Config.Replacement),
		Quantum:       summary.Config.Quantum,
		Frames:        summary.Config.Frames,
		Processes:     m.Total,
		Steps:         summary.Steps,
		Time:          summary.Time,
		AvgWaiting:    m.Scheduler.AvgWaitingTime,
		AvgTurnaround: m.Scheduler.AvgTurnaroundTime,
		Faults:        m.Memory.Faults,
		Hits:          m.Memory.Hits,
		Conflicts:     m.Files.Conflicts,
		CreatedAt:     summary.CreatedAt,
		FinishedAt:    finished,
		Summary:       summary,
	}
}
