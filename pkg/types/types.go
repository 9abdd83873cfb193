// Package types holds the request and response bodies of the HTTP API.
package types

import (
	"time"

	"github.com/google/uuid"

	"ossim/backend/internal/engine"
	"ossim/backend/internal/filesystem"
	"ossim/backend/internal/memory"
	"ossim/backend/internal/scheduler"
	"ossim/backend/internal/workload"
)

// JobSpec describes one process of an explicit batch. Ids are assigned in
// list order starting from zero.
type JobSpec struct {
	Priority int      `json:"priority"`
	Burst    int      `json:"burst" binding:"required,min=1"`
	Pages    []int    `json:"pages" binding:"required,min=1"`
	Files    []string `json:"files" binding:"required,min=1"`
}

// CreateRunRequest overrides the server defaults. Nil pointers keep the
// default; a zero frame count also keeps it.
type CreateRunRequest struct {
	Policy                string           `json:"policy"`
	Quantum               *int             `json:"quantum"`
	Frames                *int             `json:"frames"`
	Replacement           string           `json:"replacement"`
	Processes             *int             `json:"processes"`
	FileAccessProbability *float64         `json:"file_access_probability"`
	DisablePageAccess     bool             `json:"disable_page_access"`
	HoldMillis            *int             `json:"hold_ms"`
	Seed                  *int64           `json:"seed"`
	Workload              *workload.Config `json:"workload"`
	Jobs                  []JobSpec        `json:"jobs" binding:"omitempty,dive"`
	IntervalMillis        int              `json:"interval_ms"`
	Autostart             bool             `json:"autostart"`
}

// RunInfo is the list view of a live run.
type RunInfo struct {
	ID          uuid.UUID          `json:"id"`
	State       engine.RunnerState `json:"state"`
	Policy      scheduler.Policy   `json:"policy"`
	Quantum     int                `json:"quantum"`
	Replacement memory.Replacement `json:"replacement"`
	Frames      int                `json:"frames"`
	Step        int                `json:"step"`
	Time        int                `json:"time"`
	Done        bool               `json:"done"`
	Processes   int                `json:"processes"`
	Completed   int                `json:"completed"`
	CreatedAt   time.Time          `json:"created_at"`
}

type RunDetail struct {
	RunInfo
	Snapshot engine.Snapshot `json:"snapshot"`
}

type StepResponse struct {
	Result   engine.StepResult `json:"result"`
	Advanced bool              `json:"advanced"`
	Snapshot engine.Snapshot   `json:"snapshot"`
}

type FramesResponse struct {
	RunID       uuid.UUID          `json:"run_id"`
	Replacement memory.Replacement `json:"replacement"`
	Frames      []memory.PageFrame `json:"frames"`
	Stats       memory.Stats       `json:"stats"`
}

type LogResponse struct {
	RunID   uuid.UUID                   `json:"run_id"`
	Total   int                         `json:"total"`
	Entries []filesystem.AccessLogEntry `json:"entries"`
}

type PoliciesResponse struct {
	Policies     []scheduler.Policy   `json:"policies"`
	Replacements []memory.Replacement `json:"replacements"`
	Defaults     engine.Config        `json:"defaults"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	LiveRuns  int       `json:"live_runs"`
	Storage   string    `json:"storage"`
}
