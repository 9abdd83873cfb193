// Package api exposes simulation runs over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ossim/backend/internal/audit"
	"ossim/backend/internal/auth"
	"ossim/backend/internal/engine"
	"ossim/backend/internal/memory"
	"ossim/backend/internal/metrics"
	"ossim/backend/internal/scheduler"
	"ossim/backend/internal/storage"
	"ossim/backend/pkg/types"
)

const (
	version     = "1.0.0"
	saveTimeout = 5 * time.Second
	maxInterval = time.Minute
)

type Handlers struct {
	runs        *storage.RunRegistry
	results     storage.ResultStore
	monitor     *metrics.Monitor
	auditLogger *audit.AuditLogger
	defaults    engine.Config
	runner      engine.RunnerConfig
	storageName string
	baseLogger  *slog.Logger
	logger      *slog.Logger
}

type HandlersConfig struct {
	Defaults    engine.Config
	Runner      engine.RunnerConfig
	StorageName string
}

func NewHandlers(runs *storage.RunRegistry, results storage.ResultStore, monitor *metrics.Monitor, auditLogger *audit.AuditLogger, cfg HandlersConfig, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StorageName == "" {
		cfg.StorageName = "memory"
	}
	return &Handlers{
		runs:        runs,
		results:     results,
		monitor:     monitor,
		auditLogger: auditLogger,
		defaults:    cfg.Defaults,
		runner:      cfg.Runner,
		storageName: cfg.StorageName,
		baseLogger:  logger,
		logger:      logger.With("component", "api"),
	}
}

// statusFor maps package sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrRunNotFound), errors.Is(err, storage.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrRegistryFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrRunnerActive),
		errors.Is(err, engine.ErrRunnerNotActive),
		errors.Is(err, engine.ErrRunnerNotPaused),
		errors.Is(err, engine.ErrRunComplete):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *Handlers) audit(c *gin.Context, action string, runID uuid.UUID, err error) {
	if h.auditLogger == nil {
		return
	}
	username, _ := auth.CurrentUser(c)
	h.auditLogger.LogRunAction(username, action, runID, c.ClientIP(), err)
}

func (h *Handlers) lookup(c *gin.Context) (*engine.Runner, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return nil, false
	}
	run, err := h.runs.Get(id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return run, true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func runInfo(run *engine.Runner) types.RunInfo {
	info := types.RunInfo{ID: run.ID(), State: run.State()}
	run.View(func(sim *engine.Simulation) {
		cfg := sim.Config()
		m := sim.Metrics()
		info.Policy = cfg.Policy
		info.Quantum = cfg.Quantum
		info.Replacement = cfg.Replacement
		info.Frames = cfg.Frames
		info.Step = sim.Steps()
		info.Time = sim.CurrentTime()
		info.Done = sim.Done()
		info.Processes = m.Total
		info.Completed = m.Scheduler.Completed
		info.CreatedAt = sim.CreatedAt()
	})
	return info
}

func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   version,
		LiveRuns:  h.runs.Len(),
		Storage:   h.storageName,
	})
}

func (h *Handlers) GetPolicies(c *gin.Context) {
	c.JSON(http.StatusOK, types.PoliciesResponse{
		Policies:     scheduler.GetAvailablePolicies(),
		Replacements: []memory.Replacement{memory.ReplacementLRU, memory.ReplacementFIFO},
		Defaults:     h.defaults,
	})
}

// buildConfig overlays req on the server defaults.
func (h *Handlers) buildConfig(req types.CreateRunRequest) engine.Config {
	cfg := h.defaults
	cfg.Workload.Files = append([]string(nil), h.defaults.Workload.Files...)
	if req.Policy != "" {
		cfg.Policy = scheduler.Policy(req.Policy)
	}
	if req.Quantum != nil {
		cfg.Quantum = *req.Quantum
	}
	if req.Frames != nil && *req.Frames != 0 {
		cfg.Frames = *req.Frames
	}
	if req.Replacement != "" {
		cfg.Replacement = memory.Replacement(req.Replacement)
	}
	if req.Processes != nil {
		cfg.Processes = *req.Processes
	}
	if req.FileAccessProbability != nil {
		cfg.FileAccessProbability = *req.FileAccessProbability
	}
	if req.HoldMillis != nil {
		cfg.Hold = time.Duration(*req.HoldMillis) * time.Millisecond
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.Workload != nil {
		cfg.Workload = *req.Workload
	}
	cfg.DisablePageAccess = req.DisablePageAccess
	return cfg
}

// jobOptions turns an explicit batch into engine options. Files named by the
// jobs join the resource set.
func jobOptions(cfg engine.Config, jobs []types.JobSpec) []engine.Option {
	if len(jobs) == 0 {
		return nil
	}
	procs := make([]*scheduler.Process, len(jobs))
	resources := append([]string(nil), cfg.Workload.Files...)
	known := make(map[string]bool, len(resources))
	for _, name := range resources {
		known[name] = true
	}
	for i, job := range jobs {
		procs[i] = scheduler.NewProcess(i, job.Priority, job.Burst, append([]int(nil), job.Pages...), append([]string(nil), job.Files...))
		for _, name := range job.Files {
			if !known[name] {
				known[name] = true
				resources = append(resources, name)
			}
		}
	}
	return []engine.Option{engine.WithProcesses(procs...), engine.WithResources(resources...)}
}

func (h *Handlers) completionObserver(username string) engine.Observer {
	return engine.ObserverFuncs{
		Complete: func(runID uuid.UUID, summary engine.Summary) {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()

			err := h.results.Save(ctx, storage.NewRunResult(summary))
			if err != nil {
				h.logger.Error("failed to save run result", "run_id", runID, "error", err)
			} else {
				h.logger.Info("run result saved", "run_id", runID, "steps", summary.Steps)
			}
			if h.auditLogger != nil {
				h.auditLogger.LogRunAction(username, audit.ActionRunCompleted, runID, "", err)
			}
		},
	}
}

func (h *Handlers) CreateRun(c *gin.Context) {
	var req types.CreateRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Frames != nil && *req.Frames < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frames must not be negative"})
		return
	}
	if req.HoldMillis != nil && (*req.HoldMillis < 0 || int64(*req.HoldMillis) > engine.MaxHold.Milliseconds()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("hold_ms must be within [0, %d]", engine.MaxHold.Milliseconds())})
		return
	}

	cfg := h.buildConfig(req)
	opts := append(jobOptions(cfg, req.Jobs), engine.WithLogger(h.baseLogger.With("component", "engine")))
	sim, err := engine.New(cfg, opts...)
	if err != nil {
		respondError(c, err)
		return
	}

	runnerCfg := h.runner
	if req.IntervalMillis > 0 {
		runnerCfg.Interval = time.Duration(req.IntervalMillis) * time.Millisecond
		if runnerCfg.Interval > maxInterval {
			runnerCfg.Interval = maxInterval
		}
	}

	username, _ := auth.CurrentUser(c)
	observers := []engine.Observer{h.completionObserver(username)}
	if h.monitor != nil {
		observers = append([]engine.Observer{h.monitor}, observers...)
	}
	run := engine.NewRunner(sim, runnerCfg, h.baseLogger, observers...)

	if err := h.runs.Store(run); err != nil {
		h.audit(c, audit.ActionRunCreated, run.ID(), err)
		respondError(c, err)
		return
	}
	h.audit(c, audit.ActionRunCreated, run.ID(), nil)
	created := runInfo(run)
	h.logger.Info("run created", "run_id", created.ID, "policy", created.Policy, "replacement", created.Replacement, "processes", created.Processes)

	if req.Autostart {
		err := run.Start(context.Background())
		h.audit(c, audit.ActionRunStarted, run.ID(), err)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, runInfo(run))
}

func (h *Handlers) ListRuns(c *gin.Context) {
	runs := h.runs.List()
	infos := make([]types.RunInfo, 0, len(runs))
	for _, run := range runs {
		infos = append(infos, runInfo(run))
	}
	c.JSON(http.StatusOK, gin.H{"runs": infos, "total": len(infos)})
}

// GetRun returns the run with a snapshot; ?log_tail=N bounds the access log.
func (h *Handlers) GetRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.RunDetail{
		RunInfo:  runInfo(run),
		Snapshot: run.Snapshot(intQuery(c, "log_tail", h.runner.LogTail)),
	})
}

func (h *Handlers) DeleteRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	err := h.runs.Delete(run.ID())
	h.audit(c, audit.ActionRunDeleted, run.ID(), err)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.monitor != nil {
		h.monitor.Forget(run.ID())
	}
	c.JSON(http.StatusOK, gin.H{"message": "run deleted"})
}

func (h *Handlers) StepRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	result, advanced, err := run.StepOnce()
	if err != nil {
		h.audit(c, audit.ActionRunStepped, run.ID(), err)
		respondError(c, err)
		return
	}
	if advanced {
		h.audit(c, audit.ActionRunStepped, run.ID(), nil)
	}
	c.JSON(http.StatusOK, types.StepResponse{
		Result:   result,
		Advanced: advanced,
		Snapshot: run.Snapshot(h.runner.LogTail),
	})
}

func (h *Handlers) control(action string, op func(run *engine.Runner) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := h.lookup(c)
		if !ok {
			return
		}
		err := op(run)
		h.audit(c, action, run.ID(), err)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, runInfo(run))
	}
}

// StartRun runs the loop detached from the request; it ends on stop, delete or
// shutdown.
func (h *Handlers) StartRun(c *gin.Context) {
	h.control(audit.ActionRunStarted, func(run *engine.Runner) error {
		return run.Start(context.Background())
	})(c)
}

func (h *Handlers) PauseRun(c *gin.Context) {
	h.control(audit.ActionRunPaused, (*engine.Runner).Pause)(c)
}

func (h *Handlers) ResumeRun(c *gin.Context) {
	h.control(audit.ActionRunResumed, (*engine.Runner).Resume)(c)
}

func (h *Handlers) StopRun(c *gin.Context) {
	h.control(audit.ActionRunStopped, (*engine.Runner).Stop)(c)
}

func (h *Handlers) GetProcesses(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	var procs []scheduler.Process
	run.View(func(sim *engine.Simulation) { procs = sim.Processes() })
	c.JSON(http.StatusOK, gin.H{"run_id": run.ID(), "processes": procs})
}

func (h *Handlers) GetFrames(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	snap := run.Snapshot(1)
	c.JSON(http.StatusOK, types.FramesResponse{
		RunID:       run.ID(),
		Replacement: snap.Replacement,
		Frames:      snap.Frames,
		Stats:       snap.Metrics.Memory,
	})
}

// GetLog serves the newest ?limit entries (default 50, 0 for all), or with
// ?since=N the entries after the first N.
func (h *Handlers) GetLog(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	resp := types.LogResponse{RunID: run.ID()}
	if raw, has := c.GetQuery("since"); has {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since offset"})
			return
		}
		run.View(func(sim *engine.Simulation) {
			resp.Entries = sim.LogSince(offset)
			resp.Total = sim.Metrics().Files.Accesses
		})
	} else {
		snap := run.Snapshot(intQuery(c, "limit", 50))
		resp.Entries = snap.Log
		resp.Total = snap.LogSize
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) GetTimeline(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	var timeline []scheduler.SliceResult
	run.View(func(sim *engine.Simulation) { timeline = sim.Timeline() })
	c.JSON(http.StatusOK, gin.H{"run_id": run.ID(), "timeline": timeline})
}

func (h *Handlers) ListResults(c *gin.Context) {
	results, err := h.results.List(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

func (h *Handlers) GetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}
	result, err := h.results.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetAuditLog filters by ?username, ?action, ?run_id and ?limit (default 100).
func (h *Handlers) GetAuditLog(c *gin.Context) {
	if h.auditLogger == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []audit.AuditEntry{}})
		return
	}
	filter := audit.AuditFilter{
		Username: c.Query("username"),
		Action:   c.Query("action"),
		Limit:    intQuery(c, "limit", 100),
	}
	if raw := c.Query("run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
			return
		}
		filter.RunID = &id
	}
	entries, err := h.auditLogger.Query(filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
