package engine

import (
	"fmt"
	"log/slog"
	"time"

	"ossim/backend/internal/filesystem"
	"ossim/backend/internal/memory"
	"ossim/backend/internal/scheduler"
	"ossim/backend/internal/workload"
)

const MaxProcesses = 500

// MaxHold bounds how long one file access keeps its resource. The hold is
// served inside a step, so it also bounds how long a step holds the runner.
const MaxHold = time.Second

// Config holds everything needed to build one run.
type Config struct {
	Policy                scheduler.Policy   `json:"policy"`
	Quantum               int                `json:"quantum"`
	Frames                int                `json:"frames"`
	Replacement           memory.Replacement `json:"replacement"`
	Processes             int                `json:"processes"`
	FileAccessProbability float64            `json:"file_access_probability"`
	DisablePageAccess     bool               `json:"disable_page_access"`
	Hold                  time.Duration      `json:"hold"`
	Seed                  int64              `json:"seed"`
	Workload              workload.Config    `json:"workload"`
}

func DefaultConfig() Config {
	return Config{
		Policy:                scheduler.PolicyRoundRobin,
		Quantum:               2,
		Frames:                memory.DefaultFrameCount,
		Replacement:           memory.ReplacementLRU,
		Processes:             8,
		FileAccessProbability: 0.2,
		Hold:                  10 * time.Millisecond,
		Workload:              workload.DefaultConfig(),
	}
}

// Validate rejects out-of-range input before any run state exists. The
// returned error always wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	policy, err := scheduler.ParsePolicy(string(c.Policy))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Policy = policy

	replacement, err := memory.ParseReplacement(string(c.Replacement))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Replacement = replacement

	switch {
	case c.Quantum <= 0:
		return fmt.Errorf("%w: quantum must be positive, got %d", ErrInvalidConfig, c.Quantum)
	case c.Frames <= 0:
		return fmt.Errorf("%w: frames must be positive, got %d", ErrInvalidConfig, c.Frames)
	case c.Processes <= 0 || c.Processes > MaxProcesses:
		return fmt.Errorf("%w: processes must be within [1, %d], got %d", ErrInvalidConfig, MaxProcesses, c.Processes)
	case c.FileAccessProbability < 0 || c.FileAccessProbability > 1:
		return fmt.Errorf("%w: file access probability %v outside [0, 1]", ErrInvalidConfig, c.FileAccessProbability)
	case c.Hold < 0:
		return fmt.Errorf("%w: negative hold duration", ErrInvalidConfig)
	case c.Hold > MaxHold:
		return fmt.Errorf("%w: hold %v exceeds %v", ErrInvalidConfig, c.Hold, MaxHold)
	}

	if c.Workload.Burst == (workload.Range{}) && len(c.Workload.Files) == 0 {
		c.Workload = workload.DefaultConfig()
	}
	if err := c.Workload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

type options struct {
	random    scheduler.RandomSource
	generator workload.Source
	clock     memory.Clock
	now       func() time.Time
	logger    *slog.Logger
	processes []*scheduler.Process
	files     []string
}

type Option func(*options)

// WithRandom sets the source used for per-slice page and file picks.
func WithRandom(src scheduler.RandomSource) Option {
	return func(o *options) { o.random = src }
}

// WithWorkloadSource sets the source used to generate the process batch.
func WithWorkloadSource(src workload.Source) Option {
	return func(o *options) { o.generator = src }
}

func WithClock(clock memory.Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProcesses replaces the generated batch. Config.Processes is ignored.
func WithProcesses(procs ...*scheduler.Process) Option {
	return func(o *options) { o.processes = procs }
}

// WithResources overrides the file resource names. By default the workload
// file list doubles as the resource set.
func WithResources(names ...string) Option {
	return func(o *options) { o.files = names }
}

func newFileSystemConfig(cfg Config, o *options) filesystem.Config {
	names := o.files
	if len(names) == 0 {
		names = cfg.Workload.Files
	}
	return filesystem.Config{Names: names, Hold: cfg.Hold, Now: o.now}
}
