// Package workload builds batches of synthetic processes for a simulation run.
package workload

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"ossim/backend/internal/filesystem"
	"ossim/backend/internal/scheduler"
)

var ErrInvalidRange = errors.New("invalid workload range")

// Source is the randomness a Generator consumes. *rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
	Float64() float64
}

// NewSource returns a seeded pseudo-random source; seed 0 seeds from the clock.
func NewSource(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

type Range struct {
	Min int `mapstructure:"min" json:"min"`
	Max int `mapstructure:"max" json:"max"`
}

func (r Range) valid() bool { return r.Min <= r.Max }

type Config struct {
	Burst     Range    `mapstructure:"burst" json:"burst"`
	Priority  Range    `mapstructure:"priority" json:"priority"`
	PageCount Range    `mapstructure:"page_count" json:"page_count"`
	PageIDs   Range    `mapstructure:"page_ids" json:"page_ids"`
	FileCount Range    `mapstructure:"file_count" json:"file_count"`
	Files     []string `mapstructure:"files" json:"files"`
}

func DefaultConfig() Config {
	return Config{
		Burst:     Range{Min: 3, Max: 15},
		Priority:  Range{Min: 1, Max: 10},
		PageCount: Range{Min: 3, Max: 8},
		PageIDs:   Range{Min: 0, Max: 19},
		FileCount: Range{Min: 1, Max: 2},
		Files:     append([]string(nil), filesystem.DefaultResourceNames...),
	}
}

func (c Config) Validate() error {
	checks := []struct {
		name string
		r    Range
		min  int
	}{
		{"burst", c.Burst, 1},
		{"priority", c.Priority, 0},
		{"page_count", c.PageCount, 1},
		{"page_ids", c.PageIDs, 0},
		{"file_count", c.FileCount, 1},
	}
	for _, check := range checks {
		if !check.r.valid() || check.r.Min < check.min {
			return fmt.Errorf("%w: %s [%d, %d]", ErrInvalidRange, check.name, check.r.Min, check.r.Max)
		}
	}
	if len(c.Files) == 0 {
		return fmt.Errorf("%w: no file names", ErrInvalidRange)
	}
	if c.FileCount.Max > len(c.Files) {
		return fmt.Errorf("%w: file_count max %d exceeds %d names", ErrInvalidRange, c.FileCount.Max, len(c.Files))
	}
	return nil
}

type Generator struct {
	config Config
	src    Source
}

func NewGenerator(config Config, src Source) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = NewSource(0)
	}
	return &Generator{config: config, src: src}, nil
}

// Generate returns n NEW processes with ids 0..n-1.
func (g *Generator) Generate(n int) []*scheduler.Process {
	procs := make([]*scheduler.Process, 0, n)
	for id := 0; id < n; id++ {
		burst := g.between(g.config.Burst)
		priority := g.between(g.config.Priority)
		procs = append(procs, scheduler.NewProcess(id, priority, burst, g.pages(), g.files()))
	}
	return procs
}

func (g *Generator) between(r Range) int {
	return r.Min + g.src.Intn(r.Max-r.Min+1)
}

// pages draws with replacement, so a need list may repeat a page id.
func (g *Generator) pages() []int {
	count := g.between(g.config.PageCount)
	pages := make([]int, count)
	for i := range pages {
		pages[i] = g.between(g.config.PageIDs)
	}
	return pages
}

// files samples distinct names with a partial Fisher-Yates shuffle.
func (g *Generator) files() []string {
	count := g.between(g.config.FileCount)
	pool := append([]string(nil), g.config.Files...)
	for i := 0; i < count; i++ {
		j := i + g.src.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:count]
}
