package memory

import (
	"fmt"
	"log/slog"
)

// Manager owns a fixed array of page frames and answers page access requests
// for simulated processes. It is not safe for concurrent use; the simulation
// driver serialises calls.
type Manager struct {
	frames      []PageFrame
	replacement Replacement
	clock       Clock
	faults      int64
	hits        int64
	logger      *slog.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Frames < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameCount, cfg.Frames)
	}
	if cfg.Frames == 0 {
		cfg.Frames = DefaultFrameCount
	}

	replacement, err := ParseReplacement(string(cfg.Replacement))
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = &TickClock{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	frames := make([]PageFrame, cfg.Frames)
	for i := range frames {
		frames[i].Index = i
	}

	return &Manager{
		frames:      frames,
		replacement: replacement,
		clock:       clock,
		logger:      logger.With("component", "memory"),
	}, nil
}

// Access references page on behalf of processID. A resident (page, process)
// pair is a hit and only refreshes LastAccess. Anything else is a fault that
// binds exactly one frame: the first unbound one, otherwise the policy victim.
func (m *Manager) Access(page, processID int) AccessResult {
	now := m.clock.Now()

	for i := range m.frames {
		if m.frames[i].Holds(page, processID) {
			m.frames[i].LastAccess = now
			m.hits++
			return AccessResult{Outcome: Hit, Frame: i}
		}
	}

	m.faults++
	idx := m.freeFrame()
	result := AccessResult{Outcome: Fault, Frame: idx}

	if idx < 0 {
		idx = m.victim()
		old := m.frames[idx]
		result.Frame = idx
		result.Evicted = &Binding{Page: old.Page, ProcessID: old.ProcessID}
		m.logger.Debug("page evicted",
			"frame", idx,
			"policy", string(m.replacement),
			"evicted_page", old.Page,
			"evicted_pid", old.ProcessID,
		)
	}

	m.frames[idx] = PageFrame{
		Index:      idx,
		Bound:      true,
		Page:       page,
		ProcessID:  processID,
		LastAccess: now,
		LoadedAt:   now,
	}

	m.logger.Debug("page fault", "page", page, "pid", processID, "frame", idx)
	return result
}

func (m *Manager) freeFrame() int {
	for i := range m.frames {
		if !m.frames[i].Bound {
			return i
		}
	}
	return -1
}

// victim returns the frame with the smallest policy key. Ties keep the first
// frame in storage order.
func (m *Manager) victim() int {
	key := func(f PageFrame) int64 {
		if m.replacement == ReplacementFIFO {
			return f.LoadedAt
		}
		return f.LastAccess
	}

	best := 0
	for i := 1; i < len(m.frames); i++ {
		if key(m.frames[i]) < key(m.frames[best]) {
			best = i
		}
	}
	return best
}

func (m *Manager) UsagePercent() float64 {
	return float64(m.boundFrames()) / float64(len(m.frames)) * 100
}

func (m *Manager) boundFrames() int {
	n := 0
	for _, f := range m.frames {
		if f.Bound {
			n++
		}
	}
	return n
}

// Frames returns a copy of the frame table in storage order.
func (m *Manager) Frames() []PageFrame {
	result := make([]PageFrame, len(m.frames))
	copy(result, m.frames)
	return result
}

func (m *Manager) Faults() int64 { return m.faults }

func (m *Manager) Hits() int64 { return m.hits }

func (m *Manager) Replacement() Replacement { return m.replacement }

func (m *Manager) Stats() Stats {
	stats := Stats{
		Frames:       len(m.frames),
		BoundFrames:  m.boundFrames(),
		Faults:       m.faults,
		Hits:         m.hits,
		UsagePercent: m.UsagePercent(),
	}
	if total := m.faults + m.hits; total > 0 {
		stats.HitRatio = float64(m.hits) / float64(total)
	}
	return stats
}
