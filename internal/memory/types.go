package memory

import (
	"fmt"
	"log/slog"
	"strings"
)

type Replacement string

const (
	ReplacementLRU  Replacement = "LRU"
	ReplacementFIFO Replacement = "FIFO"
)

const DefaultFrameCount = 10

// ParseReplacement accepts the policy name in any case. An empty name selects LRU.
func ParseReplacement(name string) (Replacement, error) {
	switch Replacement(strings.ToUpper(strings.TrimSpace(name))) {
	case "", ReplacementLRU:
		return ReplacementLRU, nil
	case ReplacementFIFO:
		return ReplacementFIFO, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownReplacement, name)
	}
}

// PageFrame is one slot of physical memory. An unbound frame has Bound == false
// and its page and process fields carry no meaning.
type PageFrame struct {
	Index      int   `json:"index"`
	Bound      bool  `json:"bound"`
	Page       int   `json:"page"`
	ProcessID  int   `json:"process_id"`
	LastAccess int64 `json:"last_access"`
	LoadedAt   int64 `json:"loaded_at"`
}

func (f PageFrame) Holds(page, processID int) bool {
	return f.Bound && f.Page == page && f.ProcessID == processID
}

type Binding struct {
	Page      int `json:"page"`
	ProcessID int `json:"process_id"`
}

type Outcome int

const (
	Hit Outcome = iota
	Fault
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "hit":
		*o = Hit
	case "fault":
		*o = Fault
	default:
		return fmt.Errorf("unknown access outcome %q", text)
	}
	return nil
}

// AccessResult describes what a single Access did to the frame table.
type AccessResult struct {
	Outcome Outcome  `json:"outcome"`
	Frame   int      `json:"frame"`
	Evicted *Binding `json:"evicted,omitempty"`
}

// Clock supplies the timestamps written into LastAccess and LoadedAt.
type Clock interface {
	Now() int64
}

type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// TickClock is a logical clock that advances by one on every reading, so that
// every access gets a distinct, strictly increasing timestamp.
type TickClock struct {
	tick int64
}

func (c *TickClock) Now() int64 {
	c.tick++
	return c.tick
}

type Config struct {
	Frames      int
	Replacement Replacement
	Clock       Clock
	Logger      *slog.Logger
}

type Stats struct {
	Frames       int     `json:"frames"`
	BoundFrames  int     `json:"bound_frames"`
	Faults       int64   `json:"faults"`
	Hits         int64   `json:"hits"`
	HitRatio     float64 `json:"hit_ratio"`
	UsagePercent float64 `json:"usage_percent"`
}
