package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"ossim/backend/internal/engine"
)

// Point is one sample of a run, taken after a step.
type Point struct {
	Step          int       `json:"step"`
	Time          int       `json:"time"`
	Faults        int64     `json:"faults"`
	Hits          int64     `json:"hits"`
	MemoryUsage   float64   `json:"memory_usage"`
	Conflicts     int64     `json:"conflicts"`
	Completed     int       `json:"completed"`
	AvgWaiting    float64   `json:"avg_waiting_time"`
	AvgTurnaround float64   `json:"avg_turnaround_time"`
	Timestamp     time.Time `json:"timestamp"`
}

func PointFromSnapshot(snap engine.Snapshot) Point {
	m := snap.Metrics
	return Point{
		Step:          snap.Step,
		Time:          snap.Time,
		Faults:        m.Memory.Faults,
		Hits:          m.Memory.Hits,
		MemoryUsage:   m.Memory.UsagePercent,
		Conflicts:     m.Files.Conflicts,
		Completed:     m.Scheduler.Completed,
		AvgWaiting:    m.Scheduler.AvgWaitingTime,
		AvgTurnaround: m.Scheduler.AvgTurnaroundTime,
		Timestamp:     snap.TakenAt,
	}
}

// FaultRate is faults over all references so far, or 0 before any.
func (p Point) FaultRate() float64 {
	total := p.Faults + p.Hits
	if total == 0 {
		return 0
	}
	return float64(p.Faults) / float64(total)
}

// Collector keeps a bounded time series per run. Once a series holds
// maxDataPoints samples the oldest is dropped for each new one.
type Collector struct {
	series        map[uuid.UUID][]Point
	maxDataPoints int
	mu            sync.RWMutex

	startTime time.Time
}

func NewCollector(maxDataPoints int) *Collector {
	if maxDataPoints <= 0 {
		maxDataPoints = 1000
	}
	return &Collector{
		series:        make(map[uuid.UUID][]Point),
		maxDataPoints: maxDataPoints,
		startTime:     time.Now(),
	}
}

func (c *Collector) Record(runID uuid.UUID, p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	series := append(c.series[runID], p)
	if len(series) > c.maxDataPoints {
		series = series[len(series)-c.maxDataPoints:]
	}
	c.series[runID] = series
}

// Series returns the most recent limit samples of a run, oldest first. A limit
// of zero or less returns everything kept.
func (c *Collector) Series(runID uuid.UUID, limit int) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series := c.series[runID]
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	result := make([]Point, len(series))
	copy(result, series)
	return result
}

func (c *Collector) Latest(runID uuid.UUID) (Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series := c.series[runID]
	if len(series) == 0 {
		return Point{}, false
	}
	return series[len(series)-1], true
}

func (c *Collector) Forget(runID uuid.UUID) {
	c.mu.Lock()
	delete(c.series, runID)
	c.mu.Unlock()
}

func (c *Collector) Runs() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.series)
}

func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// SystemMetrics describes the server process itself.
type SystemMetrics struct {
	GoRoutines   int           `json:"goroutines"`
	HeapAlloc    uint64        `json:"heap_alloc"`
	HeapSys      uint64        `json:"heap_sys"`
	NumGC        uint32        `json:"num_gc"`
	GCPauseTotal time.Duration `json:"gc_pause_total"`
}

func GetSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		GoRoutines:   runtime.NumGoroutine(),
		HeapAlloc:    m.HeapAlloc,
		HeapSys:      m.HeapSys,
		NumGC:        m.NumGC,
		GCPauseTotal: time.Duration(m.PauseTotalNs),
	}
}
