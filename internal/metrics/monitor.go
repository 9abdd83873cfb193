package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ossim/backend/internal/engine"
)

const (
	MetricMemoryUsage = "memory_usage"
	MetricFaultRate   = "fault_rate"
	MetricConflicts   = "conflicts"
)

const (
	UpdateInitial  = "initial"
	UpdateStep     = "step"
	UpdateAlert    = "alert"
	UpdateComplete = "complete"
)

const writeWait = 5 * time.Second

type Threshold struct {
	MetricName string  `json:"metric_name" binding:"required"`
	MaxValue   float64 `json:"max_value"`
	Enabled    bool    `json:"enabled"`
}

type Alert struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Step      int       `json:"step"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Update struct {
	Type  string      `json:"type"`
	RunID uuid.UUID   `json:"run_id"`
	Data  interface{} `json:"data"`
	Time  time.Time   `json:"timestamp"`
}

// StepUpdate is the payload of a step message.
type StepUpdate struct {
	Result   engine.StepResult `json:"result"`
	Snapshot engine.Snapshot   `json:"snapshot"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(update)
}

// Monitor turns run steps into samples, checks them against thresholds and
// pushes updates to WebSocket subscribers of each run. It is an engine.Observer.
type Monitor struct {
	collector   *Collector
	thresholds  map[string]Threshold
	alerts      []Alert
	maxAlerts   int
	breached    map[uuid.UUID]map[string]bool
	subscribers map[uuid.UUID]map[*subscriber]bool
	mu          sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

func NewMonitor(collector *Collector, maxAlerts int, logger *slog.Logger) *Monitor {
	if maxAlerts <= 0 {
		maxAlerts = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		collector:   collector,
		thresholds:  make(map[string]Threshold),
		alerts:      make([]Alert, 0),
		maxAlerts:   maxAlerts,
		breached:    make(map[uuid.UUID]map[string]bool),
		subscribers: make(map[uuid.UUID]map[*subscriber]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "monitor"),
	}
	m.setDefaultThresholds()
	return m
}

func (m *Monitor) setDefaultThresholds() {
	m.thresholds[MetricMemoryUsage] = Threshold{
		MetricName: MetricMemoryUsage,
		MaxValue:   100,
		Enabled:    true,
	}
	m.thresholds[MetricFaultRate] = Threshold{
		MetricName: MetricFaultRate,
		MaxValue:   0.75,
		Enabled:    true,
	}
	m.thresholds[MetricConflicts] = Threshold{
		MetricName: MetricConflicts,
		MaxValue:   10,
		Enabled:    true,
	}
}

func (m *Monitor) OnStep(runID uuid.UUID, result engine.StepResult, snap engine.Snapshot) {
	point := PointFromSnapshot(snap)
	m.collector.Record(runID, point)
	m.broadcast(runID, Update{
		Type:  UpdateStep,
		RunID: runID,
		Data:  StepUpdate{Result: result, Snapshot: snap},
		Time:  point.Timestamp,
	})
	m.checkThresholds(runID, point)
}

func (m *Monitor) OnComplete(runID uuid.UUID, summary engine.Summary) {
	m.broadcast(runID, Update{
		Type:  UpdateComplete,
		RunID: runID,
		Data:  summary,
		Time:  time.Now(),
	})
	m.mu.Lock()
	delete(m.breached, runID)
	m.mu.Unlock()
}

func (m *Monitor) checkThresholds(runID uuid.UUID, p Point) {
	values := []struct {
		name  string
		value float64
	}{
		{MetricMemoryUsage, p.MemoryUsage},
		{MetricFaultRate, p.FaultRate()},
		{MetricConflicts, float64(p.Conflicts)},
	}

	m.mu.Lock()
	fired := make([]Alert, 0)
	for _, v := range values {
		name, value := v.name, v.value
		threshold, exists := m.thresholds[name]
		if !exists || !threshold.Enabled {
			continue
		}
		over := value >= threshold.MaxValue
		if m.breached[runID] == nil {
			m.breached[runID] = make(map[string]bool)
		}
		// alert on the crossing only, not on every step spent above
		if over && !m.breached[runID][name] {
			fired = append(fired, newAlert(runID, p, name, value, threshold.MaxValue))
		}
		m.breached[runID][name] = over
	}
	for _, alert := range fired {
		m.alerts = append(m.alerts, alert)
		if len(m.alerts) > m.maxAlerts {
			m.alerts = m.alerts[1:]
		}
	}
	m.mu.Unlock()

	for _, alert := range fired {
		m.logger.Warn("threshold crossed",
			"run_id", runID.String(),
			"metric", alert.Metric,
			"value", alert.Value,
			"threshold", alert.Threshold,
		)
		m.broadcast(runID, Update{Type: UpdateAlert, RunID: runID, Data: alert, Time: alert.Timestamp})
	}
}

func newAlert(runID uuid.UUID, p Point, metric string, value, threshold float64) Alert {
	severity := "info"
	if metric == MetricFaultRate || metric == MetricConflicts {
		severity = "warning"
	}
	return Alert{
		ID:        uuid.New(),
		RunID:     runID,
		Step:      p.Step,
		Metric:    metric,
		Value:     value,
		Threshold: threshold,
		Severity:  severity,
		Message:   formatAlertMessage(metric, value, threshold),
		Timestamp: time.Now(),
	}
}

func formatAlertMessage(metric string, value, threshold float64) string {
	switch metric {
	case MetricMemoryUsage:
		return fmt.Sprintf("Memory usage %.1f%% reached threshold %.1f%%", value, threshold)
	case MetricFaultRate:
		return fmt.Sprintf("Page fault rate %.2f reached threshold %.2f", value, threshold)
	case MetricConflicts:
		return fmt.Sprintf("File conflicts %.0f reached threshold %.0f", value, threshold)
	default:
		return fmt.Sprintf("Metric %s value %.2f reached threshold %.2f", metric, value, threshold)
	}
}

// HandleWebSocket streams updates of one run until the client disconnects.
// The first message carries the current snapshot.
func (m *Monitor) HandleWebSocket(w http.ResponseWriter, r *http.Request, runID uuid.UUID, initial engine.Snapshot) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	// clear the server read timeout inherited from the upgrade request
	conn.SetReadDeadline(time.Time{})

	sub := &subscriber{conn: conn}
	m.mu.Lock()
	if m.subscribers[runID] == nil {
		m.subscribers[runID] = make(map[*subscriber]bool)
	}
	m.subscribers[runID][sub] = true
	m.mu.Unlock()

	defer m.unsubscribe(runID, sub)

	if err := sub.send(Update{Type: UpdateInitial, RunID: runID, Data: initial, Time: time.Now()}); err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (m *Monitor) unsubscribe(runID uuid.UUID, sub *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers[runID], sub)
	if len(m.subscribers[runID]) == 0 {
		delete(m.subscribers, runID)
	}
}

func (m *Monitor) broadcast(runID uuid.UUID, update Update) {
	m.mu.RLock()
	subs := make([]*subscriber, 0, len(m.subscribers[runID]))
	for sub := range m.subscribers[runID] {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.send(update); err != nil {
			m.unsubscribe(runID, sub)
			sub.conn.Close()
		}
	}
}

func (m *Monitor) Subscribers(runID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[runID])
}

// GetAlerts returns the kept alerts, optionally only those of one run.
func (m *Monitor) GetAlerts(runID uuid.UUID) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if runID == uuid.Nil || a.RunID == runID {
			result = append(result, a)
		}
	}
	return result
}

func (m *Monitor) SetThreshold(name string, threshold Threshold) {
	m.mu.Lock()
	threshold.MetricName = name
	m.thresholds[name] = threshold
	m.mu.Unlock()
}

func (m *Monitor) GetThresholds() map[string]Threshold {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Threshold)
	for k, v := range m.thresholds {
		result[k] = v
	}
	return result
}

func (m *Monitor) Forget(runID uuid.UUID) {
	m.collector.Forget(runID)
	m.mu.Lock()
	delete(m.breached, runID)
	m.mu.Unlock()
}
