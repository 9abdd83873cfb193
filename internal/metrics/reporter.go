package metrics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ossim/backend/internal/engine"
)

type Report struct {
	Title       string        `json:"title"`
	RunID       uuid.UUID     `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     ReportSummary `json:"summary"`
	Processes   []ProcessRow  `json:"processes"`
	Series      []Point       `json:"series"`
	Alerts      []Alert       `json:"alerts"`
}

type ReportSummary struct {
	Policy            string  `json:"policy"`
	Quantum           int     `json:"quantum"`
	Replacement       string  `json:"replacement"`
	Frames            int     `json:"frames"`
	Done              bool    `json:"done"`
	Steps             int     `json:"steps"`
	Time              int     `json:"time"`
	Processes         int     `json:"processes"`
	Completed         int     `json:"completed"`
	AvgWaitingTime    float64 `json:"avg_waiting_time"`
	AvgTurnaroundTime float64 `json:"avg_turnaround_time"`
	Throughput        float64 `json:"throughput"`
	PageFaults        int64   `json:"page_faults"`
	PageHits          int64   `json:"page_hits"`
	FaultRatio        float64 `json:"fault_ratio"`
	FileAccesses      int     `json:"file_accesses"`
	Conflicts         int64   `json:"conflicts"`
	PerformanceGrade  string  `json:"performance_grade"`
}

type ProcessRow struct {
	ID          int    `json:"id"`
	Priority    int    `json:"priority"`
	BurstTime   int    `json:"burst_time"`
	ArrivalTime int    `json:"arrival_time"`
	StartTime   *int   `json:"start_time"`
	FinishTime  *int   `json:"finish_time"`
	WaitingTime int    `json:"waiting_time"`
	Turnaround  int    `json:"turnaround_time"`
	State       string `json:"state"`
}

type Reporter struct {
	collector *Collector
	monitor   *Monitor
}

func NewReporter(collector *Collector, monitor *Monitor) *Reporter {
	return &Reporter{collector: collector, monitor: monitor}
}

// GenerateReport builds the report of a run from its summary and whatever
// samples and alerts are still kept for it.
func (r *Reporter) GenerateReport(summary engine.Summary) *Report {
	report := &Report{
		Title:       fmt.Sprintf("%s / %s run report", summary.Config.Policy, summary.Config.Replacement),
		RunID:       summary.RunID,
		GeneratedAt: time.Now(),
		Summary:     r.generateSummary(summary),
		Processes:   make([]ProcessRow, 0, len(summary.Processes)),
		Series:      r.collector.Series(summary.RunID, 0),
		Alerts:      []Alert{},
	}
	if r.monitor != nil {
		report.Alerts = r.monitor.GetAlerts(summary.RunID)
	}

	for _, p := range summary.Processes {
		row := ProcessRow{
			ID:          p.ID,
			Priority:    p.Priority,
			BurstTime:   p.BurstTime,
			ArrivalTime: p.ArrivalTime,
			StartTime:   p.StartTime,
			FinishTime:  p.FinishTime,
			State:       p.State.String(),
		}
		if p.FinishTime != nil {
			row.WaitingTime = p.WaitingTime
			row.Turnaround = p.Turnaround()
		}
		report.Processes = append(report.Processes, row)
	}
	return report
}

func (r *Reporter) generateSummary(s engine.Summary) ReportSummary {
	m := s.Metrics
	rs := ReportSummary{
		Policy:            string(s.Config.Policy),
		Quantum:           s.Config.Quantum,
		Replacement:       string(s.Config.Replacement),
		Frames:            s.Config.Frames,
		Done:              s.Done,
		Steps:             s.Steps,
		Time:              s.Time,
		Processes:         m.Total,
		Completed:         m.Scheduler.Completed,
		AvgWaitingTime:    m.Scheduler.AvgWaitingTime,
		AvgTurnaroundTime: m.Scheduler.AvgTurnaroundTime,
		PageFaults:        m.Memory.Faults,
		PageHits:          m.Memory.Hits,
		FileAccesses:      m.Files.Accesses,
		Conflicts:         m.Files.Conflicts,
	}
	if s.Time > 0 {
		rs.Throughput = float64(rs.Completed) / float64(s.Time)
	}
	if refs := rs.PageFaults + rs.PageHits; refs > 0 {
		rs.FaultRatio = float64(rs.PageFaults) / float64(refs)
	}
	rs.PerformanceGrade = calculatePerformanceGrade(rs, averageBurst(s))
	return rs
}

func averageBurst(s engine.Summary) float64 {
	if len(s.Processes) == 0 {
		return 0
	}
	total := 0
	for _, p := range s.Processes {
		total += p.BurstTime
	}
	return float64(total) / float64(len(s.Processes))
}

// calculatePerformanceGrade scores a finished run on waiting time relative to
// the mean burst, page fault ratio and conflict rate.
func calculatePerformanceGrade(rs ReportSummary, avgBurst float64) string {
	if !rs.Done || rs.Completed == 0 {
		return "N/A"
	}
	score := 100

	if avgBurst > 0 {
		switch ratio := rs.AvgWaitingTime / avgBurst; {
		case ratio > 4:
			score -= 30
		case ratio > 2:
			score -= 15
		case ratio > 1:
			score -= 5
		}
	}

	switch {
	case rs.FaultRatio > 0.8:
		score -= 20
	case rs.FaultRatio > 0.5:
		score -= 10
	}

	if rs.FileAccesses > 0 && float64(rs.Conflicts)/float64(rs.FileAccesses) > 0.25 {
		score -= 10
	}

	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func (r *Reporter) ExportJSON(report *Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// ExportCSV writes the per-process table.
func (r *Reporter) ExportCSV(report *Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"PID", "Priority", "Burst", "Arrival", "Start", "Finish", "Waiting", "Turnaround", "State"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, p := range report.Processes {
		record := []string{
			strconv.Itoa(p.ID),
			strconv.Itoa(p.Priority),
			strconv.Itoa(p.BurstTime),
			strconv.Itoa(p.ArrivalTime),
			optionalInt(p.StartTime),
			optionalInt(p.FinishTime),
			strconv.Itoa(p.WaitingTime),
			strconv.Itoa(p.Turnaround),
			p.State,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// RunComparison lines up several runs, usually the same workload under
// different policies.
type RunComparison struct {
	RunID             uuid.UUID `json:"run_id"`
	Policy            string    `json:"policy"`
	Replacement       string    `json:"replacement"`
	AvgWaitingTime    float64   `json:"avg_waiting_time"`
	AvgTurnaroundTime float64   `json:"avg_turnaround_time"`
	FaultRatio        float64   `json:"fault_ratio"`
	Grade             string    `json:"performance_grade"`
	WaitingChange     float64   `json:"waiting_change_percent"`
	TurnaroundChange  float64   `json:"turnaround_change_percent"`
}

// Compare reports each run relative to the first one. It returns nil for fewer
// than two reports.
func (r *Reporter) Compare(reports []*Report) []RunComparison {
	if len(reports) < 2 {
		return nil
	}
	result := make([]RunComparison, len(reports))
	for i, rep := range reports {
		result[i] = RunComparison{
			RunID:             rep.RunID,
			Policy:            rep.Summary.Policy,
			Replacement:       rep.Summary.Replacement,
			AvgWaitingTime:    rep.Summary.AvgWaitingTime,
			AvgTurnaroundTime: rep.Summary.AvgTurnaroundTime,
			FaultRatio:        rep.Summary.FaultRatio,
			Grade:             rep.Summary.PerformanceGrade,
		}
	}
	baseline := result[0]
	for i := 1; i < len(result); i++ {
		result[i].WaitingChange = percentChange(baseline.AvgWaitingTime, result[i].AvgWaitingTime)
		result[i].TurnaroundChange = percentChange(baseline.AvgTurnaroundTime, result[i].AvgTurnaroundTime)
	}
	return result
}

func percentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
