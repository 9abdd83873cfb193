package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ossim/backend/internal/engine"
	"ossim/backend/internal/storage"
)

type MetricsHandlers struct {
	collector *Collector
	monitor   *Monitor
	reporter  *Reporter
	runs      *storage.RunRegistry
	results   storage.ResultStore
}

func NewMetricsHandlers(collector *Collector, monitor *Monitor, reporter *Reporter, runs *storage.RunRegistry, results storage.ResultStore) *MetricsHandlers {
	return &MetricsHandlers{
		collector: collector,
		monitor:   monitor,
		reporter:  reporter,
		runs:      runs,
		results:   results,
	}
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return uuid.Nil, false
	}
	return id, true
}

// summaryFor prefers the live run and falls back to the stored result.
func (h *MetricsHandlers) summaryFor(c *gin.Context, id uuid.UUID) (engine.Summary, bool) {
	if run, err := h.runs.Get(id); err == nil {
		return run.Summary(), true
	}
	if h.results != nil {
		result, err := h.results.Get(c.Request.Context(), id)
		if err == nil {
			return result.Summary, true
		}
		if !errors.Is(err, storage.ErrResultNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return engine.Summary{}, false
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	return engine.Summary{}, false
}

func (h *MetricsHandlers) GetRunMetrics(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	run, err := h.runs.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		limit = 100
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":  id,
		"current": run.Snapshot(0).Metrics,
		"series":  h.collector.Series(id, limit),
	})
}

func (h *MetricsHandlers) GetSystemMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"system":      GetSystemMetrics(),
		"live_runs":   h.runs.Len(),
		"tracked":     h.collector.Runs(),
		"uptime_secs": int64(h.collector.Uptime().Seconds()),
	})
}

func (h *MetricsHandlers) GetAlerts(c *gin.Context) {
	runID := uuid.Nil
	if raw := c.Query("run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
			return
		}
		runID = id
	}
	c.JSON(http.StatusOK, gin.H{"alerts": h.monitor.GetAlerts(runID)})
}

func (h *MetricsHandlers) SetThreshold(c *gin.Context) {
	var threshold Threshold
	if err := c.ShouldBindJSON(&threshold); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch threshold.MetricName {
	case MetricMemoryUsage, MetricFaultRate, MetricConflicts:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric " + threshold.MetricName})
		return
	}

	h.monitor.SetThreshold(threshold.MetricName, threshold)
	c.JSON(http.StatusOK, gin.H{"message": "threshold updated"})
}

func (h *MetricsHandlers) GetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"thresholds": h.monitor.GetThresholds()})
}

// ExportReport serves ?format=json (default) or ?format=csv.
func (h *MetricsHandlers) ExportReport(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	summary, ok := h.summaryFor(c, id)
	if !ok {
		return
	}
	report := h.reporter.GenerateReport(summary)

	var (
		data        []byte
		err         error
		contentType string
		filename    string
	)
	switch c.DefaultQuery("format", "json") {
	case "json":
		data, err = h.reporter.ExportJSON(report)
		contentType = "application/json"
		filename = "run-" + id.String() + ".json"
	case "csv":
		data, err = h.reporter.ExportCSV(report)
		contentType = "text/csv"
		filename = "run-" + id.String() + ".csv"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, data)
}

// CompareRuns takes ?ids=a,b,... and compares the runs against the first.
func (h *MetricsHandlers) CompareRuns(c *gin.Context) {
	raw := c.QueryArray("ids")
	if len(raw) == 1 {
		raw = strings.FieldsFunc(raw[0], func(r rune) bool { return r == ',' })
	}
	if len(raw) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least two run IDs are required"})
		return
	}

	reports := make([]*Report, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID " + s})
			return
		}
		summary, ok := h.summaryFor(c, id)
		if !ok {
			return
		}
		reports = append(reports, h.reporter.GenerateReport(summary))
	}
	c.JSON(http.StatusOK, gin.H{"runs": h.reporter.Compare(reports)})
}

func (h *MetricsHandlers) HandleWebSocket(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	run, err := h.runs.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.monitor.HandleWebSocket(c.Writer, c.Request, id, run.Snapshot(0))
}
