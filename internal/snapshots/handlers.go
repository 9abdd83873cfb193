package snapshots

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ossim/backend/internal/audit"
	"ossim/backend/internal/auth"
	"ossim/backend/internal/storage"
)

type SnapshotHandlers struct {
	manager     *SnapshotManager
	runs        *storage.RunRegistry
	auditLogger *audit.AuditLogger
}

func NewSnapshotHandlers(manager *SnapshotManager, runs *storage.RunRegistry, auditLogger *audit.AuditLogger) *SnapshotHandlers {
	return &SnapshotHandlers{
		manager:     manager,
		runs:        runs,
		auditLogger: auditLogger,
	}
}

func (h *SnapshotHandlers) audit(c *gin.Context, action string, runID uuid.UUID, snapshotID string, err error) {
	if h.auditLogger == nil {
		return
	}
	username, _ := auth.CurrentUser(c)
	h.auditLogger.LogSnapshotAction(username, action, runID, snapshotID, c.ClientIP(), err)
}

func statusFor(err error) int {
	if errors.Is(err, ErrSnapshotNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// CreateSnapshot saves the current state of the live run :id with its full
// access log.
func (h *SnapshotHandlers) CreateSnapshot(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	run, err := h.runs.Get(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	metadata, err := h.manager.CreateSnapshot(req.Name, req.Description, run.Snapshot(0), req.Tags)
	if err != nil {
		h.audit(c, audit.ActionSnapshotSaved, runID, "", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.audit(c, audit.ActionSnapshotSaved, runID, metadata.ID, nil)

	c.JSON(http.StatusCreated, metadata)
}

// ListSnapshots filters by ?run_id, ?tag and a free-text ?q over name,
// description and tags.
func (h *SnapshotHandlers) ListSnapshots(c *gin.Context) {
	runID := uuid.Nil
	if raw := c.Query("run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
			return
		}
		runID = id
	}

	snapshots := h.manager.ListSnapshots(runID, c.Query("tag"))
	if q := strings.ToLower(strings.TrimSpace(c.Query("q"))); q != "" {
		filtered := make([]*SnapshotMetadata, 0, len(snapshots))
		for _, s := range snapshots {
			if matchesQuery(s, q) {
				filtered = append(filtered, s)
			}
		}
		snapshots = filtered
	}

	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

func matchesQuery(s *SnapshotMetadata, q string) bool {
	if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.Description), q) {
		return true
	}
	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (h *SnapshotHandlers) GetSnapshot(c *gin.Context) {
	snapshot, err := h.manager.LoadSnapshot(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *SnapshotHandlers) DeleteSnapshot(c *gin.Context) {
	id := c.Param("id")
	runID := uuid.Nil
	if snap, err := h.manager.Metadata(id); err == nil {
		runID = snap.RunID
	}

	if err := h.manager.DeleteSnapshot(id); err != nil {
		h.audit(c, audit.ActionSnapshotDelete, runID, id, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	h.audit(c, audit.ActionSnapshotDelete, runID, id, nil)

	c.JSON(http.StatusOK, gin.H{"message": "snapshot deleted"})
}

func (h *SnapshotHandlers) TagSnapshot(c *gin.Context) {
	var req struct {
		Tags []string `json:"tags" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.TagSnapshot(c.Param("id"), req.Tags); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "tags added"})
}

func (h *SnapshotHandlers) GetSnapshotStats(c *gin.Context) {
	snapshots := h.manager.ListSnapshots(uuid.Nil, "")

	var totalSize int64
	tagCounts := make(map[string]int)
	runs := make(map[uuid.UUID]struct{})
	for _, snapshot := range snapshots {
		totalSize += snapshot.Size
		runs[snapshot.RunID] = struct{}{}
		for _, tag := range snapshot.Tags {
			tagCounts[tag]++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_snapshots": len(snapshots),
		"total_size":      totalSize,
		"runs":            len(runs),
		"tag_counts":      tagCounts,
	})
}
