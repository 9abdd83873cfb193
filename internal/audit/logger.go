// Package audit records control actions taken on simulation runs as JSON
// lines.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	ActionLogin          = "login"
	ActionRunCreated     = "run_created"
	ActionRunStepped     = "run_stepped"
	ActionRunStarted     = "run_started"
	ActionRunPaused      = "run_paused"
	ActionRunResumed     = "run_resumed"
	ActionRunStopped     = "run_stopped"
	ActionRunDeleted     = "run_deleted"
	ActionRunCompleted   = "run_completed"
	ActionSnapshotSaved  = "snapshot_saved"
	ActionSnapshotDelete = "snapshot_deleted"
)

type AuditLogger struct {
	logFile    *os.File
	buffer     []AuditEntry
	bufferSize int
	mu         sync.Mutex
	writeMu    sync.Mutex
	flushChan  chan struct{}
	stopChan   chan struct{}
	doneChan   chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Details   Details   `json:"details"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

type Details struct {
	RunID      *uuid.UUID `json:"run_id,omitempty"`
	SnapshotID string     `json:"snapshot_id,omitempty"`
	Parameters string     `json:"parameters,omitempty"`
	Step       int        `json:"step,omitempty"`
}

type AuditConfig struct {
	LogPath       string        `json:"log_path"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
}

func NewAuditLogger(config AuditConfig, logger *slog.Logger) (*AuditLogger, error) {
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(config.LogPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logFile, err := os.OpenFile(config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	al := &AuditLogger{
		logFile:    logFile,
		buffer:     make([]AuditEntry, 0, config.BufferSize),
		bufferSize: config.BufferSize,
		flushChan:  make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		logger:     logger.With("component", "audit"),
	}

	go al.flushWorker(config.FlushInterval)
	return al, nil
}

func (al *AuditLogger) Log(entry AuditEntry) {
	entry.ID = uuid.New()
	entry.Timestamp = time.Now().UTC()

	al.mu.Lock()
	al.buffer = append(al.buffer, entry)
	shouldFlush := len(al.buffer) >= al.bufferSize
	al.mu.Unlock()

	if shouldFlush {
		select {
		case al.flushChan <- struct{}{}:
		default:
		}
	}
}

func (al *AuditLogger) LogAction(username, action, resource string, details Details, ipAddress, userAgent string, err error) {
	entry := AuditEntry{
		Username:  username,
		Action:    action,
		Resource:  resource,
		Details:   details,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	al.Log(entry)
}

func (al *AuditLogger) LogLogin(username, ipAddress, userAgent string, err error) {
	al.LogAction(username, ActionLogin, "auth", Details{}, ipAddress, userAgent, err)
}

func (al *AuditLogger) LogRunAction(username, action string, runID uuid.UUID, ipAddress string, err error) {
	al.LogAction(username, action, "run", Details{RunID: &runID}, ipAddress, "", err)
}

func (al *AuditLogger) LogSnapshotAction(username, action string, runID uuid.UUID, snapshotID, ipAddress string, err error) {
	details := Details{SnapshotID: snapshotID}
	if runID != uuid.Nil {
		details.RunID = &runID
	}
	al.LogAction(username, action, "snapshot", details, ipAddress, "", err)
}

func (al *AuditLogger) flushWorker(interval time.Duration) {
	defer close(al.doneChan)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			al.flush()
		case <-al.flushChan:
			al.flush()
		case <-al.stopChan:
			al.flush()
			return
		}
	}
}

func (al *AuditLogger) flush() {
	al.mu.Lock()
	if len(al.buffer) == 0 {
		al.mu.Unlock()
		return
	}
	entries := make([]AuditEntry, len(al.buffer))
	copy(entries, al.buffer)
	al.buffer = al.buffer[:0]
	al.mu.Unlock()

	al.writeMu.Lock()
	defer al.writeMu.Unlock()

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			al.logger.Error("failed to encode audit entry", "action", entry.Action, "error", err)
			continue
		}
		if _, err := al.logFile.Write(append(data, '\n')); err != nil {
			al.logger.Error("failed to write audit entry", "error", err)
			return
		}
	}
	al.logFile.Sync()
}

func (al *AuditLogger) Close() error {
	var err error
	al.closeOnce.Do(func() {
		close(al.stopChan)
		<-al.doneChan
		err = al.logFile.Close()
	})
	return err
}

type AuditFilter struct {
	Username  string     `json:"username,omitempty"`
	Action    string     `json:"action,omitempty"`
	Resource  string     `json:"resource,omitempty"`
	RunID     *uuid.UUID `json:"run_id,omitempty"`
	StartTime time.Time  `json:"start_time,omitempty"`
	EndTime   time.Time  `json:"end_time,omitempty"`
	Success   *bool      `json:"success,omitempty"`
	Limit     int        `json:"limit"`
}

// Query flushes pending entries and scans the log file in write order. A
// limit of zero or less returns every match.
func (al *AuditLogger) Query(filter AuditFilter) ([]AuditEntry, error) {
	al.flush()

	al.writeMu.Lock()
	defer al.writeMu.Unlock()

	file, err := os.Open(al.logFile.Name())
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entries := make([]AuditEntry, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !al.matchesFilter(entry, filter) {
			continue
		}
		entries = append(entries, entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}
	return entries, scanner.Err()
}

func (al *AuditLogger) matchesFilter(entry AuditEntry, filter AuditFilter) bool {
	if filter.Username != "" && entry.Username != filter.Username {
		return false
	}
	if filter.Action != "" && entry.Action != filter.Action {
		return false
	}
	if filter.Resource != "" && entry.Resource != filter.Resource {
		return false
	}
	if filter.RunID != nil && (entry.Details.RunID == nil || *entry.Details.RunID != *filter.RunID) {
		return false
	}
	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.Success != nil && entry.Success != *filter.Success {
		return false
	}
	return true
}
