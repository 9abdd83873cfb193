package filesystem

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileSystem owns a fixed set of resources. Access may be called from several
// goroutines at once; that is the only way a CONFLICT can happen.
type FileSystem struct {
	resources map[string]*FileResource
	names     []string
	hold      time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.RWMutex
	log       []AccessLogEntry
	conflicts int64
}

func New(cfg Config, logger *slog.Logger) (*FileSystem, error) {
	names := cfg.Names
	if len(names) == 0 {
		names = DefaultResourceNames
	}

	resources := make(map[string]*FileResource, len(names))
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, ErrEmptyResourceName
		}
		if _, exists := resources[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, name)
		}
		resources[name] = &FileResource{Name: name}
		ordered = append(ordered, name)
	}
	if len(ordered) == 0 {
		return nil, ErrNoResources
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FileSystem{
		resources: resources,
		names:     ordered,
		hold:      cfg.Hold,
		now:       now,
		logger:    logger.With("component", "filesystem"),
		log:       make([]AccessLogEntry, 0),
	}, nil
}

// Access tries to take the named resource without blocking. On success the
// resource is held for the configured duration and released before returning.
// A name outside the configured set is refused without touching the log.
func (fs *FileSystem) Access(name string, processID int, mode Mode) bool {
	resource, exists := fs.resources[name]
	if !exists {
		fs.logger.Warn("access to unknown resource", "resource", name, "pid", processID)
		return false
	}

	if !resource.tryAcquire() {
		fs.mu.Lock()
		fs.conflicts++
		fs.appendLocked(processID, name, mode, StatusConflict)
		fs.mu.Unlock()

		fs.logger.Info("file conflict", "resource", name, "pid", processID, "mode", string(mode))
		return false
	}

	fs.mu.Lock()
	fs.appendLocked(processID, name, mode, StatusSuccess)
	fs.mu.Unlock()

	if fs.hold > 0 {
		time.Sleep(fs.hold)
	}
	resource.release()
	return true
}

func (fs *FileSystem) appendLocked(processID int, name string, mode Mode, status Status) {
	fs.log = append(fs.log, AccessLogEntry{
		ID:        uuid.New(),
		ProcessID: processID,
		Resource:  name,
		Mode:      mode,
		Status:    status,
		Timestamp: fs.now(),
	})
}

func (fs *FileSystem) Log() []AccessLogEntry {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	result := make([]AccessLogEntry, len(fs.log))
	copy(result, fs.log)
	return result
}

// Tail returns at most the last n entries. n <= 0 returns the whole log.
func (fs *FileSystem) Tail(n int) []AccessLogEntry {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries := fs.log
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	result := make([]AccessLogEntry, len(entries))
	copy(result, entries)
	return result
}

// Since returns the entries appended after the first offset entries.
func (fs *FileSystem) Since(offset int) []AccessLogEntry {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(fs.log) {
		return []AccessLogEntry{}
	}
	result := make([]AccessLogEntry, len(fs.log)-offset)
	copy(result, fs.log[offset:])
	return result
}

func (fs *FileSystem) Conflicts() int64 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.conflicts
}

func (fs *FileSystem) Names() []string {
	result := make([]string, len(fs.names))
	copy(result, fs.names)
	return result
}

func (fs *FileSystem) Stats() Stats {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	stats := Stats{
		Resources: len(fs.names),
		Accesses:  len(fs.log),
		Conflicts: fs.conflicts,
	}
	for _, entry := range fs.log {
		if entry.Status == StatusSuccess {
			stats.Successes++
		}
	}
	return stats
}
