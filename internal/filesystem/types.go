package filesystem

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

var DefaultResourceNames = []string{"archivo1.txt", "archivo2.txt", "archivo3.txt"}

type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusConflict Status = "CONFLICT"
)

// FileResource is a named resource guarded by an exclusive, non-blocking lock.
type FileResource struct {
	Name string
	mu   sync.Mutex
}

func (r *FileResource) tryAcquire() bool { return r.mu.TryLock() }

func (r *FileResource) release() { r.mu.Unlock() }

// AccessLogEntry is written once and never modified.
type AccessLogEntry struct {
	ID        uuid.UUID `json:"id"`
	ProcessID int       `json:"process_id"`
	Resource  string    `json:"resource"`
	Mode      Mode      `json:"mode"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type Config struct {
	Names []string
	// Hold is how long a successful access keeps the resource locked.
	Hold time.Duration
	Now  func() time.Time
}

type Stats struct {
	Resources int   `json:"resources"`
	Accesses  int   `json:"accesses"`
	Successes int   `json:"successes"`
	Conflicts int64 `json:"conflicts"`
}
