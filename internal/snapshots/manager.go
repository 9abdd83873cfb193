// Package snapshots saves detached run snapshots to disk as gzip-compressed
// JSON with a sha256 checksum, indexed by registry.json.
package snapshots

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ossim/backend/internal/engine"
)

const formatVersion = "1.0"

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrChecksumMismatch = errors.New("snapshot integrity check failed")
)

type SnapshotManager struct {
	storageDir string
	registry   map[string]*SnapshotMetadata
	mu         sync.RWMutex
	now        func() time.Time
}

type Snapshot struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	Tags        []string          `json:"tags"`
	Version     string            `json:"version"`
	State       engine.Snapshot   `json:"state"`
	Metadata    map[string]string `json:"metadata"`
}

type SnapshotMetadata struct {
	ID          string            `json:"id"`
	RunID       uuid.UUID         `json:"run_id"`
	Step        int               `json:"step"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	Tags        []string          `json:"tags"`
	Version     string            `json:"version"`
	Checksum    string            `json:"checksum"`
	Size        int64             `json:"size"`
	FilePath    string            `json:"file_path"`
	Metadata    map[string]string `json:"metadata"`
}

func NewSnapshotManager(storageDir string) (*SnapshotManager, error) {
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	sm := &SnapshotManager{
		storageDir: storageDir,
		registry:   make(map[string]*SnapshotMetadata),
		now:        time.Now,
	}

	if err := sm.loadRegistry(); err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	return sm, nil
}

func (sm *SnapshotManager) CreateSnapshot(name, description string, state engine.Snapshot, tags []string) (*SnapshotMetadata, error) {
	if name == "" {
		name = fmt.Sprintf("%s-step-%d", state.RunID.String()[:8], state.Step)
	}
	if tags == nil {
		tags = []string{}
	}
	snapshot := &Snapshot{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   sm.now(),
		Tags:        tags,
		Version:     formatVersion,
		State:       state,
		Metadata: map[string]string{
			"run_id":      state.RunID.String(),
			"policy":      string(state.Policy),
			"replacement": string(state.Replacement),
			"step":        fmt.Sprintf("%d", state.Step),
			"done":        fmt.Sprintf("%t", state.Done),
		},
	}

	data, err := serializeSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	filePath := filepath.Join(sm.storageDir, snapshot.ID+".snap")
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	metadata := &SnapshotMetadata{
		ID:          snapshot.ID,
		RunID:       state.RunID,
		Step:        state.Step,
		Name:        snapshot.Name,
		Description: snapshot.Description,
		CreatedAt:   snapshot.CreatedAt,
		Tags:        snapshot.Tags,
		Version:     snapshot.Version,
		Checksum:    checksum(data),
		Size:        int64(len(data)),
		FilePath:    filePath,
		Metadata:    snapshot.Metadata,
	}

	sm.mu.Lock()
	sm.registry[snapshot.ID] = metadata
	err = sm.saveRegistryLocked()
	sm.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to update registry: %w", err)
	}

	return metadata, nil
}

func (sm *SnapshotManager) LoadSnapshot(id string) (*Snapshot, error) {
	sm.mu.RLock()
	metadata, exists := sm.registry[id]
	sm.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}

	data, err := os.ReadFile(metadata.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	if checksum(data) != metadata.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, id)
	}

	snapshot, err := deserializeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	return snapshot, nil
}

// Metadata returns a copy of the index entry for id.
func (sm *SnapshotManager) Metadata(id string) (SnapshotMetadata, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	metadata, exists := sm.registry[id]
	if !exists {
		return SnapshotMetadata{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	out := *metadata
	out.Tags = append([]string(nil), metadata.Tags...)
	return out, nil
}

// ListSnapshots returns the index newest first, optionally narrowed to one
// run (uuid.Nil for all) and one tag ("" for all).
func (sm *SnapshotManager) ListSnapshots(runID uuid.UUID, tag string) []*SnapshotMetadata {
	sm.mu.RLock()
	snapshots := make([]*SnapshotMetadata, 0, len(sm.registry))
	for _, metadata := range sm.registry {
		if runID != uuid.Nil && metadata.RunID != runID {
			continue
		}
		if tag != "" && !hasTag(metadata.Tags, tag) {
			continue
		}
		entry := *metadata
		entry.Tags = append([]string(nil), metadata.Tags...)
		snapshots = append(snapshots, &entry)
	}
	sm.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
		}
		return snapshots[i].ID < snapshots[j].ID
	})
	return snapshots
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (sm *SnapshotManager) TagSnapshot(id string, tags []string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	metadata, exists := sm.registry[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	for _, tag := range tags {
		if tag != "" && !hasTag(metadata.Tags, tag) {
			metadata.Tags = append(metadata.Tags, tag)
		}
	}
	return sm.saveRegistryLocked()
}

func (sm *SnapshotManager) DeleteSnapshot(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	metadata, exists := sm.registry[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	delete(sm.registry, id)

	if err := os.Remove(metadata.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot file: %w", err)
	}

	return sm.saveRegistryLocked()
}

func checksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func serializeSnapshot(snapshot *Snapshot) ([]byte, error) {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write(jsonData); err != nil {
		return nil, err
	}
	if err := gzWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func deserializeSnapshot(data []byte) (*Snapshot, error) {
	gzReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gzReader.Close()

	decompressed, err := io.ReadAll(gzReader)
	if err != nil {
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(decompressed, &snapshot); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

func (sm *SnapshotManager) loadRegistry() error {
	registryPath := filepath.Join(sm.storageDir, "registry.json")
	data, err := os.ReadFile(registryPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var registry map[string]*SnapshotMetadata
	if err := json.Unmarshal(data, &registry); err != nil {
		return err
	}
	if registry != nil {
		sm.registry = registry
	}
	return nil
}

// saveRegistryLocked must be called with sm.mu held.
func (sm *SnapshotManager) saveRegistryLocked() error {
	registryPath := filepath.Join(sm.storageDir, "registry.json")
	data, err := json.MarshalIndent(sm.registry, "", "  ")
	if err != nil {
		return err
	}

	tmp := registryPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, registryPath)
}
