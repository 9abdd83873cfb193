package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ossim/backend/pkg/config"
)

// ResultStore keeps completed run results across restarts (except for the
// memory driver).
type ResultStore interface {
	Save(ctx context.Context, result RunResult) error
	Get(ctx context.Context, id uuid.UUID) (RunResult, error)
	// List returns up to limit results, most recently finished first. A limit
	// of zero or less returns all of them.
	List(ctx context.Context, limit int) ([]RunResult, error)
	Close() error
}

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (ResultStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		logger.Info("using in-memory result store")
		return NewMemoryStore(), nil
	case "postgres":
		logger.Info("using postgres result store")
		return NewPostgresStore(ctx, cfg.PostgresURL)
	case "redis":
		logger.Info("using redis result store", "addr", cfg.RedisAddr)
		return NewRedisStore(ctx, RedisOptions{Addr: cfg.RedisAddr, DB: cfg.RedisDB, TTL: cfg.RedisTTL, Logger: logger})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

type MemoryStore struct {
	results map[uuid.UUID]RunResult
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[uuid.UUID]RunResult)}
}

func (s *MemoryStore) Save(_ context.Context, result RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ID] = result
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, exists := s.results[id]
	if !exists {
		return RunResult{}, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	return result, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]RunResult, error) {
	s.mu.RLock()
	results := make([]RunResult, 0, len(s.results))
	for _, r := range s.results {
		results = append(results, r)
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if !results[i].FinishedAt.Equal(results[j].FinishedAt) {
			return results[i].FinishedAt.After(results[j].FinishedAt)
		}
		return results[i].ID.String() < results[j].ID.String()
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) Close() error { return nil }
