package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	resultKeyPrefix = "ossim:result:"
	resultIndexKey  = "ossim:results"
)

type RedisOptions struct {
	Addr string
	DB   int
	// TTL bounds how long a result is kept; zero keeps it forever.
	TTL    time.Duration
	Logger *slog.Logger
}

// RedisStore keeps each result as a JSON string with a TTL and indexes ids
// in a sorted set scored by finish time.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, DB: opts.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, ttl: opts.TTL, logger: logger.With("component", "redis_store")}, nil
}

func resultKey(id uuid.UUID) string {
	return resultKeyPrefix + id.String()
}

func (s *RedisStore) Save(ctx context.Context, r RunResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, resultKey(r.ID), data, s.ttl)
	pipe.ZAdd(ctx, resultIndexKey, redis.Z{Score: float64(r.FinishedAt.UnixMilli()), Member: r.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save result %s: %w", r.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (RunResult, error) {
	data, err := s.client.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RunResult{}, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	if err != nil {
		return RunResult{}, fmt.Errorf("get result %s: %w", id, err)
	}

	var r RunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return RunResult{}, fmt.Errorf("decode result %s: %w", id, err)
	}
	return r, nil
}

// List walks the index newest first, reading further down when entries
// have expired so that up to limit live results are returned. Expired ids
// are pruned from the index afterwards.
func (s *RedisStore) List(ctx context.Context, limit int) ([]RunResult, error) {
	results := make([]RunResult, 0)
	var expired []interface{}

	start := int64(0)
	for {
		stop := int64(-1)
		if limit > 0 {
			stop = start + int64(limit-len(results)) - 1
		}
		ids, err := s.client.ZRevRange(ctx, resultIndexKey, start, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = resultKeyPrefix + id
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("load results: %w", err)
		}

		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				expired = append(expired, ids[i])
				continue
			}
			var r RunResult
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				return nil, fmt.Errorf("decode result %s: %w", ids[i], err)
			}
			results = append(results, r)
		}

		if limit <= 0 || len(results) >= limit || int64(len(ids)) < stop-start+1 {
			break
		}
		start += int64(len(ids))
	}

	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, resultIndexKey, expired...).Err(); err != nil {
			s.logger.Warn("failed to prune expired result ids", "count", len(expired), "error", err)
		}
	}
	return results, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
