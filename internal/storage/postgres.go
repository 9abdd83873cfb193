package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS run_results (
	id             UUID PRIMARY KEY,
	policy         TEXT NOT NULL,
	replacement    TEXT NOT NULL,
	quantum        INTEGER NOT NULL,
	frames         INTEGER NOT NULL,
	processes      INTEGER NOT NULL,
	steps          INTEGER NOT NULL,
	sim_time       INTEGER NOT NULL,
	avg_waiting    DOUBLE PRECISION NOT NULL,
	avg_turnaround DOUBLE PRECISION NOT NULL,
	faults         BIGINT NOT NULL,
	hits           BIGINT NOT NULL,
	conflicts      BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL,
	summary        JSONB NOT NULL
)`

const resultColumns = `id, policy, replacement, quantum, frames, processes, steps, sim_time,
	avg_waiting, avg_turnaround, faults, hits, conflicts, created_at, finished_at, summary`

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with lib/pq and creates the results table if it
// does not exist.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createResultsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create run_results: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, r RunResult) error {
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			steps = EXCLUDED.steps,
			sim_time = EXCLUDED.sim_time,
			avg_waiting = EXCLUDED.avg_waiting,
			avg_turnaround = EXCLUDED.avg_turnaround,
			faults = EXCLUDED.faults,
			hits = EXCLUDED.hits,
			conflicts = EXCLUDED.conflicts,
			finished_at = EXCLUDED.finished_at,
			summary = EXCLUDED.summary`,
		r.ID, r.Policy, r.Replacement, r.Quantum, r.Frames, r.Processes, r.Steps, r.Time,
		r.AvgWaiting, r.AvgTurnaround, r.Faults, r.Hits, r.Conflicts, r.CreatedAt, r.FinishedAt, summary,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (RunResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM run_results WHERE id = $1`, id)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunResult{}, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	return result, err
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]RunResult, error) {
	query := `SELECT ` + resultColumns + ` FROM run_results ORDER BY finished_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := make([]RunResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row rowScanner) (RunResult, error) {
	var r RunResult
	var summary []byte
	err := row.Scan(&r.ID, &r.Policy, &r.Replacement, &r.Quantum, &r.Frames, &r.Processes, &r.Steps, &r.Time,
		&r.AvgWaiting, &r.AvgTurnaround, &r.Faults, &r.Hits, &r.Conflicts, &r.CreatedAt, &r.FinishedAt, &summary)
	if err != nil {
		return RunResult{}, err
	}
	if err := json.Unmarshal(summary, &r.Summary); err != nil {
		return RunResult{}, fmt.Errorf("decode summary %s: %w", r.ID, err)
	}
	return r, nil
}
