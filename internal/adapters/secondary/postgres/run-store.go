package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS training_runs (
	id          UUID PRIMARY KEY,
	run_id      TEXT NOT NULL UNIQUE,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL,
	best_kind   TEXT NOT NULL DEFAULT '',
	best_entry  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	results     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_runs_started ON training_runs (started_at DESC);
`

// ErrDuplicateRunID is returned when two distinct runs share a run id.
var ErrDuplicateRunID = errors.New("duplicate run id")

type runStore struct {
	pool *pgxpool.Pool
}

// NewRunStore connects to dsn, verifies the connection and ensures the
// training_runs table exists.
func NewRunStore(ctx context.Context, dsn string) (ports.RunStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create training_runs table: %w", err)
	}
	return &runStore{pool: pool}, nil
}

func (r *runStore) Save(ctx context.Context, run *domain.TrainingRun) error {
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("marshal run results: %w", err)
	}

	query := `
		INSERT INTO training_runs
			(id, run_id, started_at, finished_at, status, best_kind, best_entry, error, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			best_kind = EXCLUDED.best_kind,
			best_entry = EXCLUDED.best_entry,
			error = EXCLUDED.error,
			results = EXCLUDED.results
	`

	_, err = r.pool.Exec(ctx, query,
		run.ID, run.RunID, run.StartedAt, run.FinishedAt,
		string(run.Status), string(run.BestKind), run.BestEntry, run.Error,
		resultsJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateRunID, run.RunID)
		}
		return fmt.Errorf("save training run: %w", err)
	}
	return nil
}

func (r *runStore) List(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, run_id, started_at, finished_at, status, best_kind, best_entry, error, results
		FROM training_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list training runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *runStore) Close() error {
	r.pool.Close()
	return nil
}

func scanRun(row pgx.Row) (*domain.TrainingRun, error) {
	var (
		run          domain.TrainingRun
		status, kind string
		resultsJSON  []byte
	)
	err := row.Scan(
		&run.ID, &run.RunID, &run.StartedAt, &run.FinishedAt,
		&status, &kind, &run.BestEntry, &run.Error, &resultsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("scan training run: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &run.Results); err != nil {
		return nil, fmt.Errorf("unmarshal run results: %w", err)
	}
	run.Status = domain.RunStatus(status)
	run.BestKind = domain.ModelKind(kind)
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}
