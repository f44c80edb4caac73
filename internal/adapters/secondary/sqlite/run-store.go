package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS training_runs (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL UNIQUE,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	status      TEXT NOT NULL,
	best_kind   TEXT NOT NULL DEFAULT '',
	best_entry  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	results     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_runs_started ON training_runs(started_at);
`

type runStore struct {
	db *sql.DB
}

// NewRunStore opens (creating if needed) the sqlite database at path.
func NewRunStore(path string) (ports.RunStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create training_runs table: %w", err)
	}
	return &runStore{db: db}, nil
}

func (s *runStore) Save(ctx context.Context, run *domain.TrainingRun) error {
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("marshal run results: %w", err)
	}
	query := `
		INSERT INTO training_runs (id, run_id, started_at, finished_at, status, best_kind, best_entry, error, results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			best_kind = excluded.best_kind,
			best_entry = excluded.best_entry,
			error = excluded.error,
			results = excluded.results`
	_, err = s.db.ExecContext(ctx, query,
		run.ID.String(), run.RunID,
		run.StartedAt.UnixMicro(), run.FinishedAt.UnixMicro(),
		string(run.Status), string(run.BestKind), run.BestEntry, run.Error,
		string(results),
	)
	if err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}
	return nil
}

func (s *runStore) List(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, run_id, started_at, finished_at, status, best_kind, best_entry, error, results
		FROM training_runs
		ORDER BY started_at DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list training runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.TrainingRun
	for rows.Next() {
		var (
			run               domain.TrainingRun
			id, status, kind  string
			started, finished int64
			results           string
		)
		if err := rows.Scan(&id, &run.RunID, &started, &finished, &status, &kind, &run.BestEntry, &run.Error, &results); err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		if err := json.Unmarshal([]byte(results), &run.Results); err != nil {
			return nil, fmt.Errorf("parse run results: %w", err)
		}
		run.StartedAt = time.UnixMicro(started).UTC()
		run.FinishedAt = time.UnixMicro(finished).UTC()
		run.Status = domain.RunStatus(status)
		run.BestKind = domain.ModelKind(kind)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (s *runStore) Close() error {
	return s.db.Close()
}
