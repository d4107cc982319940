package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shelfsync/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store is the local audit log: one row per job run, one row per push
// attempt. Operators read failure detail from the sheet; this store answers
// "what did the last runs do" without opening the spreadsheet.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	job TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	scanned INTEGER NOT NULL DEFAULT 0,
	malformed INTEGER NOT NULL DEFAULT 0,
	candidates INTEGER NOT NULL DEFAULT 0,
	succeeded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS pushes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	row_index INTEGER NOT NULL,
	item_id TEXT NOT NULL,
	desired INTEGER NOT NULL,
	baseline INTEGER NOT NULL,
	result TEXT NOT NULL,
	retried INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pushes_run_id ON pushes(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func Open(path string, logger *zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Store{db: db, logger: logger.With().Str("component", "audit").Logger()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts the run record at run start.
func (s *Store) StartRun(ctx context.Context, runID, job string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job, started_at) VALUES (?, ?, ?)`,
		runID, job, startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// FinishRun fills in the run's counters and final error.
func (s *Store) FinishRun(ctx context.Context, summary models.RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, scanned = ?, malformed = ?, candidates = ?, succeeded = ?, failed = ?, error = ? WHERE id = ?`,
		summary.FinishedAt, summary.Scanned, summary.Malformed, summary.Candidates,
		summary.Succeeded, summary.Failed, summary.Error, summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// RecordPush appends one push attempt to the log.
func (s *Store) RecordPush(ctx context.Context, runID string, o models.PushOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pushes (run_id, row_index, item_id, desired, baseline, result, retried, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, o.RowIndex, o.ItemID, o.Desired, o.Baseline, o.Result, o.Retried, o.ErrText, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record push: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job, started_at, finished_at, scanned, malformed, candidates, succeeded, failed, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var r models.RunSummary
		var finished sql.NullTime
		if err := rows.Scan(&r.RunID, &r.Job, &r.StartedAt, &finished, &r.Scanned, &r.Malformed,
			&r.Candidates, &r.Succeeded, &r.Failed, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PushesForRun returns every push attempt recorded for one run, row order.
func (s *Store) PushesForRun(ctx context.Context, runID string) ([]models.PushOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, item_id, desired, baseline, result, retried, error, created_at
		 FROM pushes WHERE run_id = ? ORDER BY row_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pushes: %w", err)
	}
	defer rows.Close()

	var pushes []models.PushOutcome
	for rows.Next() {
		var o models.PushOutcome
		var created time.Time
		if err := rows.Scan(&o.RowIndex, &o.ItemID, &o.Desired, &o.Baseline, &o.Result, &o.Retried, &o.ErrText, &created); err != nil {
			return nil, fmt.Errorf("failed to scan push: %w", err)
		}
		if o.Succeeded() {
			o.PushedAt = created
		}
		pushes = append(pushes, o)
	}
	return pushes, rows.Err()
}
