package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertRun records the start of a scrape or replay run.
func (s *Store) InsertRun(ctx context.Context, r *Run) error {
	if r.StartedAt == 0 {
		r.StartedAt = time.Now().UnixMilli()
	}
	if r.Kind == "" {
		r.Kind = "scrape"
	}
	if r.Status == "" {
		r.Status = "running"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (run_id, kind, started_at, status)
		VALUES (?, ?, ?, ?)`,
		r.RunID, r.Kind, r.StartedAt, r.Status)
	return err
}

// FinishRun closes a run with its final status. errMsg is empty on success.
func (s *Store) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET finished_at=?, status=?, error=? WHERE run_id=?`,
		time.Now().UnixMilli(), status, errMsg, runID)
	return err
}

// GetRun retrieves a run by ID, or nil when absent.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT run_id, kind, started_at, finished_at, status,
		conversations, messages, images, warnings, error
		FROM runs WHERE run_id = ?`, runID)
	var r Run
	err := row.Scan(&r.RunID, &r.Kind, &r.StartedAt, &r.FinishedAt, &r.Status,
		&r.Conversations, &r.Messages, &r.Images, &r.Warnings, &r.Error)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &r, nil
}

// Runs returns the most recent runs, newest first. Run ids are minted
// time-ordered, so they break ties between runs started in the same
// millisecond.
func (s *Store) Runs(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT run_id, kind, started_at, finished_at, status,
		conversations, messages, images, warnings, error
		FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		err := rows.Scan(&r.RunID, &r.Kind, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.Conversations, &r.Messages, &r.Images, &r.Warnings, &r.Error)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
