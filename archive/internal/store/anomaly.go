package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Anomalies returns the most recent anomalies across all conversations,
// newest first.
func (s *Store) Anomalies(ctx context.Context, limit int) ([]*Anomaly, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT anomaly_id, run_id, conversation_id, kind, capture_index, detail, created_at
		FROM anomalies ORDER BY created_at DESC, capture_index LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anoms []*Anomaly
	for rows.Next() {
		a, err := scanAnomalyRows(rows)
		if err != nil {
			return nil, err
		}
		anoms = append(anoms, a)
	}
	return anoms, rows.Err()
}

// AnomaliesByConversation returns a conversation's anomalies ordered by the
// capture index they concern.
func (s *Store) AnomaliesByConversation(ctx context.Context, conversationID string) ([]*Anomaly, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT anomaly_id, run_id, conversation_id, kind, capture_index, detail, created_at
		FROM anomalies WHERE conversation_id = ?
		ORDER BY capture_index`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anoms []*Anomaly
	for rows.Next() {
		a, err := scanAnomalyRows(rows)
		if err != nil {
			return nil, err
		}
		anoms = append(anoms, a)
	}
	return anoms, rows.Err()
}

// CountAnomalies returns the total number of stored anomalies.
func (s *Store) CountAnomalies(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM anomalies`).Scan(&count)
	return count, err
}

func scanAnomalyRows(rows *sql.Rows) (*Anomaly, error) {
	var a Anomaly
	err := rows.Scan(&a.AnomalyID, &a.RunID, &a.ConversationID, &a.Kind,
		&a.CaptureIndex, &a.Detail, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan anomaly: %w", err)
	}
	return &a, nil
}
