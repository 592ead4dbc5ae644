package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Snapshot retrieves the raw container HTML stored for a conversation, or
// nil when none was captured.
func (s *Store) Snapshot(ctx context.Context, conversationID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT conversation_id, run_id, content_hash, html, captured_at
		FROM snapshots WHERE conversation_id = ?`, conversationID)
	var snap Snapshot
	err := row.Scan(&snap.ConversationID, &snap.RunID, &snap.ContentHash,
		&snap.HTML, &snap.CapturedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &snap, nil
}

// Snapshots lists all stored snapshots without their HTML payloads, joined
// with the owning client. A replay walks this list and loads each payload
// one at a time.
func (s *Store) Snapshots(ctx context.Context) ([]*SnapshotInfo, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT s.conversation_id, s.run_id, s.content_hash, s.captured_at,
		length(s.html), c.client_id, c.name
		FROM snapshots s
		JOIN conversations v ON v.conversation_id = s.conversation_id
		JOIN clients c ON c.client_id = v.client_id
		ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		err := rows.Scan(&info.ConversationID, &info.RunID, &info.ContentHash,
			&info.CapturedAt, &info.Size, &info.ClientID, &info.ClientName)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot info: %w", err)
		}
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}
