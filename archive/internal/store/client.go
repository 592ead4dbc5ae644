package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetClient retrieves a client by ID, or nil when absent.
func (s *Store) GetClient(ctx context.Context, clientID string) (*Client, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT client_id, name, first_seen_at, last_updated_at
		FROM clients WHERE client_id = ?`, clientID)
	return scanClient(row)
}

// Clients returns all archived clients with their conversation head and row
// counts, ordered by display name.
func (s *Store) Clients(ctx context.Context) ([]*ClientSummary, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT c.client_id, c.name, c.first_seen_at, c.last_updated_at,
		v.conversation_id, v.last_message_time, v.archived_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = v.conversation_id),
		(SELECT COUNT(*) FROM images i WHERE i.conversation_id = v.conversation_id),
		(SELECT COUNT(*) FROM anomalies a WHERE a.conversation_id = v.conversation_id)
		FROM clients c
		JOIN conversations v ON v.client_id = c.client_id
		ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*ClientSummary
	for rows.Next() {
		var cs ClientSummary
		err := rows.Scan(
			&cs.ClientID, &cs.Name, &cs.FirstSeenAt, &cs.LastUpdatedAt,
			&cs.ConversationID, &cs.LastMessageTime, &cs.ArchivedAt,
			&cs.Messages, &cs.Images, &cs.Anomalies,
		)
		if err != nil {
			return nil, fmt.Errorf("scan client summary: %w", err)
		}
		clients = append(clients, &cs)
	}
	return clients, rows.Err()
}

// CountClients returns the total number of archived clients.
func (s *Store) CountClients(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count)
	return count, err
}

func scanClient(row *sql.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ClientID, &c.Name, &c.FirstSeenAt, &c.LastUpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	return &c, nil
}
