package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetConversation retrieves a conversation by ID, or nil when absent.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT conversation_id, client_id, last_message_time, archived_at
		FROM conversations WHERE conversation_id = ?`, conversationID)
	return scanConversation(row)
}

// ConversationByClient retrieves the client's conversation, or nil when the
// client has never been archived. Each client has at most one.
func (s *Store) ConversationByClient(ctx context.Context, clientID string) (*Conversation, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT conversation_id, client_id, last_message_time, archived_at
		FROM conversations WHERE client_id = ?`, clientID)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var v Conversation
	err := row.Scan(&v.ConversationID, &v.ClientID, &v.LastMessageTime, &v.ArchivedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &v, nil
}
