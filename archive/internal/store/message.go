package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/convarch/reconstruct"
)

// Messages returns a conversation's messages in chronological order. The
// capture walked newest to oldest, so higher message ids are older and the
// descending read yields oldest first.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]reconstruct.Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT conversation_id, message_id, sender_type, sender_name,
		text, date, time_label, has_placeholder_text
		FROM messages WHERE conversation_id = ?
		ORDER BY message_id DESC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []reconstruct.Message
	for rows.Next() {
		var m reconstruct.Message
		var senderType string
		var placeholder int
		err := rows.Scan(
			&m.ConversationID, &m.MessageID, &senderType, &m.SenderName,
			&m.Text, &m.Date, &m.TimeLabel, &placeholder,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderType = reconstruct.SenderType(senderType)
		m.HasPlaceholderText = placeholder != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of messages stored for a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count)
	return count, err
}
