package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/hazyhaar/convarch/dbopen"
	"github.com/hazyhaar/convarch/reconstruct"
)

// SaveRequest carries everything needed to persist one reconstructed
// conversation. Anomaly rows arrive pre-built so the store never has to
// mint identifiers.
type SaveRequest struct {
	RunID          string
	Client         Client
	ConversationID string

	// LastMessageTime is the inbox preview time token ("2h", "Jun 10").
	// Empty keeps whatever a previous run stored.
	LastMessageTime string

	Messages  []reconstruct.Message
	Images    []reconstruct.Image
	Anomalies []Anomaly
	Snapshot  *Snapshot
}

// SaveConversation atomically replaces the archived state of one
// conversation: the client row is upserted, the previous messages, images
// and anomalies are dropped, and the new reconstruction is written in their
// place. Either everything lands or nothing does, so a failure mid-save
// never leaves a half-replaced conversation behind.
func (s *Store) SaveConversation(ctx context.Context, req *SaveRequest) error {
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO clients (client_id, name, first_seen_at, last_updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(client_id) DO UPDATE SET name=excluded.name, last_updated_at=excluded.last_updated_at`,
			req.Client.ClientID, req.Client.Name, now, now)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversations (conversation_id, client_id, last_message_time, archived_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(conversation_id) DO UPDATE SET
				last_message_time=CASE WHEN excluded.last_message_time = '' THEN last_message_time ELSE excluded.last_message_time END,
				archived_at=excluded.archived_at`,
			req.ConversationID, req.Client.ClientID, req.LastMessageTime, now)
		if err != nil {
			return err
		}

		// Images and anomalies cascade off messages and conversations, but
		// anomalies outlive message replacement only if deleted explicitly:
		// stale warnings about rows that no longer exist would mislead.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE conversation_id = ?`, req.ConversationID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM anomalies WHERE conversation_id = ?`, req.ConversationID); err != nil {
			return err
		}

		for _, m := range req.Messages {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO messages (conversation_id, message_id, sender_type, sender_name,
				text, date, time_label, has_placeholder_text)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				req.ConversationID, m.MessageID, string(m.SenderType), m.SenderName,
				m.Text, m.Date, m.TimeLabel, m.HasPlaceholderText)
			if err != nil {
				return err
			}
		}

		for _, img := range req.Images {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO images (conversation_id, message_id, image_url, image_time)
				VALUES (?, ?, ?, ?)`,
				req.ConversationID, img.MessageID, img.ImageURL, img.ImageTime)
			if err != nil {
				return err
			}
		}

		for _, a := range req.Anomalies {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO anomalies (anomaly_id, run_id, conversation_id, kind,
				capture_index, detail, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.AnomalyID, a.RunID, req.ConversationID, a.Kind,
				a.CaptureIndex, a.Detail, now)
			if err != nil {
				return err
			}
		}

		if req.Snapshot != nil {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO snapshots (conversation_id, run_id, content_hash, html, captured_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(conversation_id) DO UPDATE SET
					run_id=excluded.run_id, content_hash=excluded.content_hash,
					html=excluded.html, captured_at=excluded.captured_at`,
				req.ConversationID, req.RunID, req.Snapshot.ContentHash,
				req.Snapshot.HTML, now)
			if err != nil {
				return err
			}
		}

		if req.RunID != "" {
			_, err := tx.ExecContext(ctx,
				`UPDATE runs SET conversations=conversations+1, messages=messages+?,
				images=images+?, warnings=warnings+?
				WHERE run_id = ?`,
				len(req.Messages), len(req.Images), len(req.Anomalies), req.RunID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
