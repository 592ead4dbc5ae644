package store

import "github.com/hazyhaar/convarch/reconstruct"

// Client is a person whose conversation is archived.
type Client struct {
	ClientID      string `json:"client_id"`
	Name          string `json:"name"`
	FirstSeenAt   int64  `json:"first_seen_at"`
	LastUpdatedAt int64  `json:"last_updated_at"`
}

// ClientSummary is a client joined with its conversation and row counts,
// shaped for the viewer's client list.
type ClientSummary struct {
	Client
	ConversationID  string `json:"conversation_id"`
	LastMessageTime string `json:"last_message_time"`
	ArchivedAt      int64  `json:"archived_at"`
	Messages        int    `json:"messages"`
	Images          int    `json:"images"`
	Anomalies       int    `json:"anomalies"`
}

// Conversation is the per-client thread head. Each client has exactly one.
type Conversation struct {
	ConversationID  string `json:"conversation_id"`
	ClientID        string `json:"client_id"`
	LastMessageTime string `json:"last_message_time"`
	ArchivedAt      int64  `json:"archived_at"`
}

// Image is an image row joined with its download ledger entry. Filename is
// empty until the image has been fetched locally.
type Image struct {
	reconstruct.Image
	Filename string `json:"filename,omitempty"`
}

// Download is one image download ledger entry.
type Download struct {
	ImageURL     string `json:"image_url"`
	Filename     string `json:"filename"`
	DownloadedAt int64  `json:"downloaded_at"`
}

// Run is one scrape or replay run. Counters accumulate as conversations
// are saved under the run.
type Run struct {
	RunID         string `json:"run_id"`
	Kind          string `json:"kind"`
	StartedAt     int64  `json:"started_at"`
	FinishedAt    *int64 `json:"finished_at,omitempty"`
	Status        string `json:"status"`
	Conversations int    `json:"conversations"`
	Messages      int    `json:"messages"`
	Images        int    `json:"images"`
	Warnings      int    `json:"warnings"`
	Error         string `json:"error"`
}

// Anomaly is one persisted reconstruction warning. CaptureIndex is -1 for
// conversation-level anomalies.
type Anomaly struct {
	AnomalyID      string `json:"anomaly_id"`
	RunID          string `json:"run_id"`
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"`
	CaptureIndex   int    `json:"capture_index"`
	Detail         string `json:"detail"`
	CreatedAt      int64  `json:"created_at"`
}

// Snapshot is the raw message container HTML captured for a conversation.
type Snapshot struct {
	ConversationID string `json:"conversation_id"`
	RunID          string `json:"run_id"`
	ContentHash    string `json:"content_hash"`
	HTML           []byte `json:"-"`
	CapturedAt     int64  `json:"captured_at"`
}

// SnapshotInfo describes a stored snapshot without its HTML payload, joined
// with the owning client so a replay can rebuild the conversation.
type SnapshotInfo struct {
	ConversationID string `json:"conversation_id"`
	RunID          string `json:"run_id"`
	ContentHash    string `json:"content_hash"`
	CapturedAt     int64  `json:"captured_at"`
	Size           int64  `json:"size"`
	ClientID       string `json:"client_id"`
	ClientName     string `json:"client_name"`
}

// ArchiveStats holds aggregate row counts across the archive.
type ArchiveStats struct {
	Clients   int `json:"clients"`
	Messages  int `json:"messages"`
	Images    int `json:"images"`
	Downloads int `json:"downloads"`
	Anomalies int `json:"anomalies"`
	Runs      int `json:"runs"`
}
