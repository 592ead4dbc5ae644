package store

import "database/sql"

// Schema is the complete archive schema.
//
// messages is keyed (conversation_id, message_id): the order key is unique
// per conversation, and reading it descending yields chronological oldest
// to newest order. date is NULL when the day's header fell outside the
// capture window; the engine never invents one.
const Schema = `
-- People the conversations belong to
CREATE TABLE IF NOT EXISTS clients (
    client_id       TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    first_seen_at   INTEGER NOT NULL,
    last_updated_at INTEGER NOT NULL
);

-- One conversation per client
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id   TEXT PRIMARY KEY,
    client_id         TEXT NOT NULL UNIQUE REFERENCES clients(client_id) ON DELETE CASCADE,
    last_message_time TEXT NOT NULL DEFAULT '',
    archived_at       INTEGER NOT NULL DEFAULT 0
);

-- Reconstructed messages; message_id DESC = oldest to newest
CREATE TABLE IF NOT EXISTS messages (
    conversation_id      TEXT NOT NULL REFERENCES conversations(conversation_id) ON DELETE CASCADE,
    message_id           INTEGER NOT NULL,
    sender_type          TEXT NOT NULL,
    sender_name          TEXT NOT NULL DEFAULT '',
    text                 TEXT NOT NULL DEFAULT '',
    date                 TEXT,
    time_label           TEXT NOT NULL DEFAULT '',
    has_placeholder_text INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (conversation_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_order ON messages(conversation_id, message_id DESC);

-- Image references bound to their owning message
CREATE TABLE IF NOT EXISTS images (
    conversation_id TEXT NOT NULL,
    message_id      INTEGER NOT NULL,
    image_url       TEXT NOT NULL,
    image_time      TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (conversation_id, message_id)
        REFERENCES messages(conversation_id, message_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_images_message ON images(conversation_id, message_id);

-- Download ledger: which remote images exist locally, content-addressed
CREATE TABLE IF NOT EXISTS image_downloads (
    image_url     TEXT PRIMARY KEY,
    filename      TEXT NOT NULL,
    downloaded_at INTEGER NOT NULL
);

-- Scrape / replay runs
CREATE TABLE IF NOT EXISTS runs (
    run_id        TEXT PRIMARY KEY,
    kind          TEXT NOT NULL DEFAULT 'scrape',
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER,
    status        TEXT NOT NULL DEFAULT 'running',
    conversations INTEGER NOT NULL DEFAULT 0,
    messages      INTEGER NOT NULL DEFAULT 0,
    images        INTEGER NOT NULL DEFAULT 0,
    warnings      INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_time ON runs(started_at DESC);

-- Engine warnings, attached to the conversation and capture index they concern
CREATE TABLE IF NOT EXISTS anomalies (
    anomaly_id      TEXT PRIMARY KEY,
    run_id          TEXT NOT NULL DEFAULT '',
    conversation_id TEXT NOT NULL REFERENCES conversations(conversation_id) ON DELETE CASCADE,
    kind            TEXT NOT NULL,
    capture_index   INTEGER NOT NULL DEFAULT -1,
    detail          TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anomalies_time ON anomalies(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_anomalies_conversation ON anomalies(conversation_id);

-- Raw container HTML per conversation, for audit and browserless replay
CREATE TABLE IF NOT EXISTS snapshots (
    conversation_id TEXT PRIMARY KEY REFERENCES conversations(conversation_id) ON DELETE CASCADE,
    run_id          TEXT NOT NULL DEFAULT '',
    content_hash    TEXT NOT NULL,
    html            BLOB NOT NULL,
    captured_at     INTEGER NOT NULL
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
