// Package store is the data access layer for the conversation archive.
//
// One SQLite file holds everything: clients, conversations, messages,
// images, the image download ledger, scrape runs, anomalies, and raw DOM
// snapshots. The file is shared by the scraper (writes), the viewer
// (reads), and the image downloader (reads URLs, writes the ledger).
package store

import "database/sql"

// Store wraps the archive database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
