package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Images returns a conversation's image references in chronological order,
// each joined with its download ledger entry when the file exists locally.
func (s *Store) Images(ctx context.Context, conversationID string) ([]*Image, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT i.conversation_id, i.message_id, i.image_url, i.image_time,
		COALESCE(d.filename, '')
		FROM images i
		LEFT JOIN image_downloads d ON d.image_url = i.image_url
		WHERE i.conversation_id = ?
		ORDER BY i.message_id DESC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var imgs []*Image
	for rows.Next() {
		var img Image
		err := rows.Scan(&img.ConversationID, &img.MessageID, &img.ImageURL,
			&img.ImageTime, &img.Filename)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		imgs = append(imgs, &img)
	}
	return imgs, rows.Err()
}

// PendingImages returns distinct referenced image URLs that have no download
// ledger entry yet. With force set, every referenced URL is returned so the
// downloader can refresh files it already has.
func (s *Store) PendingImages(ctx context.Context, force bool) ([]string, error) {
	query := `SELECT DISTINCT i.image_url FROM images i
		LEFT JOIN image_downloads d ON d.image_url = i.image_url
		WHERE d.image_url IS NULL ORDER BY i.image_url`
	if force {
		query = `SELECT DISTINCT image_url FROM images ORDER BY image_url`
	}
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan image url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// MarkDownloaded records that a remote image now exists locally under the
// given content-addressed filename.
func (s *Store) MarkDownloaded(ctx context.Context, imageURL, filename string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO image_downloads (image_url, filename, downloaded_at)
		VALUES (?, ?, ?)
		ON CONFLICT(image_url) DO UPDATE SET
			filename=excluded.filename, downloaded_at=excluded.downloaded_at`,
		imageURL, filename, time.Now().UnixMilli())
	return err
}

// GetDownload retrieves the download ledger entry for a URL, or nil.
func (s *Store) GetDownload(ctx context.Context, imageURL string) (*Download, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT image_url, filename, downloaded_at
		FROM image_downloads WHERE image_url = ?`, imageURL)
	var d Download
	err := row.Scan(&d.ImageURL, &d.Filename, &d.DownloadedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan download: %w", err)
	}
	return &d, nil
}
