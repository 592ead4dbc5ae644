package store

import "context"

// Stats returns aggregate row counts across the archive.
func (s *Store) Stats(ctx context.Context) (*ArchiveStats, error) {
	var st ArchiveStats
	err := s.DB.QueryRowContext(ctx,
		`SELECT
		(SELECT COUNT(*) FROM clients),
		(SELECT COUNT(*) FROM messages),
		(SELECT COUNT(*) FROM images),
		(SELECT COUNT(*) FROM image_downloads),
		(SELECT COUNT(*) FROM anomalies),
		(SELECT COUNT(*) FROM runs)`).
		Scan(&st.Clients, &st.Messages, &st.Images, &st.Downloads, &st.Anomalies, &st.Runs)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
