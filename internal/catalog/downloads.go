package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lunikdev/pledo/internal/engine/types"
)

// InsertRecord persists a finished job.
func (s *Store) InsertRecord(ctx context.Context, r types.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (id, media_key, name, kind, uri, file_path, file_name, total_bytes,
			transferred_bytes, started, finished, success, content_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.MediaKey, r.Name, string(r.Kind), r.URI, r.FilePath, r.FileName, r.TotalBytes,
		r.Transferred, nullTime(r.Started), nullTime(r.Finished), boolInt(r.Success), r.ContentType)
	if err != nil {
		return fmt.Errorf("insert download record %s: %w", r.ID, err)
	}
	return nil
}

// ListRecords returns every finished job, most recent first.
func (s *Store) ListRecords(ctx context.Context) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_key, name, kind, uri, file_path, file_name, total_bytes, transferred_bytes,
			started, finished, success, content_type
		FROM downloads ORDER BY finished DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list download records: %w", err)
	}
	defer rows.Close()

	var records []types.Record
	for rows.Next() {
		var r types.Record
		var kind string
		var started, finished sql.NullInt64
		if err := rows.Scan(&r.ID, &r.MediaKey, &r.Name, &kind, &r.URI, &r.FilePath, &r.FileName,
			&r.TotalBytes, &r.Transferred, &started, &finished, &r.Success, &r.ContentType); err != nil {
			return nil, err
		}
		r.Kind = types.ElementKind(kind)
		r.Started = timePtr(started)
		r.Finished = timePtr(finished)
		records = append(records, r)
	}
	return records, rows.Err()
}
