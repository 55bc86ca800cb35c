package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Playlist is an ordered list of media keys on one server.
type Playlist struct {
	Key      string   `json:"key"`
	ServerID string   `json:"serverId"`
	Name     string   `json:"name"`
	Items    []string `json:"items"`
}

// UpsertPlaylist stores the playlist and replaces its items.
func (s *Store) UpsertPlaylist(ctx context.Context, p Playlist) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO playlists (key, server_id, name) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET server_id = excluded.server_id, name = excluded.name`,
			p.Key, p.ServerID, p.Name); err != nil {
			return fmt.Errorf("upsert playlist %s: %w", p.Key, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_items WHERE playlist_key = ?`, p.Key); err != nil {
			return err
		}
		for i, item := range p.Items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO playlist_items (playlist_key, position, media_key) VALUES (?, ?, ?)`,
				p.Key, i, item); err != nil {
				return fmt.Errorf("insert playlist item %s: %w", item, err)
			}
		}
		return nil
	})
}

// GetPlaylist returns a playlist with its items in order.
func (s *Store) GetPlaylist(ctx context.Context, key string) (*Playlist, error) {
	p := Playlist{Key: key}
	err := s.db.QueryRowContext(ctx, `SELECT server_id, name FROM playlists WHERE key = ?`, key).
		Scan(&p.ServerID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("playlist %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get playlist %s: %w", key, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT media_key FROM playlist_items WHERE playlist_key = ? ORDER BY position`, key)
	if err != nil {
		return nil, fmt.Errorf("list playlist items of %s: %w", key, err)
	}
	defer rows.Close()
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, item)
	}
	return &p, rows.Err()
}
