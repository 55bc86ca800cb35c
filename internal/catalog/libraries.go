package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lunikdev/pledo/internal/engine/types"
)

// LibraryKind is the content type of a library section.
type LibraryKind string

const (
	LibraryMovies LibraryKind = "movie"
	LibraryShows  LibraryKind = "show"
)

// ElementKind is the kind of downloadable element the library holds.
func (k LibraryKind) ElementKind() (types.ElementKind, error) {
	switch k {
	case LibraryMovies:
		return types.KindMovie, nil
	case LibraryShows:
		return types.KindEpisode, nil
	default:
		return "", fmt.Errorf("library kind %q holds no downloadable elements", k)
	}
}

// Library is one section of a server.
type Library struct {
	ID       string      `json:"id"`
	Key      string      `json:"key"`
	ServerID string      `json:"serverId"`
	Name     string      `json:"name"`
	Kind     LibraryKind `json:"kind"`
}

// LibraryID builds the catalog id of a server section.
func LibraryID(serverID, sectionKey string) string {
	return serverID + ":" + sectionKey
}

// UpsertLibrary inserts or renames a library.
func (s *Store) UpsertLibrary(ctx context.Context, lib Library) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO libraries (id, key, server_id, name, kind) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET key = excluded.key, server_id = excluded.server_id,
			name = excluded.name, kind = excluded.kind`,
		lib.ID, lib.Key, lib.ServerID, lib.Name, string(lib.Kind))
	if err != nil {
		return fmt.Errorf("upsert library %s: %w", lib.ID, err)
	}
	return nil
}

// GetLibrary looks a library up by id.
func (s *Store) GetLibrary(ctx context.Context, id string) (*Library, error) {
	lib := Library{ID: id}
	var kind string
	err := s.db.QueryRowContext(ctx,
		`SELECT key, server_id, name, kind FROM libraries WHERE id = ?`, id).
		Scan(&lib.Key, &lib.ServerID, &lib.Name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get library %s: %w", id, err)
	}
	lib.Kind = LibraryKind(kind)
	return &lib, nil
}

// ListLibraries returns the libraries of a server, or of every server when
// serverID is empty.
func (s *Store) ListLibraries(ctx context.Context, serverID string) ([]Library, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, server_id, name, kind FROM libraries
		WHERE ? = '' OR server_id = ? ORDER BY server_id, name`, serverID, serverID)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var libs []Library
	for rows.Next() {
		var lib Library
		var kind string
		if err := rows.Scan(&lib.ID, &lib.Key, &lib.ServerID, &lib.Name, &kind); err != nil {
			return nil, err
		}
		lib.Kind = LibraryKind(kind)
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}
