package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lunikdev/pledo/internal/engine/types"
)

// TvShow is the series an episode belongs to.
type TvShow struct {
	Key       string `json:"key"`
	LibraryID string `json:"libraryId"`
	Title     string `json:"title"`
}

// UpsertTvShows stores series in one transaction.
func (s *Store) UpsertTvShows(ctx context.Context, shows []TvShow) error {
	if len(shows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tv_shows (rating_key, library_id, title) VALUES (?, ?, ?)
			ON CONFLICT (rating_key) DO UPDATE SET library_id = excluded.library_id, title = excluded.title`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, show := range shows {
			if _, err := stmt.ExecContext(ctx, show.Key, show.LibraryID, show.Title); err != nil {
				return fmt.Errorf("upsert tv show %s: %w", show.Key, err)
			}
		}
		return nil
	})
}

// GetTvShow looks a series up by rating key.
func (s *Store) GetTvShow(ctx context.Context, key string) (*TvShow, error) {
	show := TvShow{Key: key}
	err := s.db.QueryRowContext(ctx, `SELECT library_id, title FROM tv_shows WHERE rating_key = ?`, key).
		Scan(&show.LibraryID, &show.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tv show %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tv show %s: %w", key, err)
	}
	return &show, nil
}

// UpsertMediaElements stores elements and replaces their media files, all
// in one transaction.
func (s *Store) UpsertMediaElements(ctx context.Context, elems []types.MediaElement) error {
	if len(elems) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		upsert, err := tx.PrepareContext(ctx, `
			INSERT INTO media_elements (kind, rating_key, library_id, title, year, series_key, season_number, episode_number)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (kind, rating_key) DO UPDATE SET
				library_id = excluded.library_id, title = excluded.title, year = excluded.year,
				series_key = excluded.series_key, season_number = excluded.season_number,
				episode_number = excluded.episode_number`)
		if err != nil {
			return err
		}
		defer upsert.Close()

		clearFiles, err := tx.PrepareContext(ctx, `DELETE FROM media_files WHERE media_kind = ? AND media_key = ?`)
		if err != nil {
			return err
		}
		defer clearFiles.Close()

		insertFile, err := tx.PrepareContext(ctx, `
			INSERT INTO media_files (media_kind, media_key, position, download_uri, server_file_path, total_bytes, video_resolution, video_codec)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insertFile.Close()

		for _, e := range elems {
			if _, err := upsert.ExecContext(ctx, string(e.Kind), e.Key, e.LibraryID, e.Title, e.Year,
				e.SeriesKey, e.SeasonNumber, e.EpisodeNumber); err != nil {
				return fmt.Errorf("upsert %s %s: %w", e.Kind, e.Key, err)
			}
			if _, err := clearFiles.ExecContext(ctx, string(e.Kind), e.Key); err != nil {
				return fmt.Errorf("clear media files of %s: %w", e.Key, err)
			}
			for i, f := range e.Files {
				if _, err := insertFile.ExecContext(ctx, string(e.Kind), e.Key, i, f.DownloadURI, f.ServerFilePath,
					f.TotalBytes, f.VideoResolution, f.VideoCodec); err != nil {
					return fmt.Errorf("insert media file of %s: %w", e.Key, err)
				}
			}
		}
		return nil
	})
}

const elementColumns = `e.rating_key, e.kind, e.library_id, e.title, e.year, e.series_key,
	COALESCE(t.title, ''), e.season_number, e.episode_number`

const elementFrom = `FROM media_elements e LEFT JOIN tv_shows t ON t.rating_key = e.series_key`

func scanElement(sc interface{ Scan(...any) error }) (types.MediaElement, error) {
	var e types.MediaElement
	var kind string
	err := sc.Scan(&e.Key, &kind, &e.LibraryID, &e.Title, &e.Year, &e.SeriesKey, &e.SeriesTitle,
		&e.SeasonNumber, &e.EpisodeNumber)
	e.Kind = types.ElementKind(kind)
	return e, err
}

// GetMediaElement returns one element with its media files.
func (s *Store) GetMediaElement(ctx context.Context, kind types.ElementKind, key string) (*types.MediaElement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+elementColumns+` `+elementFrom+` WHERE e.kind = ? AND e.rating_key = ?`,
		string(kind), key)
	e, err := scanElement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, key, err)
	}
	if e.Files, err = s.mediaFiles(ctx, kind, key); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) mediaFiles(ctx context.Context, kind types.ElementKind, key string) ([]types.MediaFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT download_uri, server_file_path, total_bytes, video_resolution, video_codec
		FROM media_files WHERE media_kind = ? AND media_key = ? ORDER BY position`, string(kind), key)
	if err != nil {
		return nil, fmt.Errorf("list media files of %s: %w", key, err)
	}
	defer rows.Close()

	var files []types.MediaFile
	for rows.Next() {
		var f types.MediaFile
		if err := rows.Scan(&f.DownloadURI, &f.ServerFilePath, &f.TotalBytes, &f.VideoResolution, &f.VideoCodec); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// EpisodesOfShow lists a series' episodes in season and episode order.
func (s *Store) EpisodesOfShow(ctx context.Context, showKey string) ([]types.MediaElement, error) {
	return s.episodes(ctx, `e.series_key = ?`, showKey)
}

// EpisodesOfSeason lists one season of a series in episode order.
func (s *Store) EpisodesOfSeason(ctx context.Context, showKey string, season int) ([]types.MediaElement, error) {
	return s.episodes(ctx, `e.series_key = ? AND e.season_number = ?`, showKey, season)
}

func (s *Store) episodes(ctx context.Context, where string, args ...any) ([]types.MediaElement, error) {
	query := `SELECT ` + elementColumns + ` ` + elementFrom + ` WHERE e.kind = ? AND ` + where +
		` ORDER BY e.season_number, e.episode_number`
	rows, err := s.db.QueryContext(ctx, query, append([]any{string(types.KindEpisode)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}

	var elems []types.MediaElement
	for rows.Next() {
		e, err := scanElement(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		elems = append(elems, e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Files are loaded after the cursor is released: the pool holds one connection.
	for i := range elems {
		if elems[i].Files, err = s.mediaFiles(ctx, types.KindEpisode, elems[i].Key); err != nil {
			return nil, err
		}
	}
	return elems, nil
}

// CountMediaElements returns how many elements of kind a library holds.
func (s *Store) CountMediaElements(ctx context.Context, libraryID string, kind types.ElementKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_elements WHERE library_id = ? AND kind = ?`,
		libraryID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count elements of %s: %w", libraryID, err)
	}
	return n, nil
}
