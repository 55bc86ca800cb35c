package librarysync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/connection"
	"github.com/lunikdev/pledo/internal/engine/events"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/plex"
)

// Directory is the media server API used to discover libraries.
type Directory interface {
	Searcher
	Sections(ctx context.Context, baseURL, token string) ([]plex.Directory, error)
	Playlists(ctx context.Context, baseURL, token string) ([]plex.Metadata, error)
	PlaylistItems(ctx context.Context, baseURL, token, playlistKey string) ([]string, error)
}

// Store is the write side of the catalog.
type Store interface {
	GetLibrary(ctx context.Context, id string) (*catalog.Library, error)
	UpsertLibrary(ctx context.Context, lib catalog.Library) error
	UpsertTvShows(ctx context.Context, shows []catalog.TvShow) error
	UpsertMediaElements(ctx context.Context, elems []types.MediaElement) error
	UpsertPlaylist(ctx context.Context, p catalog.Playlist) error
}

// EndpointFinder picks the endpoint to talk to.
type EndpointFinder interface {
	Resolve(ctx context.Context, serverID string) (connection.Endpoints, error)
	Fastest(ctx context.Context, serverID string) (string, error)
}

// Service refreshes the catalog from a media server.
type Service struct {
	store      Store
	directory  Directory
	endpoints  EndpointFinder
	settings   config.Provider
	progressCh chan<- any
	logger     *zap.Logger
}

func NewService(store Store, directory Directory, endpoints EndpointFinder, settings config.Provider, progressCh chan<- any, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		directory:  directory,
		endpoints:  endpoints,
		settings:   settings,
		progressCh: progressCh,
		logger:     logger.With(zap.String("component", "librarysync")),
	}
}

// SyncLibrary pulls every movie or episode of a library into the catalog
// and returns how many were stored.
func (s *Service) SyncLibrary(ctx context.Context, libraryID string) (int, error) {
	start := time.Now()

	lib, err := s.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return 0, err
	}
	kind, err := lib.Kind.ElementKind()
	if err != nil {
		return 0, err
	}
	settings, err := s.settings.Load()
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}
	base, token, err := s.endpoint(ctx, lib.ServerID)
	if err != nil {
		return 0, err
	}

	target := Target{
		LibraryID:  lib.ID,
		SectionKey: lib.Key,
		Name:       lib.Name,
		BaseURL:    base,
		Token:      token,
	}
	it := NewIterator(s.directory, settings.Sync.MaxConcurrentWindows, s.logger)
	elems, err := it.Sync(ctx, target, kind, settings.Sync.MaxBatchSize, settings.Sync.MinPause)
	if err != nil {
		return 0, err
	}

	if kind == types.KindEpisode {
		if err := s.store.UpsertTvShows(ctx, showsOf(lib.ID, elems)); err != nil {
			return 0, err
		}
	}
	if err := s.store.UpsertMediaElements(ctx, elems); err != nil {
		return 0, err
	}

	elapsed := time.Since(start)
	s.logger.Info("library synced",
		zap.String("library", lib.ID), zap.String("name", lib.Name),
		zap.Int("items", len(elems)), zap.Duration("elapsed", elapsed))
	events.Publish(s.progressCh, events.LibrarySyncedMsg{
		LibraryID: lib.ID,
		Name:      lib.Name,
		Items:     len(elems),
		Elapsed:   elapsed,
	})
	return len(elems), nil
}

// RefreshLibraries stores the movie and show sections of a server.
func (s *Service) RefreshLibraries(ctx context.Context, serverID string) ([]catalog.Library, error) {
	base, token, err := s.endpoint(ctx, serverID)
	if err != nil {
		return nil, err
	}
	dirs, err := s.directory.Sections(ctx, base, token)
	if err != nil {
		return nil, fmt.Errorf("list sections of %s: %w", serverID, err)
	}

	var libs []catalog.Library
	for _, d := range dirs {
		kind := catalog.LibraryKind(d.Type)
		if kind != catalog.LibraryMovies && kind != catalog.LibraryShows {
			continue
		}
		lib := catalog.Library{
			ID:       catalog.LibraryID(serverID, d.Key),
			Key:      d.Key,
			ServerID: serverID,
			Name:     d.Title,
			Kind:     kind,
		}
		if err := s.store.UpsertLibrary(ctx, lib); err != nil {
			return nil, err
		}
		libs = append(libs, lib)
	}
	s.logger.Info("libraries refreshed", zap.String("server", serverID), zap.Int("count", len(libs)))
	return libs, nil
}

// RefreshPlaylists stores the video playlists of a server with their items.
func (s *Service) RefreshPlaylists(ctx context.Context, serverID string) ([]catalog.Playlist, error) {
	base, token, err := s.endpoint(ctx, serverID)
	if err != nil {
		return nil, err
	}
	lists, err := s.directory.Playlists(ctx, base, token)
	if err != nil {
		return nil, fmt.Errorf("list playlists of %s: %w", serverID, err)
	}

	out := make([]catalog.Playlist, 0, len(lists))
	for _, m := range lists {
		items, err := s.directory.PlaylistItems(ctx, base, token, m.RatingKey)
		if err != nil {
			s.logger.Error("could not list playlist items", zap.String("playlist", m.RatingKey), zap.Error(err))
			continue
		}
		pl := catalog.Playlist{Key: m.RatingKey, ServerID: serverID, Name: m.Title, Items: items}
		if err := s.store.UpsertPlaylist(ctx, pl); err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, nil
}

func (s *Service) endpoint(ctx context.Context, serverID string) (string, string, error) {
	eps, err := s.endpoints.Resolve(ctx, serverID)
	if err != nil {
		return "", "", err
	}
	base, err := s.endpoints.Fastest(ctx, serverID)
	if err != nil {
		return "", "", err
	}
	return base, eps.Token, nil
}

func showsOf(libraryID string, elems []types.MediaElement) []catalog.TvShow {
	seen := make(map[string]bool)
	var shows []catalog.TvShow
	for _, e := range elems {
		if e.SeriesKey == "" || seen[e.SeriesKey] {
			continue
		}
		seen[e.SeriesKey] = true
		shows = append(shows, catalog.TvShow{Key: e.SeriesKey, LibraryID: libraryID, Title: e.SeriesTitle})
	}
	return shows
}
