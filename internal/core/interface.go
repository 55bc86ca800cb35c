package core

import (
	"context"
	"errors"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/engine/types"
)

// ErrNotPending is returned when cancelling a media key that is not queued.
var ErrNotPending = errors.New("download not pending")

// ErrSyncInProgress is returned when a library is already being synced.
var ErrSyncInProgress = errors.New("library sync already running")

// DownloadService defines the interface for interacting with the download queue.
// The CLI talks to a running daemon through the remote implementation; the
// daemon serves the local one over HTTP.
type DownloadService interface {
	// List returns pending downloads followed by finished ones.
	List(ctx context.Context) ([]types.DownloadStatus, error)

	// Pending returns the downloads that have not finished yet.
	Pending(ctx context.Context) ([]types.DownloadStatus, error)

	// Movie queues a movie. file optionally names the download uri of the
	// version to fetch.
	Movie(ctx context.Context, key, file string) ([]types.DownloadStatus, error)

	// Episode queues an episode.
	Episode(ctx context.Context, key, file string) ([]types.DownloadStatus, error)

	// Season queues every episode of one season of a show.
	Season(ctx context.Context, showKey string, season int) ([]types.DownloadStatus, error)

	// Show queues every episode of a show.
	Show(ctx context.Context, showKey string) ([]types.DownloadStatus, error)

	// Playlist queues every movie and episode of a playlist.
	Playlist(ctx context.Context, key string) ([]types.DownloadStatus, error)

	// Cancel stops or removes the download of a media key.
	Cancel(ctx context.Context, mediaKey string) error

	// Shutdown handles graceful shutdown of the service
	Shutdown(ctx context.Context) error
}

// LibraryService manages registered servers and their catalog.
type LibraryService interface {
	AddServer(ctx context.Context, srv catalog.Server) error
	Servers(ctx context.Context) ([]catalog.Server, error)

	// RefreshLibraries lists the sections and playlists of a server into the catalog.
	RefreshLibraries(ctx context.Context, serverID string) ([]catalog.Library, error)
	Libraries(ctx context.Context, serverID string) ([]catalog.Library, error)

	// SyncLibrary starts a background sync of a library and returns once it
	// is known to exist.
	SyncLibrary(ctx context.Context, libraryID string) error
}

func statuses(records []types.Record) []types.DownloadStatus {
	out := make([]types.DownloadStatus, 0, len(records))
	for _, r := range records {
		out = append(out, r.Status())
	}
	return out
}
