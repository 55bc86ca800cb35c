package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/download"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/librarysync"
)

var errShuttingDown = errors.New("service is shutting down")

// Catalog is the part of the catalog store the service reads directly.
type Catalog interface {
	UpsertServer(ctx context.Context, srv catalog.Server) error
	ListServers(ctx context.Context) ([]catalog.Server, error)
	GetLibrary(ctx context.Context, id string) (*catalog.Library, error)
	ListLibraries(ctx context.Context, serverID string) ([]catalog.Library, error)
}

// LocalDownloadService implements DownloadService and LibraryService on top
// of the in-process queue and sync service.
type LocalDownloadService struct {
	downloads *download.Service
	queue     *download.Queue
	syncer    *librarysync.Service
	store     Catalog
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	syncing map[string]bool
	subs    map[int]chan any
	nextSub int
}

// NewLocalDownloadService wires the service. Messages read from input are
// fanned out to StreamEvents subscribers until input is closed.
func NewLocalDownloadService(downloads *download.Service, syncer *librarysync.Service, store Catalog, input <-chan any, logger *zap.Logger) *LocalDownloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &LocalDownloadService{
		downloads: downloads,
		queue:     downloads.Queue(),
		syncer:    syncer,
		store:     store,
		logger:    logger.With(zap.String("component", "core")),
		ctx:       ctx,
		cancel:    cancel,
		syncing:   make(map[string]bool),
		subs:      make(map[int]chan any),
	}
	if input != nil {
		go s.broadcast(input)
	}
	return s
}

func (s *LocalDownloadService) List(ctx context.Context) ([]types.DownloadStatus, error) {
	records, err := s.queue.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return statuses(records), nil
}

func (s *LocalDownloadService) Pending(_ context.Context) ([]types.DownloadStatus, error) {
	return statuses(s.queue.GetPending()), nil
}

func (s *LocalDownloadService) Movie(ctx context.Context, key, file string) ([]types.DownloadStatus, error) {
	return queued(s.downloads.DownloadMovie(ctx, key, file))
}

func (s *LocalDownloadService) Episode(ctx context.Context, key, file string) ([]types.DownloadStatus, error) {
	return queued(s.downloads.DownloadEpisode(ctx, key, file))
}

func (s *LocalDownloadService) Season(ctx context.Context, showKey string, season int) ([]types.DownloadStatus, error) {
	return queued(s.downloads.DownloadSeason(ctx, showKey, season))
}

func (s *LocalDownloadService) Show(ctx context.Context, showKey string) ([]types.DownloadStatus, error) {
	return queued(s.downloads.DownloadTvShow(ctx, showKey))
}

func (s *LocalDownloadService) Playlist(ctx context.Context, key string) ([]types.DownloadStatus, error) {
	return queued(s.downloads.DownloadPlaylist(ctx, key))
}

func (s *LocalDownloadService) Cancel(_ context.Context, mediaKey string) error {
	if !s.queue.Cancel(mediaKey) {
		return ErrNotPending
	}
	return nil
}

func (s *LocalDownloadService) AddServer(ctx context.Context, srv catalog.Server) error {
	return s.store.UpsertServer(ctx, srv)
}

func (s *LocalDownloadService) Servers(ctx context.Context) ([]catalog.Server, error) {
	return s.store.ListServers(ctx)
}

func (s *LocalDownloadService) RefreshLibraries(ctx context.Context, serverID string) ([]catalog.Library, error) {
	libs, err := s.syncer.RefreshLibraries(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if _, err := s.syncer.RefreshPlaylists(ctx, serverID); err != nil {
		s.logger.Warn("could not refresh playlists", zap.String("server", serverID), zap.Error(err))
	}
	return libs, nil
}

func (s *LocalDownloadService) Libraries(ctx context.Context, serverID string) ([]catalog.Library, error) {
	return s.store.ListLibraries(ctx, serverID)
}

func (s *LocalDownloadService) SyncLibrary(ctx context.Context, libraryID string) error {
	if _, err := s.store.GetLibrary(ctx, libraryID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errShuttingDown
	}
	if s.syncing[libraryID] {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSyncInProgress, libraryID)
	}
	s.syncing[libraryID] = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.syncing, libraryID)
			s.mu.Unlock()
		}()
		if _, err := s.syncer.SyncLibrary(s.ctx, libraryID); err != nil {
			s.logger.Error("library sync failed", zap.String("library", libraryID), zap.Error(err))
		}
	}()
	return nil
}

// StreamEvents returns a channel that receives queue and sync events until
// ctx is done or the cleanup function is called.
func (s *LocalDownloadService) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, errShuttingDown
	}
	id := s.nextSub
	s.nextSub++
	ch := make(chan any, 100)
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		cleanup()
	}()
	return ch, cleanup, nil
}

// Shutdown stops background syncs, then the queue. Subscribers are closed.
func (s *LocalDownloadService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	err := s.queue.Shutdown(ctx)

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return err
}

func (s *LocalDownloadService) broadcast(input <-chan any) {
	for msg := range input {
		s.mu.Lock()
		for _, ch := range s.subs {
			select {
			case ch <- msg:
			default:
			}
		}
		s.mu.Unlock()
	}
}

func queued(records []types.Record, err error) ([]types.DownloadStatus, error) {
	if err != nil {
		return nil, err
	}
	return statuses(records), nil
}
