package download

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/connection"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/utils"
)

var (
	ErrMediaNotFound   = errors.New("media not found")
	ErrUnknownTemplate = errors.New("unknown file template")
	ErrNoMediaFile     = errors.New("no matching media file")
	ErrNoEndpoint      = errors.New("server has no known endpoint")
)

// Catalog is the read side of the catalog used to build jobs.
type Catalog interface {
	GetMediaElement(ctx context.Context, kind types.ElementKind, key string) (*types.MediaElement, error)
	GetTvShow(ctx context.Context, key string) (*catalog.TvShow, error)
	EpisodesOfShow(ctx context.Context, showKey string) ([]types.MediaElement, error)
	EpisodesOfSeason(ctx context.Context, showKey string, season int) ([]types.MediaElement, error)
	GetPlaylist(ctx context.Context, key string) (*catalog.Playlist, error)
	GetLibrary(ctx context.Context, id string) (*catalog.Library, error)
	GetServer(ctx context.Context, id string) (*catalog.Server, error)
}

// Service creates jobs for catalog media and hands them to the queue.
// Every method returns snapshots of the jobs it actually enqueued; media
// already pending is skipped silently.
type Service struct {
	queue    *Queue
	catalog  Catalog
	settings config.Provider
	logger   *zap.Logger
}

func NewService(queue *Queue, cat Catalog, settings config.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		queue:    queue,
		catalog:  cat,
		settings: settings,
		logger:   logger.With(zap.String("component", "download")),
	}
}

// Queue exposes the underlying queue.
func (s *Service) Queue() *Queue { return s.queue }

// DownloadMovie queues a movie. fileKey selects a media file by download
// path; empty means pick by preference.
func (s *Service) DownloadMovie(ctx context.Context, key, fileKey string) ([]types.Record, error) {
	return s.downloadKey(ctx, types.KindMovie, key, fileKey)
}

// DownloadEpisode queues an episode.
func (s *Service) DownloadEpisode(ctx context.Context, key, fileKey string) ([]types.Record, error) {
	return s.downloadKey(ctx, types.KindEpisode, key, fileKey)
}

// DownloadSeason queues every episode of one season of a show.
func (s *Service) DownloadSeason(ctx context.Context, showKey string, season int) ([]types.Record, error) {
	if err := s.requireShow(ctx, showKey); err != nil {
		return nil, err
	}
	episodes, err := s.catalog.EpisodesOfSeason(ctx, showKey, season)
	if err != nil {
		return nil, err
	}
	return s.downloadAll(ctx, episodes)
}

// DownloadTvShow queues every episode of a show.
func (s *Service) DownloadTvShow(ctx context.Context, showKey string) ([]types.Record, error) {
	if err := s.requireShow(ctx, showKey); err != nil {
		return nil, err
	}
	episodes, err := s.catalog.EpisodesOfShow(ctx, showKey)
	if err != nil {
		return nil, err
	}
	return s.downloadAll(ctx, episodes)
}

// DownloadPlaylist queues every movie and episode of a playlist in order.
// Items missing from the catalog are skipped.
func (s *Service) DownloadPlaylist(ctx context.Context, key string) ([]types.Record, error) {
	pl, err := s.catalog.GetPlaylist(ctx, key)
	if err != nil {
		return nil, notFound(err, "playlist", key)
	}

	var elems []types.MediaElement
	for _, item := range pl.Items {
		elem, err := s.lookup(ctx, item)
		if errors.Is(err, ErrMediaNotFound) {
			s.logger.Warn("playlist item not in catalog", zap.String("playlist", key), zap.String("media", item))
			continue
		}
		if err != nil {
			return nil, err
		}
		elems = append(elems, *elem)
	}
	return s.downloadAll(ctx, elems)
}

func (s *Service) lookup(ctx context.Context, key string) (*types.MediaElement, error) {
	for _, kind := range []types.ElementKind{types.KindMovie, types.KindEpisode} {
		elem, err := s.catalog.GetMediaElement(ctx, kind, key)
		if err == nil {
			return elem, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, key)
}

func (s *Service) requireShow(ctx context.Context, showKey string) error {
	if _, err := s.catalog.GetTvShow(ctx, showKey); err != nil {
		return notFound(err, "show", showKey)
	}
	return nil
}

func (s *Service) downloadKey(ctx context.Context, kind types.ElementKind, key, fileKey string) ([]types.Record, error) {
	elem, err := s.catalog.GetMediaElement(ctx, kind, key)
	if err != nil {
		return nil, notFound(err, string(kind), key)
	}
	settings, err := s.settings.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	job, err := s.createJob(ctx, elem, fileKey, settings)
	if err != nil {
		return nil, err
	}
	return s.enqueue(job), nil
}

// downloadAll queues elements with their preferred file. Elements without
// any file are skipped; other errors abort.
func (s *Service) downloadAll(ctx context.Context, elems []types.MediaElement) ([]types.Record, error) {
	settings, err := s.settings.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	var out []types.Record
	for i := range elems {
		job, err := s.createJob(ctx, &elems[i], "", settings)
		if errors.Is(err, ErrNoMediaFile) {
			s.logger.Warn("could not prepare download due to missing media file", zap.String("media", elems[i].Key))
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, s.enqueue(job)...)
	}
	return out, nil
}

func (s *Service) enqueue(job *types.Job) []types.Record {
	if !s.queue.Enqueue(job) {
		s.logger.Debug("already queued", zap.String("media", job.MediaKey))
		return nil
	}
	return []types.Record{job.Snapshot()}
}

func (s *Service) createJob(ctx context.Context, elem *types.MediaElement, fileKey string, settings *config.Settings) (*types.Job, error) {
	var (
		file types.MediaFile
		ok   bool
	)
	if fileKey != "" {
		file, ok = findMediaFile(elem.Files, fileKey)
	} else {
		file, ok = SelectMediaFile(elem.Files, settings.Media.PreferredResolution, settings.Media.PreferredVideoCodec)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNoMediaFile, elem.Kind, elem.Key)
	}

	dir, template := settings.General.MovieDirectory, settings.General.MovieFileTemplate
	if elem.Kind == types.KindEpisode {
		dir, template = settings.General.EpisodeDirectory, settings.General.EpisodeFileTemplate
	}
	filePath, err := OutputPath(dir, elem, file, template)
	if err != nil {
		return nil, err
	}

	lib, err := s.catalog.GetLibrary(ctx, elem.LibraryID)
	if err != nil {
		return nil, fmt.Errorf("library of %s: %w", elem.Key, err)
	}
	srv, err := s.catalog.GetServer(ctx, lib.ServerID)
	if err != nil {
		return nil, fmt.Errorf("server of %s: %w", elem.Key, err)
	}
	base := srv.LastKnownURI
	if base == "" {
		if candidates := connection.Candidates(srv); len(candidates) > 0 {
			base = candidates[0]
		}
	}
	if base == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, srv.ID)
	}
	uri, err := utils.JoinEndpoint(base, file.DownloadURI)
	if err != nil {
		return nil, err
	}

	job := types.NewJob(elem.Key, displayName(elem), elem.Kind)
	job.URI = uri
	job.ServerID = srv.ID
	job.ResourcePath = file.DownloadURI
	job.Token = srv.AccessToken
	job.FilePath = filePath
	job.SetFileName(serverFileName(file))
	job.SetTotal(file.TotalBytes)
	return job, nil
}

func displayName(elem *types.MediaElement) string {
	if elem.Kind == types.KindEpisode && elem.SeriesTitle != "" {
		return fmt.Sprintf("%s S%02dE%02d %s", elem.SeriesTitle, elem.SeasonNumber, elem.EpisodeNumber, elem.Title)
	}
	return elem.Title
}

func notFound(err error, what, key string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrMediaNotFound, what, key)
	}
	return err
}
