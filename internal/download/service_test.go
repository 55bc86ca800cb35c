package download

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/engine/types"
)

type serviceFixture struct {
	svc      *Service
	queue    *Queue
	store    *catalog.Store
	settings *config.Settings
	movies   string
	episodes string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()

	store, err := catalog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.UpsertServer(ctx, catalog.Server{
		ID:           "s1",
		Name:         "Home",
		AccessToken:  "tok",
		LastKnownURI: "http://10.0.0.2:32400",
	}))
	require.NoError(t, store.UpsertLibrary(ctx, catalog.Library{ID: "s1:1", Key: "1", ServerID: "s1", Name: "Movies", Kind: catalog.LibraryMovies}))
	require.NoError(t, store.UpsertLibrary(ctx, catalog.Library{ID: "s1:2", Key: "2", ServerID: "s1", Name: "Shows", Kind: catalog.LibraryShows}))
	require.NoError(t, store.UpsertTvShows(ctx, []catalog.TvShow{{Key: "200", LibraryID: "s1:2", Title: "Some/Show"}}))

	episode := func(key string, season, number int, files ...types.MediaFile) types.MediaElement {
		return types.MediaElement{
			Key: key, Kind: types.KindEpisode, LibraryID: "s1:2", Title: "Episode " + key,
			SeriesKey: "200", SeasonNumber: season, EpisodeNumber: number, Files: files,
		}
	}
	file := func(key string) types.MediaFile {
		return types.MediaFile{
			DownloadURI:    "/library/parts/" + key + "/file.mkv",
			ServerFilePath: `D:\TV\Some Show\` + key + ".mkv",
			TotalBytes:     500,
		}
	}
	require.NoError(t, store.UpsertMediaElements(ctx, []types.MediaElement{
		{
			Key: "100", Kind: types.KindMovie, LibraryID: "s1:1", Title: "The Movie", Year: 2001,
			Files: []types.MediaFile{
				{DownloadURI: "/library/parts/1/file.mkv", ServerFilePath: "/movies/The Movie 720.mkv", TotalBytes: 700, VideoResolution: "720", VideoCodec: "h264"},
				{DownloadURI: "/library/parts/2/file.mkv", ServerFilePath: "/movies/The Movie 1080.mkv", TotalBytes: 1080, VideoResolution: "1080", VideoCodec: "hevc"},
			},
		},
		{Key: "101", Kind: types.KindMovie, LibraryID: "s1:1", Title: "No Files"},
		episode("301", 1, 1, file("301")),
		episode("302", 1, 2, file("302")),
		episode("303", 2, 1, file("303")),
		episode("304", 2, 2),
	}))
	require.NoError(t, store.UpsertPlaylist(ctx, catalog.Playlist{
		Key: "p1", ServerID: "s1", Name: "Mix", Items: []string{"302", "missing", "100"},
	}))

	dir := t.TempDir()
	settings := config.DefaultSettings()
	settings.General.MovieDirectory = filepath.Join(dir, "Movies")
	settings.General.EpisodeDirectory = filepath.Join(dir, "TV")
	settings.General.MovieFileTemplate = config.MovieTemplateDirectory
	settings.General.EpisodeFileTemplate = config.EpisodeTemplateSeriesSeason

	q := NewQueue(&fakeTransferer{fn: blockUntilCancelled(nil)}, &memRecords{}, nil, nil)
	t.Cleanup(func() { shutdown(t, q) })

	return &serviceFixture{
		svc:      NewService(q, store, config.StaticProvider{Settings: settings}, nil),
		queue:    q,
		store:    store,
		settings: settings,
		movies:   settings.General.MovieDirectory,
		episodes: settings.General.EpisodeDirectory,
	}
}

func TestService_DownloadMovie(t *testing.T) {
	f := newServiceFixture(t)
	f.settings.Media.PreferredResolution = "1080"

	recs, err := f.svc.DownloadMovie(context.Background(), "100", "")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "100", rec.MediaKey)
	assert.Equal(t, "The Movie", rec.Name)
	assert.Equal(t, types.KindMovie, rec.Kind)
	assert.Equal(t, "http://10.0.0.2:32400/library/parts/2/file.mkv", rec.URI)
	assert.Equal(t, filepath.Join(f.movies, "The Movie", "The Movie 1080.mkv"), rec.FilePath)
	assert.Equal(t, "The Movie 1080.mkv", rec.FileName)
	assert.EqualValues(t, 1080, rec.TotalBytes)
}

func TestService_DownloadMovieWithExplicitFile(t *testing.T) {
	f := newServiceFixture(t)
	f.settings.Media.PreferredResolution = "1080"

	recs, err := f.svc.DownloadMovie(context.Background(), "100", "/library/parts/1/file.mkv")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "http://10.0.0.2:32400/library/parts/1/file.mkv", recs[0].URI)

	_, err = f.svc.DownloadMovie(context.Background(), "100", "/library/parts/9/file.mkv")
	assert.ErrorIs(t, err, ErrNoMediaFile)
}

func TestService_DownloadMovieTwiceQueuesOnce(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.DownloadMovie(ctx, "100", "")
	require.NoError(t, err)
	second, err := f.svc.DownloadMovie(ctx, "100", "")
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Len(t, f.queue.GetPending(), 1)
}

func TestService_Errors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.DownloadMovie(ctx, "999", "")
	assert.ErrorIs(t, err, ErrMediaNotFound)

	_, err = f.svc.DownloadEpisode(ctx, "100", "")
	assert.ErrorIs(t, err, ErrMediaNotFound, "a movie key is not an episode")

	_, err = f.svc.DownloadMovie(ctx, "101", "")
	assert.ErrorIs(t, err, ErrNoMediaFile)

	_, err = f.svc.DownloadSeason(ctx, "999", 1)
	assert.ErrorIs(t, err, ErrMediaNotFound)

	_, err = f.svc.DownloadPlaylist(ctx, "nope")
	assert.ErrorIs(t, err, ErrMediaNotFound)

	f.settings.General.MovieFileTemplate = "by-year"
	_, err = f.svc.DownloadMovie(ctx, "100", "")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestService_NoEndpoint(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertServer(ctx, catalog.Server{ID: "s2", Name: "Empty"}))
	require.NoError(t, f.store.UpsertLibrary(ctx, catalog.Library{ID: "s2:1", Key: "1", ServerID: "s2", Name: "M", Kind: catalog.LibraryMovies}))
	require.NoError(t, f.store.UpsertMediaElements(ctx, []types.MediaElement{{
		Key: "900", Kind: types.KindMovie, LibraryID: "s2:1", Title: "Lost",
		Files: []types.MediaFile{{DownloadURI: "/library/parts/9/file.mkv", ServerFilePath: "/m/lost.mkv"}},
	}}))

	_, err := f.svc.DownloadMovie(ctx, "900", "")
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestService_DownloadEpisodeUsesSeriesSeasonLayout(t *testing.T) {
	f := newServiceFixture(t)

	recs, err := f.svc.DownloadEpisode(context.Background(), "303", "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, filepath.Join(f.episodes, "Some-Show", "Season 2", "303.mkv"), recs[0].FilePath)
	assert.Equal(t, "Some/Show S02E01 Episode 303", recs[0].Name)
	assert.Equal(t, types.KindEpisode, recs[0].Kind)
}

func TestService_DownloadSeason(t *testing.T) {
	f := newServiceFixture(t)

	recs, err := f.svc.DownloadSeason(context.Background(), "200", 1)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "301", recs[0].MediaKey)
	assert.Equal(t, "302", recs[1].MediaKey)
}

func TestService_DownloadTvShowSkipsEpisodesWithoutFiles(t *testing.T) {
	f := newServiceFixture(t)

	recs, err := f.svc.DownloadTvShow(context.Background(), "200")
	require.NoError(t, err)

	var keys []string
	for _, r := range recs {
		keys = append(keys, r.MediaKey)
	}
	assert.Equal(t, []string{"301", "302", "303"}, keys)
}

func TestService_DownloadPlaylist(t *testing.T) {
	f := newServiceFixture(t)

	recs, err := f.svc.DownloadPlaylist(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "302", recs[0].MediaKey)
	assert.Equal(t, types.KindEpisode, recs[0].Kind)
	assert.Equal(t, "100", recs[1].MediaKey)
	assert.Equal(t, types.KindMovie, recs[1].Kind)
}
