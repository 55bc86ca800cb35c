package download

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/engine/types"
)

func TestOutputPath(t *testing.T) {
	movie := &types.MediaElement{Kind: types.KindMovie, Title: "AC/DC: Live"}
	episode := &types.MediaElement{Kind: types.KindEpisode, SeriesTitle: "Show", SeasonNumber: 3}
	file := types.MediaFile{ServerFilePath: "/data/media/file name.mkv"}

	tests := []struct {
		name     string
		elem     *types.MediaElement
		template string
		want     string
	}{
		{"movie filename", movie, config.MovieTemplateFilename, filepath.Join("out", "file name.mkv")},
		{"movie directory", movie, config.MovieTemplateDirectory, filepath.Join("out", "AC-DC: Live", "file name.mkv")},
		{"episode series season", episode, config.EpisodeTemplateSeriesSeason, filepath.Join("out", "Show", "Season 3", "file name.mkv")},
		{"episode series", episode, config.EpisodeTemplateSeries, filepath.Join("out", "Show", "file name.mkv")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputPath("out", tt.elem, file, tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputPath_UnknownTemplate(t *testing.T) {
	file := types.MediaFile{ServerFilePath: "/a.mkv"}

	_, err := OutputPath("out", &types.MediaElement{Kind: types.KindMovie}, file, config.EpisodeTemplateSeries)
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = OutputPath("out", &types.MediaElement{Kind: types.KindEpisode}, file, "")
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = OutputPath("out", &types.MediaElement{Kind: "album"}, file, config.MovieTemplateFilename)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestServerFileName(t *testing.T) {
	assert.Equal(t, "movie.mkv", serverFileName(types.MediaFile{ServerFilePath: "/data/movie.mkv"}))
	assert.Equal(t, "movie.mkv", serverFileName(types.MediaFile{ServerFilePath: `C:\Media\movie.mkv`}))
	assert.Equal(t, "file.mkv", serverFileName(types.MediaFile{DownloadURI: "/library/parts/1/file.mkv"}))
	assert.Equal(t, "download.bin", serverFileName(types.MediaFile{}))
}

func TestDirTitle(t *testing.T) {
	assert.Equal(t, "a-b-c", dirTitle(`a/b\c`))
	assert.Equal(t, "_", dirTitle(".."))
	assert.Equal(t, "_", dirTitle("  "))
}

func TestSelectMediaFile(t *testing.T) {
	files := []types.MediaFile{
		{DownloadURI: "a", VideoResolution: "720", VideoCodec: "h264"},
		{DownloadURI: "b", VideoResolution: "1080", VideoCodec: "h264"},
		{DownloadURI: "c", VideoResolution: "1080", VideoCodec: "HEVC"},
	}

	tests := []struct {
		resolution, codec, want string
	}{
		{"", "", "a"},
		{"1080", "", "b"},
		{"1080", "hevc", "c"},
		{"4k", "hevc", "c"},
		{"720", "hevc", "a"},
		{"480", "av1", "a"},
	}
	for _, tt := range tests {
		got, ok := SelectMediaFile(files, tt.resolution, tt.codec)
		require.True(t, ok)
		assert.Equal(t, tt.want, got.DownloadURI, "resolution=%q codec=%q", tt.resolution, tt.codec)
	}

	_, ok := SelectMediaFile(nil, "1080", "")
	assert.False(t, ok)
}
