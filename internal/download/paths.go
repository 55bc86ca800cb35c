package download

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/engine/types"
)

var titleReplacer = strings.NewReplacer("/", "-", `\`, "-", "\x00", "")

// OutputPath places a media file under dir according to the file template
// configured for the element's kind.
func OutputPath(dir string, elem *types.MediaElement, file types.MediaFile, template string) (string, error) {
	name := serverFileName(file)

	switch elem.Kind {
	case types.KindMovie:
		switch template {
		case config.MovieTemplateFilename:
			return filepath.Join(dir, name), nil
		case config.MovieTemplateDirectory:
			return filepath.Join(dir, dirTitle(elem.Title), name), nil
		}
	case types.KindEpisode:
		series := elem.SeriesTitle
		if series == "" {
			series = elem.SeriesKey
		}
		switch template {
		case config.EpisodeTemplateSeriesSeason:
			return filepath.Join(dir, dirTitle(series), "Season "+strconv.Itoa(elem.SeasonNumber), name), nil
		case config.EpisodeTemplateSeries:
			return filepath.Join(dir, dirTitle(series), name), nil
		}
	default:
		return "", fmt.Errorf("%w: no templates for %q", ErrUnknownTemplate, elem.Kind)
	}
	return "", fmt.Errorf("%w: %q for %s", ErrUnknownTemplate, template, elem.Kind)
}

// serverFileName is the last element of the server's file path. Servers on
// Windows report backslash paths.
func serverFileName(file types.MediaFile) string {
	p := file.ServerFilePath
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	if p == "" || p == "." || p == ".." {
		p = path.Base(file.DownloadURI)
	}
	if p == "" || p == "." || p == "/" || p == ".." {
		return "download.bin"
	}
	return p
}

// dirTitle makes a title usable as one directory name.
func dirTitle(title string) string {
	t := strings.TrimSpace(titleReplacer.Replace(title))
	switch t {
	case "", ".", "..":
		return "_"
	}
	return t
}
