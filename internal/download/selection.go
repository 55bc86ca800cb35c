package download

import (
	"strings"

	"github.com/lunikdev/pledo/internal/engine/types"
)

// SelectMediaFile narrows files to the preferred resolution, then to the
// preferred codec, and takes the first left. A preference nothing matches
// is ignored.
func SelectMediaFile(files []types.MediaFile, resolution, codec string) (types.MediaFile, bool) {
	selection := files
	if resolution = strings.TrimSpace(resolution); resolution != "" {
		selection = narrow(selection, func(f types.MediaFile) bool {
			return strings.EqualFold(f.VideoResolution, resolution)
		})
	}
	if codec = strings.TrimSpace(codec); codec != "" {
		selection = narrow(selection, func(f types.MediaFile) bool {
			return strings.EqualFold(f.VideoCodec, codec)
		})
	}
	if len(selection) == 0 {
		return types.MediaFile{}, false
	}
	return selection[0], true
}

func narrow(files []types.MediaFile, keep func(types.MediaFile) bool) []types.MediaFile {
	var out []types.MediaFile
	for _, f := range files {
		if keep(f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return files
	}
	return out
}

func findMediaFile(files []types.MediaFile, downloadURI string) (types.MediaFile, bool) {
	for _, f := range files {
		if f.DownloadURI == downloadURI {
			return f, true
		}
	}
	return types.MediaFile{}, false
}
