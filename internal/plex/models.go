package plex

import (
	"fmt"

	"github.com/lunikdev/pledo/internal/engine/types"
)

// Plex metadata type codes used by library search.
const (
	TypeMovie   = 1
	TypeShow    = 2
	TypeSeason  = 3
	TypeEpisode = 4
)

// SearchType maps a downloadable element kind to the Plex type code.
func SearchType(kind types.ElementKind) (int, error) {
	switch kind {
	case types.KindMovie:
		return TypeMovie, nil
	case types.KindEpisode:
		return TypeEpisode, nil
	default:
		return 0, fmt.Errorf("no plex search type for %q", kind)
	}
}

type envelope struct {
	MediaContainer MediaContainer `json:"MediaContainer"`
}

// MediaContainer is the root object of every Plex JSON response.
type MediaContainer struct {
	Size              int         `json:"size"`
	TotalSize         int         `json:"totalSize"`
	Offset            int         `json:"offset"`
	MachineIdentifier string      `json:"machineIdentifier,omitempty"`
	Version           string      `json:"version,omitempty"`
	Directory         []Directory `json:"Directory,omitempty"`
	Metadata          []Metadata  `json:"Metadata,omitempty"`
}

// Directory is a library section.
type Directory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"` // movie, show, artist, photo
}

// Metadata is one item of a listing: movie, episode or playlist.
type Metadata struct {
	RatingKey            string  `json:"ratingKey"`
	Type                 string  `json:"type"`
	Title                string  `json:"title"`
	Year                 int     `json:"year,omitempty"`
	GrandparentRatingKey string  `json:"grandparentRatingKey,omitempty"`
	GrandparentTitle     string  `json:"grandparentTitle,omitempty"`
	ParentIndex          int     `json:"parentIndex,omitempty"`
	Index                int     `json:"index,omitempty"`
	PlaylistType         string  `json:"playlistType,omitempty"`
	Media                []Media `json:"Media,omitempty"`
}

// Media is one version of an item.
type Media struct {
	VideoResolution string `json:"videoResolution,omitempty"`
	VideoCodec      string `json:"videoCodec,omitempty"`
	Part            []Part `json:"Part,omitempty"`
}

// Part is one file of a version.
type Part struct {
	Key  string `json:"key"`
	File string `json:"file"`
	Size int64  `json:"size"`
}

// Identity is the unauthenticated /identity answer.
type Identity struct {
	MachineIdentifier string
	Version           string
}

// Elements converts listing items of the given kind into catalog elements.
// Items of other types are skipped.
func (mc *MediaContainer) Elements(libraryID string, kind types.ElementKind) []types.MediaElement {
	want := string(kind)
	elems := make([]types.MediaElement, 0, len(mc.Metadata))
	for _, m := range mc.Metadata {
		if m.Type != want {
			continue
		}
		e := types.MediaElement{
			Key:       m.RatingKey,
			Kind:      kind,
			LibraryID: libraryID,
			Title:     m.Title,
			Year:      m.Year,
		}
		if kind == types.KindEpisode {
			e.SeriesKey = m.GrandparentRatingKey
			e.SeriesTitle = m.GrandparentTitle
			e.SeasonNumber = m.ParentIndex
			e.EpisodeNumber = m.Index
		}
		for _, media := range m.Media {
			for _, part := range media.Part {
				e.Files = append(e.Files, types.MediaFile{
					DownloadURI:     part.Key,
					ServerFilePath:  part.File,
					TotalBytes:      part.Size,
					VideoResolution: media.VideoResolution,
					VideoCodec:      media.VideoCodec,
				})
			}
		}
		elems = append(elems, e)
	}
	return elems
}
