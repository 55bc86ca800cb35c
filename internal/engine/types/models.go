package types

import (
	"fmt"
	"time"
)

// ElementKind distinguishes downloadable media elements.
type ElementKind string

const (
	KindMovie   ElementKind = "movie"
	KindEpisode ElementKind = "episode"
)

// ParseElementKind accepts the lower-case names used on the wire.
func ParseElementKind(s string) (ElementKind, error) {
	switch ElementKind(s) {
	case KindMovie, KindEpisode:
		return ElementKind(s), nil
	default:
		return "", fmt.Errorf("unknown element kind %q", s)
	}
}

// MediaFile is one downloadable version of a media element.
type MediaFile struct {
	DownloadURI     string `json:"downloadUri"`    // server-relative part path
	ServerFilePath  string `json:"serverFilePath"` // path on the media server's disk
	TotalBytes      int64  `json:"totalBytes"`
	VideoResolution string `json:"videoResolution,omitempty"`
	VideoCodec      string `json:"videoCodec,omitempty"`
}

// MediaElement is a movie or an episode as known to the catalog.
// Episodes point at their series by key only.
type MediaElement struct {
	Key           string      `json:"key"`
	Kind          ElementKind `json:"kind"`
	LibraryID     string      `json:"libraryId"`
	Title         string      `json:"title"`
	Year          int         `json:"year,omitempty"`
	SeriesKey     string      `json:"seriesKey,omitempty"`
	SeriesTitle   string      `json:"seriesTitle,omitempty"`
	SeasonNumber  int         `json:"seasonNumber,omitempty"`
	EpisodeNumber int         `json:"episodeNumber,omitempty"`
	Files         []MediaFile `json:"files,omitempty"`
}

// Record is the persisted outcome of a finished job.
type Record struct {
	ID          string      `json:"id"`
	MediaKey    string      `json:"mediaKey"`
	Name        string      `json:"name"`
	Kind        ElementKind `json:"elementType"`
	URI         string      `json:"uri"`
	FilePath    string      `json:"filePath"`
	FileName    string      `json:"fileName"`
	TotalBytes  int64       `json:"totalBytes"`
	Transferred int64       `json:"downloadedBytes"`
	Started     *time.Time  `json:"started,omitempty"`
	Finished    *time.Time  `json:"finished,omitempty"`
	Success     bool        `json:"finishedSuccessfully"`
	ContentType string      `json:"contentType,omitempty"`
}

// Progress is transferred/total, 0 when the size is unknown.
func (r Record) Progress() float64 {
	if r.TotalBytes <= 0 {
		return 0
	}
	p := float64(r.Transferred) / float64(r.TotalBytes)
	if p > 1 {
		return 1
	}
	return p
}

// Status converts the record into the API resource.
func (r Record) Status() DownloadStatus {
	return DownloadStatus{
		ID:                   r.ID,
		Name:                 r.Name,
		URI:                  r.URI,
		Progress:             r.Progress(),
		Started:              r.Started,
		Finished:             r.Finished,
		FinishedSuccessfully: r.Success,
		DownloadedBytes:      r.Transferred,
		TotalBytes:           r.TotalBytes,
		ElementType:          r.Kind,
		FileName:             r.FileName,
		FilePath:             r.FilePath,
		MediaKey:             r.MediaKey,
	}
}

// DownloadStatus is the wire representation of a pending or finished download.
type DownloadStatus struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	URI                  string      `json:"uri"`
	Progress             float64     `json:"progress"` // 0..1
	Started              *time.Time  `json:"started"`
	Finished             *time.Time  `json:"finished"`
	FinishedSuccessfully bool        `json:"finishedSuccessfully"`
	DownloadedBytes      int64       `json:"downloadedBytes"`
	TotalBytes           int64       `json:"totalBytes"`
	ElementType          ElementKind `json:"elementType"`
	FileName             string      `json:"fileName"`
	FilePath             string      `json:"filePath"`
	MediaKey             string      `json:"mediaKey"`
}

// State summarizes the lifecycle position of a download.
func (s DownloadStatus) State() string {
	switch {
	case s.Finished != nil && s.FinishedSuccessfully:
		return "completed"
	case s.Finished != nil:
		return "failed"
	case s.Started != nil:
		return "downloading"
	default:
		return "queued"
	}
}
