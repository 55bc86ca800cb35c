package events

import (
	"encoding/json"
	"errors"
	"time"
)

// DownloadQueuedMsg is sent when a job enters the pending list
type DownloadQueuedMsg struct {
	DownloadID string
	MediaKey   string
	Name       string
}

// DownloadStartedMsg is sent when the worker picks a job up
type DownloadStartedMsg struct {
	DownloadID string
	MediaKey   string
	Name       string
	Total      int64
	DestPath   string // Full path to the destination file
}

// DownloadCompleteMsg signals that the download finished successfully
type DownloadCompleteMsg struct {
	DownloadID string
	MediaKey   string
	Name       string
	Elapsed    time.Duration
	Total      int64
}

// DownloadErrorMsg signals that a transfer failed terminally
type DownloadErrorMsg struct {
	DownloadID string
	MediaKey   string
	Name       string
	Err        error
}

func (m DownloadErrorMsg) MarshalJSON() ([]byte, error) {
	type encoded struct {
		DownloadID string `json:"DownloadID"`
		MediaKey   string `json:"MediaKey,omitempty"`
		Name       string `json:"Name,omitempty"`
		Err        string `json:"Err,omitempty"`
	}

	out := encoded{
		DownloadID: m.DownloadID,
		MediaKey:   m.MediaKey,
		Name:       m.Name,
	}
	if m.Err != nil {
		out.Err = m.Err.Error()
	}

	return json.Marshal(out)
}

func (m *DownloadErrorMsg) UnmarshalJSON(data []byte) error {
	var aux struct {
		DownloadID string          `json:"DownloadID"`
		MediaKey   string          `json:"MediaKey"`
		Name       string          `json:"Name"`
		Err        json.RawMessage `json:"Err"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.DownloadID = aux.DownloadID
	m.MediaKey = aux.MediaKey
	m.Name = aux.Name
	m.Err = nil

	if len(aux.Err) == 0 {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Err, &errStr); err == nil {
		if errStr != "" {
			m.Err = errors.New(errStr)
		}
		return nil
	}

	// Accept non-string payloads (e.g. {}).
	raw := string(aux.Err)
	if raw != "" && raw != "null" {
		m.Err = errors.New(raw)
	}
	return nil
}

// DownloadCancelledMsg is sent when an in-flight job stops on request
type DownloadCancelledMsg struct {
	DownloadID string
	MediaKey   string
	Name       string
	Downloaded int64
}

// DownloadRemovedMsg is sent when a job is cancelled before it started
type DownloadRemovedMsg struct {
	DownloadID string
	MediaKey   string
	Name       string
}

// LibrarySyncedMsg is sent after a library sync stored its elements
type LibrarySyncedMsg struct {
	LibraryID string
	Name      string
	Items     int
	Elapsed   time.Duration
}

// Publish delivers msg without blocking the sender; a full or nil channel
// drops it.
func Publish(ch chan<- any, msg any) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}
