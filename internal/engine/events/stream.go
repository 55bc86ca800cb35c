package events

import (
	"encoding/json"
	"fmt"
)

// Event names used on the /api/events stream.
const (
	NameQueued    = "queued"
	NameStarted   = "started"
	NameComplete  = "complete"
	NameError     = "error"
	NameCancelled = "cancelled"
	NameRemoved   = "removed"
	NameSynced    = "synced"
)

// Name returns the stream name of msg, false for unknown messages.
func Name(msg any) (string, bool) {
	switch msg.(type) {
	case DownloadQueuedMsg:
		return NameQueued, true
	case DownloadStartedMsg:
		return NameStarted, true
	case DownloadCompleteMsg:
		return NameComplete, true
	case DownloadErrorMsg:
		return NameError, true
	case DownloadCancelledMsg:
		return NameCancelled, true
	case DownloadRemovedMsg:
		return NameRemoved, true
	case LibrarySyncedMsg:
		return NameSynced, true
	}
	return "", false
}

// Decode parses the payload of a named stream event.
func Decode(name string, data []byte) (any, error) {
	switch name {
	case NameQueued:
		return decodeAs[DownloadQueuedMsg](data)
	case NameStarted:
		return decodeAs[DownloadStartedMsg](data)
	case NameComplete:
		return decodeAs[DownloadCompleteMsg](data)
	case NameError:
		return decodeAs[DownloadErrorMsg](data)
	case NameCancelled:
		return decodeAs[DownloadCancelledMsg](data)
	case NameRemoved:
		return decodeAs[DownloadRemovedMsg](data)
	case NameSynced:
		return decodeAs[LibrarySyncedMsg](data)
	}
	return nil, fmt.Errorf("unknown event %q", name)
}

func decodeAs[T any](data []byte) (any, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
