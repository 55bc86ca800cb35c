package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/engine/events"
	"github.com/lunikdev/pledo/internal/engine/types"
)

// APIError is a non-2xx answer of the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// ServerRequest is the body of POST /api/servers. Unlike catalog.Server it
// carries the access token.
type ServerRequest struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	AccessToken string               `json:"accessToken"`
	Connections []catalog.Connection `json:"connections"`
}

// RemoteDownloadService implements DownloadService and LibraryService
// against a running daemon.
type RemoteDownloadService struct {
	BaseURL   string
	Client    *http.Client
	SSEClient *http.Client
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewRemoteDownloadService creates a new remote service instance.
func NewRemoteDownloadService(baseURL string) *RemoteDownloadService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RemoteDownloadService{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Client:    &http.Client{Timeout: 30 * time.Second},
		SSEClient: &http.Client{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *RemoteDownloadService) doRequest(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		// Limit error body read to 1KB
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *RemoteDownloadService) statuses(ctx context.Context, method, path string) ([]types.DownloadStatus, error) {
	var out []types.DownloadStatus
	if err := s.doRequest(ctx, method, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RemoteDownloadService) List(ctx context.Context) ([]types.DownloadStatus, error) {
	return s.statuses(ctx, http.MethodGet, "/api/downloads")
}

func (s *RemoteDownloadService) Pending(ctx context.Context) ([]types.DownloadStatus, error) {
	return s.statuses(ctx, http.MethodGet, "/api/downloads/pending")
}

func (s *RemoteDownloadService) Movie(ctx context.Context, key, file string) ([]types.DownloadStatus, error) {
	return s.statuses(ctx, http.MethodPost, "/api/downloads/movie/"+url.PathEscape(key)+fileQuery(file))
}

func (s *RemoteDownloadService) Episode(ctx context.Context, key, file string) ([]types.DownloadStatus, error) {
	return s.statuses(ctx, http.MethodPost, "/api/downloads/episode/"+url.PathEscape(key)+fileQuery(file))
}

func (s *RemoteDownloadService) Season(ctx context.Context, showKey string, season int) ([]types.DownloadStatus, error) {
	return s.statuses(ctx, http.MethodPost, "/api/downloads/season/"+url.PathEscape(showKey)+"/"+strconv.Itoa(season))
}

func (s *RemoteDownloadService) Show(ctx context.Context, showKey string) ([]types.DownloadStatus, error) {
	return s.statuses(ctx, http.MethodPost, "/api/downloads/show/"+url.PathEscape(showKey))
}

func (s *RemoteDownloadService) Playlist(ctx context.Context, key string) ([]types.DownloadStatus, error) {
	return s.statuses(ctx, http.MethodPost, "/api/downloads/playlist/"+url.PathEscape(key))
}

func (s *RemoteDownloadService) Cancel(ctx context.Context, mediaKey string) error {
	return s.doRequest(ctx, http.MethodDelete, "/api/downloads/"+url.PathEscape(mediaKey), nil, nil)
}

func (s *RemoteDownloadService) AddServer(ctx context.Context, srv catalog.Server) error {
	req := ServerRequest{
		ID:          srv.ID,
		Name:        srv.Name,
		AccessToken: srv.AccessToken,
		Connections: srv.Connections,
	}
	return s.doRequest(ctx, http.MethodPost, "/api/servers", req, nil)
}

func (s *RemoteDownloadService) Servers(ctx context.Context) ([]catalog.Server, error) {
	var out []catalog.Server
	if err := s.doRequest(ctx, http.MethodGet, "/api/servers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RemoteDownloadService) RefreshLibraries(ctx context.Context, serverID string) ([]catalog.Library, error) {
	var out []catalog.Library
	if err := s.doRequest(ctx, http.MethodPost, "/api/servers/"+url.PathEscape(serverID)+"/refresh", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RemoteDownloadService) Libraries(ctx context.Context, serverID string) ([]catalog.Library, error) {
	path := "/api/libraries"
	if serverID != "" {
		path += "?server=" + url.QueryEscape(serverID)
	}
	var out []catalog.Library
	if err := s.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RemoteDownloadService) SyncLibrary(ctx context.Context, libraryID string) error {
	return s.doRequest(ctx, http.MethodPost, "/api/libraries/"+url.PathEscape(libraryID)+"/sync", nil, nil)
}

// Health checks that the daemon answers.
func (s *RemoteDownloadService) Health(ctx context.Context) error {
	return s.doRequest(ctx, http.MethodGet, "/health", nil, nil)
}

// Shutdown stops the event stream.
func (s *RemoteDownloadService) Shutdown(_ context.Context) error {
	s.cancel()
	return nil
}

// StreamEvents returns a channel that receives daemon events via SSE. The
// stream reconnects with backoff until ctx is done or Shutdown is called.
func (s *RemoteDownloadService) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan any, 100)
	go s.streamWithReconnect(ctx, ch)
	return ch, cancel, nil
}

func (s *RemoteDownloadService) streamWithReconnect(ctx context.Context, ch chan any) {
	defer close(ch)
	backoff := 1 * time.Second
	for {
		err := s.connectSSE(ctx, ch)
		if err == nil {
			return
		}
		select {
		case <-s.ctx.Done():
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *RemoteDownloadService) connectSSE(ctx context.Context, ch chan any) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-s.ctx.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/api/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.SSEClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to connect to event stream: %s", resp.Status)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		eventType := ""
		var dataLines []string

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			line = strings.TrimRight(line, "\r\n")

			// Blank line dispatches event
			if line == "" {
				break
			}
			switch {
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}

		if eventType == "" || len(dataLines) == 0 {
			continue
		}
		msg, err := events.Decode(eventType, []byte(strings.Join(dataLines, "\n")))
		if err != nil {
			continue
		}

		select {
		case ch <- msg:
		default:
		}
	}
}

func fileQuery(file string) string {
	if file == "" {
		return ""
	}
	return "?file=" + url.QueryEscape(file)
}
