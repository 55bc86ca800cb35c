// Package plex is a small client for the Plex Media Server HTTP API.
package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vfaronov/httpheader"
	"go.uber.org/zap"

	"github.com/lunikdev/pledo/internal/utils"
)

// TokenHeader carries the server access token on every request.
const TokenHeader = "X-Plex-Token"

const (
	productName = "pledo"

	// maxRetryAfter bounds how long a throttled request waits before its
	// single retry.
	maxRetryAfter = 30 * time.Second
)

// StatusError is returned for non-2xx answers.
type StatusError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("plex %s: %d %s: %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("plex %s: %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client talks to any endpoint of any server; endpoint and token are
// passed per call.
type Client struct {
	http      *http.Client
	userAgent string
	clientID  string
	logger    *zap.Logger
}

// NewClient wraps an HTTP client. clientID identifies this installation to
// the server.
func NewClient(httpClient *http.Client, userAgent, clientID string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:      httpClient,
		userAgent: userAgent,
		clientID:  clientID,
		logger:    logger.With(zap.String("component", "plex")),
	}
}

// Sections lists the library sections of a server.
func (c *Client) Sections(ctx context.Context, baseURL, token string) ([]Directory, error) {
	var env envelope
	if err := c.getJSON(ctx, baseURL, "/library/sections", nil, token, &env); err != nil {
		return nil, err
	}
	return env.MediaContainer.Directory, nil
}

// LibrarySearch fetches one page of a section. size 0 returns no items but
// still reports totalSize.
func (c *Client) LibrarySearch(ctx context.Context, baseURL, token, sectionKey string, searchType, offset, size int) (*MediaContainer, error) {
	q := url.Values{}
	q.Set("type", strconv.Itoa(searchType))
	q.Set("X-Plex-Container-Start", strconv.Itoa(offset))
	q.Set("X-Plex-Container-Size", strconv.Itoa(size))

	var env envelope
	path := "/library/sections/" + url.PathEscape(sectionKey) + "/all"
	if err := c.getJSON(ctx, baseURL, path, q, token, &env); err != nil {
		return nil, err
	}
	return &env.MediaContainer, nil
}

// Playlists lists the video playlists of a server.
func (c *Client) Playlists(ctx context.Context, baseURL, token string) ([]Metadata, error) {
	q := url.Values{}
	q.Set("playlistType", "video")

	var env envelope
	if err := c.getJSON(ctx, baseURL, "/playlists", q, token, &env); err != nil {
		return nil, err
	}
	return env.MediaContainer.Metadata, nil
}

// PlaylistItems returns the rating keys of a playlist in order.
func (c *Client) PlaylistItems(ctx context.Context, baseURL, token, playlistKey string) ([]string, error) {
	var env envelope
	path := "/playlists/" + url.PathEscape(playlistKey) + "/items"
	if err := c.getJSON(ctx, baseURL, path, nil, token, &env); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(env.MediaContainer.Metadata))
	for _, m := range env.MediaContainer.Metadata {
		keys = append(keys, m.RatingKey)
	}
	return keys, nil
}

// Identity probes an endpoint. Any 2xx answer means the endpoint is usable.
func (c *Client) Identity(ctx context.Context, baseURL, token string) (*Identity, error) {
	var env envelope
	if err := c.getJSON(ctx, baseURL, "/identity", nil, token, &env); err != nil {
		return nil, err
	}
	return &Identity{
		MachineIdentifier: env.MediaContainer.MachineIdentifier,
		Version:           env.MediaContainer.Version,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, baseURL, path string, query url.Values, token string, out any) error {
	endpoint, err := utils.JoinEndpoint(baseURL, path)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Plex-Product", productName)
		if c.clientID != "" {
			req.Header.Set("X-Plex-Client-Identifier", c.clientID)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if token != "" {
			req.Header.Set(TokenHeader, token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("plex %s: %w", path, err)
		}

		if attempt == 0 && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
			if wait, ok := retryDelay(resp.Header); ok {
				drain(resp)
				c.logger.Warn("server asked to retry later",
					zap.String("path", path), zap.Int("status", resp.StatusCode), zap.Duration("wait", wait))
				if err := sleepContext(ctx, wait); err != nil {
					return err
				}
				continue
			}
		}

		return decode(resp, path, out)
	}
}

func decode(resp *http.Response, path string, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Path: path, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("plex %s: decode response: %w", path, err)
	}
	return nil
}

// retryDelay reads Retry-After. ok is false when the header is missing or
// asks for more than maxRetryAfter.
func retryDelay(h http.Header) (time.Duration, bool) {
	at := httpheader.RetryAfter(h)
	if at.IsZero() {
		return 0, false
	}
	wait := time.Until(at)
	if wait < 0 {
		wait = 0
	}
	if wait > maxRetryAfter {
		return 0, false
	}
	return wait, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
