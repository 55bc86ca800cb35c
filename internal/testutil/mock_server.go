package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// MockServer serves one media file the way a Plex part endpoint does:
// any path, optional token check, Range support.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	ContentType      string // Content-Type header value
	Filename         string // Filename in Content-Disposition header
	RequiredToken    string // Rejects requests without this X-Plex-Token (empty = no check)
	Status           int    // Answer every request with this status (0 = serve the file)
	FailAfterBytes   int64  // Drop the connection after this many bytes of each response (0 = never)
	FailOnNthRequest int    // Answer the Nth request with 500 (0 = never)
	IgnoreRanges     bool   // Always answer 200 with the full body

	// Tracking
	RequestCount  atomic.Int64
	RangeRequests atomic.Int64
	BytesServed   atomic.Int64

	mu     sync.Mutex
	ranges []string
	data   []byte
}

// MockServerOption is a function that configures a MockServer.
type MockServerOption func(*MockServer)

// WithPayload sets the served bytes.
func WithPayload(data []byte) MockServerOption {
	return func(m *MockServer) {
		m.data = data
	}
}

// WithFileSize serves n deterministic bytes.
func WithFileSize(n int64) MockServerOption {
	return func(m *MockServer) {
		m.data = Payload(int(n))
	}
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) MockServerOption {
	return func(m *MockServer) {
		m.ContentType = ct
	}
}

// WithFilename sets the filename in Content-Disposition header.
func WithFilename(name string) MockServerOption {
	return func(m *MockServer) {
		m.Filename = name
	}
}

// WithRequiredToken enables the X-Plex-Token check.
func WithRequiredToken(token string) MockServerOption {
	return func(m *MockServer) {
		m.RequiredToken = token
	}
}

// WithStatus makes every request fail with code.
func WithStatus(code int) MockServerOption {
	return func(m *MockServer) {
		m.Status = code
	}
}

// WithFailAfterBytes cuts every response after n bytes. A client that
// resumes with Range still makes progress.
func WithFailAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.FailAfterBytes = n
	}
}

// WithFailOnNthRequest causes the Nth request to fail.
func WithFailOnNthRequest(n int) MockServerOption {
	return func(m *MockServer) {
		m.FailOnNthRequest = n
	}
}

// WithoutRanges makes the server ignore Range headers.
func WithoutRanges() MockServerOption {
	return func(m *MockServer) {
		m.IgnoreRanges = true
	}
}

// NewMockServerT creates a media file server closed with the test.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := &MockServer{
		ContentType: "application/octet-stream",
		data:        Payload(64 * 1024),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Server = NewHTTPServerT(t, http.HandlerFunc(m.handleRequest))
	return m
}

// URL returns the server's base URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// Data returns the served bytes.
func (m *MockServer) Data() []byte {
	return m.data
}

// Ranges returns the Range headers received, in order.
func (m *MockServer) Ranges() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ranges...)
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	reqNum := m.RequestCount.Add(1)

	if m.RequiredToken != "" && r.Header.Get("X-Plex-Token") != m.RequiredToken {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if m.Status != 0 {
		http.Error(w, "Simulated failure", m.Status)
		return
	}
	if m.FailOnNthRequest > 0 && int(reqNum) == m.FailOnNthRequest {
		http.Error(w, "Simulated failure", http.StatusInternalServerError)
		return
	}

	size := int64(len(m.data))
	start, end := int64(0), size-1

	w.Header().Set("Content-Type", m.ContentType)
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, m.Filename))
	}

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" && !m.IgnoreRanges {
		m.RangeRequests.Add(1)
		m.mu.Lock()
		m.ranges = append(m.ranges, rangeHeader)
		m.mu.Unlock()

		var err error
		start, end, err = parseRange(rangeHeader, size)
		if err != nil {
			http.Error(w, "Invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
	}
	if r.Method == http.MethodHead {
		return
	}

	length := end - start + 1
	if m.FailAfterBytes > 0 && m.FailAfterBytes < length {
		length = m.FailAfterBytes
	}
	n, _ := w.Write(m.data[start : start+length])
	m.BytesServed.Add(int64(n))
	// Returning short of Content-Length makes net/http drop the connection.
}

// parseRange parses "bytes=start-end" or "bytes=start-".
func parseRange(rangeHeader string, fileSize int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(rangeHeader, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}
	from, to, ok := strings.Cut(spec, "-")
	if !ok || from == "" {
		return 0, 0, fmt.Errorf("invalid range format")
	}

	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	end := fileSize - 1
	if to != "" {
		if end, err = strconv.ParseInt(to, 10, 64); err != nil {
			return 0, 0, err
		}
	}
	if start < 0 || end >= fileSize || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}
	return start, end, nil
}
