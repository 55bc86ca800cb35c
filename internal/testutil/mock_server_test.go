package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

func TestMockServer_BasicDownload(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(1024*1024))

	resp, err := http.Get(server.URL() + "/library/parts/1/file.mkv")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if !bytes.Equal(data, server.Data()) {
		t.Errorf("Body mismatch: got %d bytes", len(data))
	}
	if got := server.RequestCount.Load(); got != 1 {
		t.Errorf("Expected 1 request, got %d", got)
	}
}

func TestMockServer_RangeRequest(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(4096))

	req, _ := http.NewRequest(http.MethodGet, server.URL(), nil)
	req.Header.Set("Range", "bytes=1000-")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("Expected 206, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 1000-4095/4096" {
		t.Errorf("Content-Range = %q", got)
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(data, server.Data()[1000:]) {
		t.Errorf("Range body mismatch: got %d bytes", len(data))
	}
	if got := server.Ranges(); len(got) != 1 || got[0] != "bytes=1000-" {
		t.Errorf("Ranges = %v", got)
	}
}

func TestMockServer_FailAfterBytes(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(4096), WithFailAfterBytes(1000))

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatal("Expected a truncated body error")
	}
	if len(data) != 1000 {
		t.Errorf("Expected 1000 bytes before the drop, got %d", len(data))
	}
}

func TestMockServer_RequiredToken(t *testing.T) {
	server := NewMockServerT(t, WithRequiredToken("secret"))

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL(), nil)
	req.Header.Set("X-Plex-Token", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestMockServer_FilenameHeader(t *testing.T) {
	server := NewMockServerT(t, WithFilename("Movie (2001).mkv"), WithContentType("video/x-matroska"))

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()

	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="Movie (2001).mkv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "video/x-matroska" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header     string
		start, end int64
		wantErr    bool
	}{
		{"bytes=0-99", 0, 99, false},
		{"bytes=100-", 100, 999, false},
		{"bytes=-100", 0, 0, true},
		{"bytes=900-1000", 0, 0, true},
		{"items=0-1", 0, 0, true},
	}
	for _, tt := range tests {
		start, end, err := parseRange(tt.header, 1000)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRange(%q) err = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (start != tt.start || end != tt.end) {
			t.Errorf("parseRange(%q) = %d-%d, want %d-%d", tt.header, start, end, tt.start, tt.end)
		}
	}
}

func TestPlexServer_Paging(t *testing.T) {
	plex := NewPlexServerT(t, "tok")
	plex.AddSection(PlexSection{Key: "1", Title: "Movies", Type: "movie", Items: Movies(7)})
	plex.EmptyPage = func(offset, size int) bool { return offset == 5 }

	get := func(query string) map[string]any {
		req, _ := http.NewRequest(http.MethodGet, plex.URL()+"/library/sections/1/all?"+query, nil)
		req.Header.Set("X-Plex-Token", "tok")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		var env map[string]map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		return env["MediaContainer"]
	}

	mc := get("type=1&X-Plex-Container-Start=0&X-Plex-Container-Size=0")
	if mc["totalSize"].(float64) != 7 || mc["size"].(float64) != 0 {
		t.Errorf("Probe = %v", mc)
	}
	mc = get("type=1&X-Plex-Container-Start=3&X-Plex-Container-Size=5")
	if mc["size"].(float64) != 4 {
		t.Errorf("Expected clipped window of 4, got %v", mc["size"])
	}
	mc = get("type=1&X-Plex-Container-Start=5&X-Plex-Container-Size=2")
	if mc["size"].(float64) != 0 {
		t.Errorf("Expected injected empty window, got %v", mc["size"])
	}
	if got := len(plex.Pages()); got != 3 {
		t.Errorf("Expected 3 recorded pages, got %d", got)
	}
}

func TestPlexServer_RejectsMissingToken(t *testing.T) {
	plex := NewPlexServerT(t, "tok")

	resp, err := http.Get(plex.URL() + "/library/sections")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}

	resp, err = http.Get(plex.URL() + "/identity")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Identity should not need a token, got %d", resp.StatusCode)
	}
}
