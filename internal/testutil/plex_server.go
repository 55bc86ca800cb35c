package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

// PlexItem is one listing entry served by PlexServer.
type PlexItem struct {
	RatingKey            string
	Type                 string // movie or episode
	Title                string
	Year                 int
	GrandparentRatingKey string
	GrandparentTitle     string
	ParentIndex          int
	Index                int
	PartKey              string
	File                 string
	Size                 int64
	Resolution           string
	Codec                string
}

// PlexSection is a library section served by PlexServer.
type PlexSection struct {
	Key   string
	Title string
	Type  string // movie or show
	Items []PlexItem
}

// PlexPlaylist is a video playlist served by PlexServer.
type PlexPlaylist struct {
	RatingKey string
	Title     string
	ItemKeys  []string
}

// Page records one library search request.
type Page struct {
	Section string
	Type    int
	Offset  int
	Size    int
}

// PlexServer is a Plex Media Server double for the JSON API endpoints pledo
// uses. /identity is unauthenticated; everything else checks the token.
type PlexServer struct {
	Server    *httptest.Server
	Token     string
	MachineID string

	// EmptyPage, when set, makes matching search windows answer with no
	// items while still reporting totalSize.
	EmptyPage func(offset, size int) bool
	// FailPage, when set, makes matching search windows answer 500.
	FailPage func(offset, size int) bool
	// ThrottleFirst answers the first request with 429 and Retry-After: 0.
	ThrottleFirst bool

	RequestCount atomic.Int64

	mu        sync.Mutex
	sections  []PlexSection
	playlists []PlexPlaylist
	pages     []Page
	tokens    []string
}

// NewPlexServerT starts a Plex double closed with the test.
func NewPlexServerT(t *testing.T, token string) *PlexServer {
	t.Helper()
	p := &PlexServer{Token: token, MachineID: "machine-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /identity", p.handleIdentity)
	mux.HandleFunc("GET /library/sections", p.authorized(p.handleSections))
	mux.HandleFunc("GET /library/sections/{key}/all", p.authorized(p.handleSearch))
	mux.HandleFunc("GET /playlists", p.authorized(p.handlePlaylists))
	mux.HandleFunc("GET /playlists/{key}/items", p.authorized(p.handlePlaylistItems))

	p.Server = NewHTTPServerT(t, p.count(mux))
	return p
}

// URL returns the server's base URL.
func (p *PlexServer) URL() string {
	return p.Server.URL
}

// AddSection registers a library section.
func (p *PlexServer) AddSection(s PlexSection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sections = append(p.sections, s)
}

// AddPlaylist registers a playlist.
func (p *PlexServer) AddPlaylist(pl PlexPlaylist) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playlists = append(p.playlists, pl)
}

// Pages returns the search windows requested so far.
func (p *PlexServer) Pages() []Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Page(nil), p.pages...)
}

// Tokens returns the X-Plex-Token values received, in order.
func (p *PlexServer) Tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokens...)
}

// Movies builds n movie items with keys "1".."n".
func Movies(n int) []PlexItem {
	items := make([]PlexItem, n)
	for i := range items {
		key := strconv.Itoa(i + 1)
		items[i] = PlexItem{
			RatingKey:  key,
			Type:       "movie",
			Title:      "Movie " + key,
			Year:       2000 + i%20,
			PartKey:    "/library/parts/" + key + "/file.mkv",
			File:       "/data/movies/Movie " + key + ".mkv",
			Size:       1024,
			Resolution: "1080",
			Codec:      "h264",
		}
	}
	return items
}

func (p *PlexServer) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := p.RequestCount.Add(1)
		p.mu.Lock()
		p.tokens = append(p.tokens, r.Header.Get("X-Plex-Token"))
		p.mu.Unlock()
		if p.ThrottleFirst && n == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *PlexServer) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.Token != "" && r.Header.Get("X-Plex-Token") != p.Token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (p *PlexServer) handleIdentity(w http.ResponseWriter, _ *http.Request) {
	writeContainer(w, map[string]any{
		"size":              0,
		"machineIdentifier": p.MachineID,
		"version":           "1.40.0",
	})
}

func (p *PlexServer) handleSections(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	dirs := make([]map[string]any, 0, len(p.sections))
	for _, s := range p.sections {
		dirs = append(dirs, map[string]any{"key": s.Key, "title": s.Title, "type": s.Type})
	}
	p.mu.Unlock()
	writeContainer(w, map[string]any{"size": len(dirs), "Directory": dirs})
}

func (p *PlexServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	q := r.URL.Query()
	searchType, _ := strconv.Atoi(q.Get("type"))
	offset, _ := strconv.Atoi(q.Get("X-Plex-Container-Start"))
	size, _ := strconv.Atoi(q.Get("X-Plex-Container-Size"))

	p.mu.Lock()
	p.pages = append(p.pages, Page{Section: key, Type: searchType, Offset: offset, Size: size})
	var items []PlexItem
	found := false
	for _, s := range p.sections {
		if s.Key != key {
			continue
		}
		found = true
		for _, it := range s.Items {
			if typeCode(it.Type) == searchType {
				items = append(items, it)
			}
		}
	}
	p.mu.Unlock()

	if !found {
		http.NotFound(w, r)
		return
	}
	if size > 0 && p.FailPage != nil && p.FailPage(offset, size) {
		http.Error(w, "window failed", http.StatusInternalServerError)
		return
	}

	total := len(items)
	var window []PlexItem
	if size > 0 && offset < total && (p.EmptyPage == nil || !p.EmptyPage(offset, size)) {
		window = items[offset:min(offset+size, total)]
	}

	metadata := make([]map[string]any, 0, len(window))
	for _, it := range window {
		metadata = append(metadata, itemJSON(it))
	}
	writeContainer(w, map[string]any{
		"size":      len(metadata),
		"totalSize": total,
		"offset":    offset,
		"Metadata":  metadata,
	})
}

func (p *PlexServer) handlePlaylists(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	out := make([]map[string]any, 0, len(p.playlists))
	for _, pl := range p.playlists {
		out = append(out, map[string]any{
			"ratingKey":    pl.RatingKey,
			"type":         "playlist",
			"title":        pl.Title,
			"playlistType": "video",
		})
	}
	p.mu.Unlock()
	writeContainer(w, map[string]any{"size": len(out), "Metadata": out})
}

func (p *PlexServer) handlePlaylistItems(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	p.mu.Lock()
	var keys []string
	found := false
	for _, pl := range p.playlists {
		if pl.RatingKey == key {
			keys, found = pl.ItemKeys, true
		}
	}
	p.mu.Unlock()

	if !found {
		http.NotFound(w, r)
		return
	}
	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{"ratingKey": k})
	}
	writeContainer(w, map[string]any{"size": len(out), "Metadata": out})
}

func typeCode(t string) int {
	switch t {
	case "movie":
		return 1
	case "show":
		return 2
	case "season":
		return 3
	case "episode":
		return 4
	}
	return 0
}

func itemJSON(it PlexItem) map[string]any {
	m := map[string]any{
		"ratingKey": it.RatingKey,
		"type":      it.Type,
		"title":     it.Title,
		"year":      it.Year,
	}
	if it.Type == "episode" {
		m["grandparentRatingKey"] = it.GrandparentRatingKey
		m["grandparentTitle"] = it.GrandparentTitle
		m["parentIndex"] = it.ParentIndex
		m["index"] = it.Index
	}
	if it.PartKey != "" {
		m["Media"] = []map[string]any{{
			"videoResolution": it.Resolution,
			"videoCodec":      it.Codec,
			"Part": []map[string]any{{
				"key":  it.PartKey,
				"file": it.File,
				"size": it.Size,
			}},
		}}
	}
	return m
}

func writeContainer(w http.ResponseWriter, mc map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"MediaContainer": mc})
}
