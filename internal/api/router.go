// Package api serves the daemon's HTTP interface.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/core"
	"github.com/lunikdev/pledo/internal/download"
	"github.com/lunikdev/pledo/internal/engine/events"
	"github.com/lunikdev/pledo/internal/engine/types"
)

const keepAliveInterval = 15 * time.Second

// EventStreamer yields the daemon's queue and sync events.
type EventStreamer interface {
	StreamEvents(ctx context.Context) (<-chan any, func(), error)
}

type handler struct {
	downloads core.DownloadService
	libraries core.LibraryService
	stream    EventStreamer
	logger    *zap.Logger
}

// NewRouter builds the gin engine with every route of the daemon.
func NewRouter(downloads core.DownloadService, libraries core.LibraryService, stream EventStreamer, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		downloads: downloads,
		libraries: libraries,
		stream:    stream,
		logger:    logger.With(zap.String("component", "api")),
	}

	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", h.health)

	api := r.Group("/api")
	{
		api.GET("/downloads", h.listDownloads)
		api.GET("/downloads/pending", h.pendingDownloads)
		api.POST("/downloads/movie/:key", h.downloadMovie)
		api.POST("/downloads/episode/:key", h.downloadEpisode)
		api.POST("/downloads/season/:key/:season", h.downloadSeason)
		api.POST("/downloads/show/:key", h.downloadShow)
		api.POST("/downloads/playlist/:key", h.downloadPlaylist)
		api.DELETE("/downloads/:key", h.cancelDownload)

		api.GET("/servers", h.listServers)
		api.POST("/servers", h.addServer)
		api.POST("/servers/:id/refresh", h.refreshServer)
		api.GET("/libraries", h.listLibraries)
		api.POST("/libraries/:id/sync", h.syncLibrary)

		api.GET("/events", h.streamEvents)
	}
	return r
}

func (h *handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, download.ErrMediaNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, core.ErrNotPending):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, download.ErrUnknownTemplate),
		errors.Is(err, download.ErrNoEndpoint),
		errors.Is(err, download.ErrNoMediaFile):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *handler) respond(c *gin.Context, status int, body any, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, body)
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) listDownloads(c *gin.Context) {
	out, err := h.downloads.List(c.Request.Context())
	h.respond(c, http.StatusOK, nonNil(out), err)
}

func (h *handler) pendingDownloads(c *gin.Context) {
	out, err := h.downloads.Pending(c.Request.Context())
	h.respond(c, http.StatusOK, nonNil(out), err)
}

func (h *handler) downloadMovie(c *gin.Context) {
	out, err := h.downloads.Movie(c.Request.Context(), c.Param("key"), c.Query("file"))
	h.respond(c, http.StatusAccepted, nonNil(out), err)
}

func (h *handler) downloadEpisode(c *gin.Context) {
	out, err := h.downloads.Episode(c.Request.Context(), c.Param("key"), c.Query("file"))
	h.respond(c, http.StatusAccepted, nonNil(out), err)
}

func (h *handler) downloadSeason(c *gin.Context) {
	season, err := strconv.Atoi(c.Param("season"))
	if err != nil || season < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "season must be a non-negative number"})
		return
	}
	out, err := h.downloads.Season(c.Request.Context(), c.Param("key"), season)
	h.respond(c, http.StatusAccepted, nonNil(out), err)
}

func (h *handler) downloadShow(c *gin.Context) {
	out, err := h.downloads.Show(c.Request.Context(), c.Param("key"))
	h.respond(c, http.StatusAccepted, nonNil(out), err)
}

func (h *handler) downloadPlaylist(c *gin.Context) {
	out, err := h.downloads.Playlist(c.Request.Context(), c.Param("key"))
	h.respond(c, http.StatusAccepted, nonNil(out), err)
}

func (h *handler) cancelDownload(c *gin.Context) {
	if err := h.downloads.Cancel(c.Request.Context(), c.Param("key")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) listServers(c *gin.Context) {
	out, err := h.libraries.Servers(c.Request.Context())
	if out == nil {
		out = []catalog.Server{}
	}
	h.respond(c, http.StatusOK, out, err)
}

func (h *handler) addServer(c *gin.Context) {
	var req core.ServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.ID == "" || len(req.Connections) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and at least one connection are required"})
		return
	}
	srv := catalog.Server{
		ID:          req.ID,
		Name:        req.Name,
		AccessToken: req.AccessToken,
		Connections: req.Connections,
	}
	if err := h.libraries.AddServer(c.Request.Context(), srv); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, srv)
}

func (h *handler) refreshServer(c *gin.Context) {
	out, err := h.libraries.RefreshLibraries(c.Request.Context(), c.Param("id"))
	if out == nil {
		out = []catalog.Library{}
	}
	h.respond(c, http.StatusOK, out, err)
}

func (h *handler) listLibraries(c *gin.Context) {
	out, err := h.libraries.Libraries(c.Request.Context(), c.Query("server"))
	if out == nil {
		out = []catalog.Library{}
	}
	h.respond(c, http.StatusOK, out, err)
}

func (h *handler) syncLibrary(c *gin.Context) {
	if err := h.libraries.SyncLibrary(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"library": c.Param("id"), "status": "syncing"})
}

func (h *handler) streamEvents(c *gin.Context) {
	ch, cleanup, err := h.stream.StreamEvents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			_, err := io.WriteString(w, ": keepalive\n\n")
			return err == nil
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			if name, known := events.Name(msg); known {
				c.SSEvent(name, msg)
			}
			return true
		}
	})
}

func nonNil(s []types.DownloadStatus) []types.DownloadStatus {
	if s == nil {
		return []types.DownloadStatus{}
	}
	return s
}
