package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lunikdev/pledo/internal/api"
	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/config"
	"github.com/lunikdev/pledo/internal/connection"
	"github.com/lunikdev/pledo/internal/core"
	"github.com/lunikdev/pledo/internal/download"
	"github.com/lunikdev/pledo/internal/engine/events"
	"github.com/lunikdev/pledo/internal/engine/transfer"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/librarysync"
	"github.com/lunikdev/pledo/internal/plex"
	"github.com/lunikdev/pledo/internal/tui"
)

const (
	// ProgressChannelBuffer sizes the event channel between the queue and subscribers
	ProgressChannelBuffer = 100
	shutdownTimeout       = 30 * time.Second
)

// daemon owns everything a running server holds.
type daemon struct {
	store   *catalog.Store
	service *core.LocalDownloadService
	handler http.Handler
	logger  *zap.Logger
}

// newDaemon opens the catalog at dbPath and wires the queue, sync service
// and HTTP routes. settings is re-read from provider on every job.
func newDaemon(settings *config.Settings, provider config.Provider, dbPath string, logger *zap.Logger) (*daemon, error) {
	store, err := catalog.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	runtime := types.ConvertRuntimeConfig(settings.ToRuntimeConfig())
	httpClient := transfer.NewHTTPClient(runtime)
	progress := make(chan any, ProgressChannelBuffer)

	plexClient := plex.NewClient(httpClient, runtime.GetUserAgent(), uuid.NewString(), logger)
	resolver := connection.NewResolver(store, plexClient, logger)
	executor := transfer.NewExecutor(runtime, resolver, logger)

	queue := download.NewQueue(executor, store, progress, logger)
	downloads := download.NewService(queue, store, provider, logger)
	syncer := librarysync.NewService(store, plexClient, resolver, provider, progress, logger)
	service := core.NewLocalDownloadService(downloads, syncer, store, progress, logger)

	return &daemon{
		store:   store,
		service: service,
		handler: api.NewRouter(service, service, service, logger),
		logger:  logger,
	}, nil
}

// serve answers HTTP on ln until ctx is done, then shuts the queue down.
func (d *daemon) serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Event streams only end when the service closes them.
	if err := d.service.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("queue shutdown incomplete", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("http shutdown incomplete", zap.Error(err))
	}
	return serveErr
}

func (d *daemon) close() error {
	return d.store.Close()
}

// StartHeadlessConsumer prints queue and sync events to out until the
// stream closes.
func StartHeadlessConsumer(stream <-chan any, out io.Writer) {
	go func() {
		for msg := range stream {
			switch m := msg.(type) {
			case events.DownloadQueuedMsg:
				fmt.Fprintf(out, "Queued: %s [%s]\n", m.Name, tui.ShortID(m.DownloadID))
			case events.DownloadStartedMsg:
				fmt.Fprintf(out, "Started: %s [%s]\n", m.Name, tui.ShortID(m.DownloadID))
			case events.DownloadCompleteMsg:
				fmt.Fprintf(out, "Completed: %s [%s] (in %s)\n", m.Name, tui.ShortID(m.DownloadID), m.Elapsed.Round(time.Millisecond))
			case events.DownloadErrorMsg:
				fmt.Fprintf(out, "Error: %s [%s]: %v\n", m.Name, tui.ShortID(m.DownloadID), m.Err)
			case events.DownloadCancelledMsg:
				fmt.Fprintf(out, "Cancelled: %s [%s]\n", m.Name, tui.ShortID(m.DownloadID))
			case events.DownloadRemovedMsg:
				fmt.Fprintf(out, "Removed: %s [%s]\n", m.Name, tui.ShortID(m.DownloadID))
			case events.LibrarySyncedMsg:
				fmt.Fprintf(out, "Synced: %s (%d items in %s)\n", m.Name, m.Items, m.Elapsed.Round(time.Millisecond))
			}
		}
	}()
}
