// Package librarysync mirrors the libraries of a media server into the
// local catalog.
package librarysync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/plex"
)

const (
	DefaultMaxBatchSize         = 50
	DefaultMaxConcurrentWindows = 4
)

// Searcher pages through a library section.
type Searcher interface {
	LibrarySearch(ctx context.Context, baseURL, token, sectionKey string, searchType, offset, size int) (*plex.MediaContainer, error)
}

// Target identifies the library to page through and how to reach it.
type Target struct {
	LibraryID  string
	SectionKey string
	Name       string
	BaseURL    string
	Token      string
}

// Iterator fetches every element of a library in windows. Some servers
// answer a window with nothing although items exist in it; such windows
// are split in halves until the items come back or the window is one wide.
type Iterator struct {
	searcher      Searcher
	maxConcurrent int
	logger        *zap.Logger
}

func NewIterator(searcher Searcher, maxConcurrent int, logger *zap.Logger) *Iterator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentWindows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Iterator{
		searcher:      searcher,
		maxConcurrent: maxConcurrent,
		logger:        logger.With(zap.String("component", "librarysync")),
	}
}

type window struct {
	offset, size int
}

// Sync returns every element of kind in the target library, in server
// order. Only a failed size probe is an error; failed windows are logged
// and count as empty.
func (it *Iterator) Sync(ctx context.Context, target Target, kind types.ElementKind, maxBatchSize int, minPause time.Duration) ([]types.MediaElement, error) {
	searchType, err := plex.SearchType(kind)
	if err != nil {
		return nil, err
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}

	probe, err := it.searcher.LibrarySearch(ctx, target.BaseURL, target.Token, target.SectionKey, searchType, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("probe size of library %s: %w", target.LibraryID, err)
	}
	total := probe.TotalSize
	if total <= 0 {
		return []types.MediaElement{}, nil
	}

	var windows []window
	for off := 0; off < total; off += maxBatchSize {
		windows = append(windows, window{offset: off, size: min(maxBatchSize, total-off)})
	}

	limit := rate.Inf
	if minPause > 0 {
		limit = rate.Every(minPause)
	}
	p := &pager{
		Iterator:   it,
		target:     target,
		kind:       kind,
		searchType: searchType,
		limiter:    rate.NewLimiter(limit, 1),
	}

	results := make([][]types.MediaElement, len(windows))
	sem := semaphore.NewWeighted(int64(it.maxConcurrent))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range windows {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = p.fetch(gctx, w)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	elems := make([]types.MediaElement, 0, total)
	for _, r := range results {
		elems = append(elems, r...)
	}
	if len(elems) < total {
		it.logger.Warn("library sync returned fewer items than the server reported",
			zap.String("library", target.LibraryID), zap.Int("got", len(elems)), zap.Int("expected", total))
	}
	return elems, nil
}

// pager holds the per-sync state shared by all windows.
type pager struct {
	*Iterator
	target     Target
	kind       types.ElementKind
	searchType int
	limiter    *rate.Limiter
}

// fetch requests one window and splits it while it comes back empty.
// Halves are fetched one after the other. A failed request drops the
// window without splitting.
func (p *pager) fetch(ctx context.Context, w window) []types.MediaElement {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil
	}

	mc, err := p.searcher.LibrarySearch(ctx, p.target.BaseURL, p.target.Token, p.target.SectionKey, p.searchType, w.offset, w.size)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("library window failed",
				zap.String("library", p.target.LibraryID), zap.Int("offset", w.offset), zap.Int("size", w.size), zap.Error(err))
		}
		return nil
	}
	if len(mc.Metadata) > 0 {
		return mc.Elements(p.target.LibraryID, p.kind)
	}

	if w.size <= 1 {
		return nil
	}
	half := w.size / 2
	p.logger.Debug("splitting empty window",
		zap.String("library", p.target.LibraryID), zap.Int("offset", w.offset), zap.Int("size", w.size))
	left := p.fetch(ctx, window{offset: w.offset, size: half})
	right := p.fetch(ctx, window{offset: w.offset + half, size: w.size - half})
	return append(left, right...)
}
