// Package download turns catalog media into download jobs and runs them
// one at a time.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lunikdev/pledo/internal/engine/events"
	"github.com/lunikdev/pledo/internal/engine/types"
)

// Transferer copies the remote file of a job to its output path.
type Transferer interface {
	Transfer(ctx context.Context, job *types.Job) error
}

// RecordStore persists finished jobs.
type RecordStore interface {
	InsertRecord(ctx context.Context, r types.Record) error
	ListRecords(ctx context.Context) ([]types.Record, error)
}

// Queue is a FIFO of pending jobs drained by a single worker. The worker
// goroutine exists only while there is work.
type Queue struct {
	transferer Transferer
	records    RecordStore
	progressCh chan<- any
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	pending  []*types.Job
	draining bool
	closed   bool
	wg       sync.WaitGroup // held by the running worker
}

// NewQueue creates an idle queue. progressCh may be nil.
func NewQueue(transferer Transferer, records RecordStore, progressCh chan<- any, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		transferer: transferer,
		records:    records,
		progressCh: progressCh,
		logger:     logger.With(zap.String("component", "queue")),
		now:        time.Now,
	}
}

// Enqueue appends job unless a job for the same media is already pending.
// It never blocks on the transfer.
func (q *Queue) Enqueue(job *types.Job) bool {
	q.mu.Lock()
	if q.closed || q.indexOf(job.MediaKey) >= 0 {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, job)
	start := !q.draining
	if start {
		q.draining = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	q.logger.Info("added to download queue", zap.String("media", job.MediaKey), zap.String("name", job.Name))
	events.Publish(q.progressCh, events.DownloadQueuedMsg{
		DownloadID: job.ID,
		MediaKey:   job.MediaKey,
		Name:       job.Name,
	})

	if start {
		go q.drain()
	}
	return true
}

// GetPending returns snapshots of the pending jobs, head first.
func (q *Queue) GetPending() []types.Record {
	q.mu.Lock()
	jobs := slices.Clone(q.pending)
	q.mu.Unlock()

	out := make([]types.Record, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// GetAll returns pending snapshots followed by every persisted record.
func (q *Queue) GetAll(ctx context.Context) ([]types.Record, error) {
	out := q.GetPending()
	records, err := q.records.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list download records: %w", err)
	}
	// A job finishing between the two reads shows up in both.
	seen := make(map[string]bool, len(out))
	for _, r := range out {
		seen[r.ID] = true
	}
	for _, r := range records {
		if !seen[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

// Cancel stops the pending job for mediaKey. A job that has not started is
// dropped and never persisted; a running one is signalled and the worker
// persists it as unsuccessful. Reports whether a job matched.
func (q *Queue) Cancel(mediaKey string) bool {
	q.mu.Lock()
	idx := q.indexOf(mediaKey)
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	job := q.pending[idx]
	started := job.IsStarted()
	if !started {
		q.pending = slices.Delete(q.pending, idx, idx+1)
	}
	q.mu.Unlock()

	job.Cancel()
	if !started {
		q.logger.Info("removed from download queue", zap.String("media", mediaKey))
		events.Publish(q.progressCh, events.DownloadRemovedMsg{
			DownloadID: job.ID,
			MediaKey:   job.MediaKey,
			Name:       job.Name,
		})
		return true
	}

	job.MarkFinished(q.now())
	q.logger.Info("cancelling running download", zap.String("media", mediaKey))
	return true
}

// Shutdown rejects new jobs, drops the ones not started, cancels the
// running one and waits for the worker to persist it.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	var dropped []*types.Job
	kept := q.pending[:0]
	for _, j := range q.pending {
		if j.IsStarted() {
			kept = append(kept, j)
		} else {
			dropped = append(dropped, j)
		}
	}
	q.pending = kept
	running := slices.Clone(kept)
	q.mu.Unlock()

	for _, j := range dropped {
		j.Cancel()
	}
	for _, j := range running {
		j.Cancel()
	}
	if len(dropped) > 0 {
		q.logger.Info("dropped queued downloads on shutdown", zap.Int("count", len(dropped)))
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		job := q.next()
		if job == nil {
			q.logger.Info("no more elements in download queue")
			return
		}
		q.handle(job)
		q.remove(job)
	}
}

// next picks the head and marks it started under the lock Cancel uses, so
// a job is either dropped unstarted or run, never both.
func (q *Queue) next() *types.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 || (q.closed && !q.pending[0].IsStarted()) {
		q.draining = false
		return nil
	}
	job := q.pending[0]
	job.MarkStarted(q.now())
	return job
}

func (q *Queue) remove(job *types.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx := slices.Index(q.pending, job); idx >= 0 {
		q.pending = slices.Delete(q.pending, idx, idx+1)
	}
}

func (q *Queue) indexOf(mediaKey string) int {
	return slices.IndexFunc(q.pending, func(j *types.Job) bool { return j.MediaKey == mediaKey })
}

// handle runs one job end to end. Nothing a single job does can stop the
// worker.
func (q *Queue) handle(job *types.Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("download postprocessing panicked",
				zap.String("media", job.MediaKey), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	q.logger.Info("start download of next element in queue", zap.String("media", job.MediaKey), zap.String("name", job.Name))
	events.Publish(q.progressCh, events.DownloadStartedMsg{
		DownloadID: job.ID,
		MediaKey:   job.MediaKey,
		Name:       job.Name,
		Total:      job.Total(),
		DestPath:   job.FilePath,
	})

	start := q.now()
	err := q.run(job)
	q.finish(job, err, q.now().Sub(start))
}

func (q *Queue) run(job *types.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("download panicked",
				zap.String("media", job.MediaKey), zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("download panicked: %v", r)
		}
	}()
	return q.transferer.Transfer(job.Context(), job)
}

func (q *Queue) finish(job *types.Job, err error, elapsed time.Duration) {
	job.MarkFinished(q.now())
	ok := err == nil && job.Succeeded()

	if !ok {
		working := job.FilePath + types.IncompleteSuffix
		if rmErr := os.Remove(working); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			q.logger.Warn("could not remove incomplete file", zap.String("path", working), zap.Error(rmErr))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), types.PersistTimeout)
	defer cancel()
	if perr := q.records.InsertRecord(ctx, job.Snapshot()); perr != nil {
		q.logger.Error("could not persist download record", zap.String("media", job.MediaKey), zap.Error(perr))
	}
	q.remove(job)

	switch {
	case ok:
		q.logger.Info("finished download", zap.String("media", job.MediaKey), zap.Duration("elapsed", elapsed))
		events.Publish(q.progressCh, events.DownloadCompleteMsg{
			DownloadID: job.ID,
			MediaKey:   job.MediaKey,
			Name:       job.Name,
			Elapsed:    elapsed,
			Total:      job.Total(),
		})
	case job.Context().Err() != nil:
		q.logger.Info("download cancelled", zap.String("media", job.MediaKey), zap.Int64("transferred", job.Transferred()))
		events.Publish(q.progressCh, events.DownloadCancelledMsg{
			DownloadID: job.ID,
			MediaKey:   job.MediaKey,
			Name:       job.Name,
			Downloaded: job.Transferred(),
		})
	default:
		q.logger.Error("download failed", zap.String("media", job.MediaKey), zap.Error(err))
		events.Publish(q.progressCh, events.DownloadErrorMsg{
			DownloadID: job.ID,
			MediaKey:   job.MediaKey,
			Name:       job.Name,
			Err:        err,
		})
	}
}
