package types

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Job is a single pending or in-flight download. Identity fields are set
// before the job is enqueued and never change; lifecycle fields are
// guarded and read through accessors.
type Job struct {
	ID           string
	MediaKey     string
	Name         string
	Kind         ElementKind
	URI          string // primary source
	ServerID     string // owner of the source, used for endpoint fallback
	ResourcePath string // URI path relative to the server endpoint
	Token        string // never leaves the process
	FilePath     string

	transferred atomic.Int64
	total       atomic.Int64

	mu          sync.RWMutex
	fileName    string
	contentType string
	started     *time.Time
	finished    *time.Time
	success     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewJob creates a job with a fresh id and its own cancellation handle.
func NewJob(mediaKey, name string, kind ElementKind) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:       uuid.New().String(),
		MediaKey: mediaKey,
		Name:     name,
		Kind:     kind,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context is cancelled when the job is cancelled.
func (j *Job) Context() context.Context { return j.ctx }

// Cancel signals the running transfer to stop at the next chunk boundary.
func (j *Job) Cancel() { j.cancel() }

// Total returns the expected size in bytes, 0 when unknown.
func (j *Job) Total() int64 { return j.total.Load() }

// SetTotal records the expected size.
func (j *Job) SetTotal(n int64) { j.total.Store(n) }

// Transferred returns the number of bytes written so far.
func (j *Job) Transferred() int64 { return j.transferred.Load() }

// AddTransferred advances progress by n bytes, clamped at the total when
// one is known. Progress never moves backwards.
func (j *Job) AddTransferred(n int64) {
	if n <= 0 {
		return
	}
	for {
		cur := j.transferred.Load()
		next := cur + n
		if total := j.total.Load(); total > 0 && next > total {
			next = total
		}
		if next <= cur || j.transferred.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Complete marks a finished transfer: the total becomes what was actually
// written when it was unknown, and the job succeeds.
func (j *Job) Complete() {
	if j.total.Load() <= 0 {
		j.total.Store(j.transferred.Load())
	}
	j.transferred.Store(j.total.Load())
	j.mu.Lock()
	j.success = true
	j.mu.Unlock()
}

// Progress is transferred/total, 0 when the total is unknown.
func (j *Job) Progress() float64 {
	total := j.total.Load()
	if total <= 0 {
		return 0
	}
	return float64(j.transferred.Load()) / float64(total)
}

func (j *Job) FileName() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.fileName
}

func (j *Job) SetFileName(name string) {
	j.mu.Lock()
	j.fileName = name
	j.mu.Unlock()
}

func (j *Job) ContentType() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.contentType
}

func (j *Job) SetContentType(ct string) {
	j.mu.Lock()
	j.contentType = ct
	j.mu.Unlock()
}

// MarkStarted sets the started timestamp once.
func (j *Job) MarkStarted(t time.Time) {
	j.mu.Lock()
	if j.started == nil {
		j.started = &t
	}
	j.mu.Unlock()
}

// MarkFinished sets the finished timestamp once.
func (j *Job) MarkFinished(t time.Time) {
	j.mu.Lock()
	if j.finished == nil {
		j.finished = &t
	}
	j.mu.Unlock()
}

func (j *Job) IsStarted() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.started != nil
}

func (j *Job) Succeeded() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.success
}

// Snapshot copies the job into a Record.
func (j *Job) Snapshot() Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Record{
		ID:          j.ID,
		MediaKey:    j.MediaKey,
		Name:        j.Name,
		Kind:        j.Kind,
		URI:         j.URI,
		FilePath:    j.FilePath,
		FileName:    j.fileName,
		TotalBytes:  j.total.Load(),
		Transferred: j.transferred.Load(),
		Started:     copyTime(j.started),
		Finished:    copyTime(j.finished),
		Success:     j.success,
		ContentType: j.contentType,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
