// Package transfer copies one remote media file to local storage, retrying
// broken reads and falling back to other endpoints of the same server.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
	"go.uber.org/zap"

	"github.com/lunikdev/pledo/internal/connection"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/utils"
)

// ErrNoReachableEndpoint is returned when neither the primary URI nor any
// alternative endpoint of the server answered.
var ErrNoReachableEndpoint = errors.New("no reachable endpoint")

// StatusError is a non-2xx answer to a transfer request.
type StatusError struct {
	StatusCode int
	URI        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URI, e.StatusCode)
}

// EndpointResolver supplies alternative endpoints for a server.
type EndpointResolver interface {
	Resolve(ctx context.Context, serverID string) (connection.Endpoints, error)
	Remember(ctx context.Context, serverID, uri string) error
}

// Executor performs transfers. It is safe for use by one worker at a time
// per job; the queue runs a single worker.
type Executor struct {
	Client     *http.Client
	Resolver   EndpointResolver
	Policy     RetryPolicy
	BufferSize int
	UserAgent  string

	logger *zap.Logger
}

// NewExecutor builds an executor from runtime settings.
func NewExecutor(runtime *types.RuntimeConfig, resolver EndpointResolver, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "transfer"))

	policy := DefaultRetryPolicy(runtime.GetMaxAttempts(), runtime.GetRetryBaseDelay())
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("read failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}

	return &Executor{
		Client:     NewHTTPClient(runtime),
		Resolver:   resolver,
		Policy:     policy,
		BufferSize: runtime.GetBufferSize(),
		UserAgent:  runtime.GetUserAgent(),
		logger:     logger,
	}
}

// Transfer downloads job.URI to job.FilePath. On success the job is
// complete; on failure or cancellation the working file is left for the
// caller to remove.
func (e *Executor) Transfer(ctx context.Context, job *types.Job) error {
	start := time.Now()

	resp, source, err := e.openWithFallback(ctx, job)
	if err != nil {
		return err
	}
	token := job.Token

	if resp.ContentLength > 0 {
		job.SetTotal(resp.ContentLength)
	}
	if job.FileName() == "" {
		if _, name, _ := httpheader.ContentDisposition(resp.Header); name != "" {
			job.SetFileName(filepath.Base(name))
		}
	}
	headerType, _ := httpheader.ContentType(resp.Header)

	body := newResumableBody(ctx, resp.Body, func(ctx context.Context, offset int64) (io.ReadCloser, error) {
		return e.resume(ctx, source, token, offset)
	})
	defer func() { _ = body.Close() }()

	if err := os.MkdirAll(filepath.Dir(job.FilePath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	workingPath := job.FilePath + types.IncompleteSuffix
	outFile, err := os.Create(workingPath)
	if err != nil {
		return err
	}
	defer func() { _ = outFile.Close() }()

	sniffed := false
	err = copyChunks(ctx, outFile, body, e.bufferSize(), e.Policy, func(chunk []byte) {
		if !sniffed {
			sniffed = true
			job.SetContentType(contentType(chunk, headerType))
		}
		job.AddTransferred(int64(len(chunk)))
	})
	if err != nil {
		return err
	}

	written := body.Offset()
	if total := job.Total(); total > 0 && written < total {
		return fmt.Errorf("transfer ended at %d of %d bytes", written, total)
	}

	if err := outFile.Sync(); err != nil {
		return fmt.Errorf("sync error: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	if err := os.Rename(workingPath, job.FilePath); err != nil {
		// Fallback: copy if rename fails (cross-device)
		if copyErr := copyFile(workingPath, job.FilePath); copyErr != nil {
			return fmt.Errorf("failed to finalize file: %w", copyErr)
		}
		_ = os.Remove(workingPath)
	}

	job.Complete()

	elapsed := time.Since(start)
	e.logger.Info("transfer finished",
		zap.String("media", job.MediaKey),
		zap.String("path", job.FilePath),
		zap.Duration("elapsed", elapsed.Round(time.Millisecond)),
		zap.String("speed", utils.ConvertBytesToHumanReadable(int64(float64(written)/max(elapsed.Seconds(), 0.001)))+"/s"),
	)
	return nil
}

// copyChunks copies src to dst one buffer at a time. Every read goes
// through the policy; a read that returned bytes counts as a success even
// when it also returned an error.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, bufSize int, policy RetryPolicy, onChunk func([]byte)) error {
	buf := make([]byte, bufSize)
	for eof := false; !eof; {
		if err := ctx.Err(); err != nil {
			return err
		}

		var n int
		_, err := policy.Do(ctx, func() error {
			var readErr error
			n, readErr = src.Read(buf)
			if errors.Is(readErr, io.EOF) {
				eof = true
				return nil
			}
			if n > 0 {
				return nil
			}
			return readErr
		})
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		if n == 0 {
			continue
		}

		nw, err := dst.Write(buf[:n])
		if err != nil {
			return fmt.Errorf("write error: %w", err)
		}
		if nw != n {
			return io.ErrShortWrite
		}
		onChunk(buf[:n])
	}
	return nil
}

// openWithFallback opens the primary URI, then every other endpoint of the
// job's server in resolver order.
func (e *Executor) openWithFallback(ctx context.Context, job *types.Job) (*http.Response, string, error) {
	resp, err := e.open(ctx, job.URI, job.Token, 0)
	if err == nil {
		return resp, job.URI, nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	e.logger.Warn("primary endpoint failed", zap.String("media", job.MediaKey), zap.Error(err))

	if e.Resolver == nil || job.ServerID == "" {
		return nil, "", fmt.Errorf("%w: %w", ErrNoReachableEndpoint, err)
	}
	eps, resolveErr := e.Resolver.Resolve(ctx, job.ServerID)
	if resolveErr != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrNoReachableEndpoint, resolveErr)
	}
	token := job.Token
	if token == "" {
		token = eps.Token
	}

	tried, _ := utils.EndpointBase(job.URI)
	lastErr := err
	for _, base := range eps.URIs {
		if base == tried {
			continue
		}
		uri, joinErr := utils.JoinEndpoint(base, job.ResourcePath)
		if joinErr != nil {
			lastErr = joinErr
			continue
		}
		resp, err := e.open(ctx, uri, token, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			e.logger.Debug("alternative endpoint failed", zap.String("endpoint", base), zap.Error(err))
			lastErr = err
			continue
		}
		if err := e.Resolver.Remember(ctx, job.ServerID, base); err != nil {
			e.logger.Warn("could not remember endpoint", zap.String("endpoint", base), zap.Error(err))
		}
		e.logger.Info("switched endpoint", zap.String("media", job.MediaKey), zap.String("endpoint", base))
		return resp, uri, nil
	}
	return nil, "", fmt.Errorf("%w: %w", ErrNoReachableEndpoint, lastErr)
}

func (e *Executor) open(ctx context.Context, uri, token string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	connection.Authorize(req, token)
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := e.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, URI: uri}
	}
	return resp, nil
}

// resume reopens the source at offset. A server that ignores the range
// cannot continue the file, so that is not retried.
func (e *Executor) resume(ctx context.Context, uri, token string, offset int64) (io.ReadCloser, error) {
	e.logger.Debug("reopening stream", zap.String("uri", uri), zap.Int64("offset", offset))
	resp, err := e.open(ctx, uri, token, offset)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
			return nil, Permanent(err)
		}
		return nil, err
	}
	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		_ = resp.Body.Close()
		return nil, Permanent(fmt.Errorf("resume at byte %d: server answered %d instead of 206", offset, resp.StatusCode))
	}
	return resp.Body, nil
}

func (e *Executor) client() *http.Client {
	if e.Client == nil {
		return http.DefaultClient
	}
	return e.Client
}

func (e *Executor) bufferSize() int {
	if e.BufferSize <= 0 {
		return types.DefaultBufferSize
	}
	return e.BufferSize
}

// contentType prefers the sniffed type of the first chunk over the header.
func contentType(chunk []byte, header string) string {
	if kind, err := filetype.Match(chunk); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return header
}

// copyFile copies a file from src to dst (fallback when rename fails)
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			utils.Debug("Error closing output file: %v", err)
		}
	}()

	buf := make([]byte, 1*types.MB)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return err
	}
	return out.Sync()
}
