package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunikdev/pledo/internal/connection"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/testutil"
)

type fakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type stubResolver struct {
	eps connection.Endpoints
	err error

	mu         sync.Mutex
	remembered []string
}

func (r *stubResolver) Resolve(context.Context, string) (connection.Endpoints, error) {
	return r.eps, r.err
}

func (r *stubResolver) Remember(_ context.Context, _ string, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remembered = append(r.remembered, uri)
	return nil
}

func newTestExecutor(resolver EndpointResolver, clock *fakeClock) *Executor {
	e := NewExecutor(&types.RuntimeConfig{BufferSize: 512}, resolver, nil)
	e.Policy.Sleep = clock.Sleep
	return e
}

func newTestJob(t *testing.T, uri string) *types.Job {
	t.Helper()
	job := types.NewJob("m1", "Movie", types.KindMovie)
	job.URI = uri
	job.ServerID = "s1"
	job.ResourcePath = "/library/parts/1/file.mkv"
	job.Token = "tok"
	job.FilePath = filepath.Join(t.TempDir(), "Movies", "movie.mkv")
	return job
}

func TestRetryPolicy_BackoffSchedule(t *testing.T) {
	clock := &fakeClock{}
	policy := DefaultRetryPolicy(5, time.Second)
	policy.Sleep = clock.Sleep

	boom := errors.New("connection reset")
	attempts, err := policy.Do(context.Background(), func() error { return boom })

	assert.Equal(t, 5, attempts)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, clock.Sleeps())
}

func TestRetryPolicy_StopsOnPermanentErrors(t *testing.T) {
	for name, failure := range map[string]error{
		"cancelled": context.Canceled,
		"deadline":  context.DeadlineExceeded,
		"path":      &fs.PathError{Op: "write", Path: "/x", Err: fs.ErrPermission},
		"syscall":   os.NewSyscallError("fsync", errors.New("io error")),
		"permanent": Permanent(errors.New("range ignored")),
	} {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{}
			policy := DefaultRetryPolicy(5, time.Second)
			policy.Sleep = clock.Sleep

			attempts, err := policy.Do(context.Background(), func() error { return failure })
			assert.Equal(t, 1, attempts)
			assert.ErrorIs(t, err, failure)
			assert.NotErrorIs(t, err, ErrRetriesExhausted)
			assert.Empty(t, clock.Sleeps())
		})
	}
}

func TestRetryPolicy_RecoversAndReportsRetries(t *testing.T) {
	clock := &fakeClock{}
	policy := DefaultRetryPolicy(5, time.Second)
	policy.Sleep = clock.Sleep
	var retried []int
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	calls := 0
	attempts, err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

type flakyReader struct {
	data  []byte
	fails int
	calls int
}

func (r *flakyReader) Read(p []byte) (int, error) {
	r.calls++
	if r.fails > 0 {
		r.fails--
		return 0, errors.New("connection reset by peer")
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestCopyChunks_OneFailedRead(t *testing.T) {
	clock := &fakeClock{}
	policy := DefaultRetryPolicy(5, time.Second)
	policy.Sleep = clock.Sleep
	retries := 0
	policy.OnRetry = func(int, error, time.Duration) { retries++ }

	payload := testutil.Payload(1000)
	src := &flakyReader{data: payload, fails: 1}
	var dst bytes.Buffer
	var progress int64

	err := copyChunks(context.Background(), &dst, src, 4096, policy, func(chunk []byte) {
		progress += int64(len(chunk))
	})
	require.NoError(t, err)
	assert.Equal(t, payload, dst.Bytes())
	assert.EqualValues(t, 1000, progress)
	assert.Equal(t, 1, retries, "the failed chunk takes exactly two attempts")
	assert.Equal(t, []time.Duration{2 * time.Second}, clock.Sleeps())
}

func TestCopyChunks_GivesUpAfterMaxAttempts(t *testing.T) {
	clock := &fakeClock{}
	policy := DefaultRetryPolicy(5, time.Second)
	policy.Sleep = clock.Sleep

	src := &flakyReader{data: testutil.Payload(10), fails: 100}
	err := copyChunks(context.Background(), io.Discard, src, 64, policy, func([]byte) {})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 5, src.calls)
}

func TestExecutor_Transfer(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, testutil.Payload(3000)...)
	srv := testutil.NewMockServerT(t,
		testutil.WithPayload(png),
		testutil.WithRequiredToken("tok"),
		testutil.WithFilename("Server Name.mkv"),
	)
	clock := &fakeClock{}
	job := newTestJob(t, srv.URL()+"/library/parts/1/file.mkv")

	require.NoError(t, newTestExecutor(nil, clock).Transfer(context.Background(), job))

	got, err := os.ReadFile(job.FilePath)
	require.NoError(t, err)
	assert.Equal(t, png, got)
	assert.False(t, testutil.FileExists(job.FilePath+types.IncompleteSuffix))
	assert.True(t, job.Succeeded())
	assert.EqualValues(t, len(png), job.Total())
	assert.Equal(t, job.Total(), job.Transferred())
	assert.Equal(t, "image/png", job.ContentType())
	assert.Equal(t, "Server Name.mkv", job.FileName())
}

func TestExecutor_KeepsExistingFileName(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(100), testutil.WithFilename("other.mkv"))
	job := newTestJob(t, srv.URL())
	job.SetFileName("movie.mkv")

	require.NoError(t, newTestExecutor(nil, &fakeClock{}).Transfer(context.Background(), job))
	assert.Equal(t, "movie.mkv", job.FileName())
	assert.Equal(t, "application/octet-stream", job.ContentType())
}

func TestExecutor_ResumesAfterDroppedConnection(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(4096), testutil.WithFailAfterBytes(1000))
	clock := &fakeClock{}
	job := newTestJob(t, srv.URL())

	require.NoError(t, newTestExecutor(nil, clock).Transfer(context.Background(), job))

	got, err := os.ReadFile(job.FilePath)
	require.NoError(t, err)
	assert.Equal(t, srv.Data(), got)
	assert.True(t, job.Succeeded())

	ranges := srv.Ranges()
	require.NotEmpty(t, ranges)
	assert.Equal(t, "bytes=1000-", ranges[0])
	for _, d := range clock.Sleeps() {
		assert.Equal(t, 2*time.Second, d, "each chunk recovers on its second attempt")
	}
}

func TestExecutor_ResumeRejectedWhenRangeIgnored(t *testing.T) {
	srv := testutil.NewMockServerT(t,
		testutil.WithFileSize(4096),
		testutil.WithFailAfterBytes(1000),
		testutil.WithoutRanges(),
	)
	job := newTestJob(t, srv.URL())

	err := newTestExecutor(nil, &fakeClock{}).Transfer(context.Background(), job)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.False(t, job.Succeeded())
	assert.False(t, testutil.FileExists(job.FilePath))
}

func TestExecutor_FallsBackToAnotherEndpoint(t *testing.T) {
	good := testutil.NewMockServerT(t, testutil.WithFileSize(2048), testutil.WithRequiredToken("tok"))
	dead := testutil.UnreachableURL(t)
	resolver := &stubResolver{eps: connection.Endpoints{Token: "tok", URIs: []string{dead, good.URL()}}}
	job := newTestJob(t, dead+"/library/parts/1/file.mkv")

	require.NoError(t, newTestExecutor(resolver, &fakeClock{}).Transfer(context.Background(), job))

	assert.NoError(t, testutil.VerifyFileSize(job.FilePath, 2048))
	assert.Equal(t, []string{good.URL()}, resolver.remembered)
	assert.EqualValues(t, 1, good.RequestCount.Load())
}

func TestExecutor_NoCandidatesIsTerminal(t *testing.T) {
	failing := testutil.NewMockServerT(t, testutil.WithStatus(http.StatusInternalServerError))
	resolver := &stubResolver{}
	job := newTestJob(t, failing.URL()+"/library/parts/1/file.mkv")

	err := newTestExecutor(resolver, &fakeClock{}).Transfer(context.Background(), job)
	require.ErrorIs(t, err, ErrNoReachableEndpoint)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.False(t, job.Succeeded())
	assert.False(t, testutil.FileExists(job.FilePath))
	assert.False(t, testutil.FileExists(job.FilePath+types.IncompleteSuffix))
}

func TestExecutor_ResolverErrorIsTerminal(t *testing.T) {
	failing := testutil.NewMockServerT(t, testutil.WithStatus(http.StatusBadGateway))
	resolver := &stubResolver{err: errors.New("server not registered")}
	job := newTestJob(t, failing.URL())

	err := newTestExecutor(resolver, &fakeClock{}).Transfer(context.Background(), job)
	assert.ErrorIs(t, err, ErrNoReachableEndpoint)
}

func TestExecutor_Cancellation(t *testing.T) {
	const size = 1 << 20
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(testutil.Payload(4096))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	srv := testutil.NewHTTPServerT(t, handler)
	job := newTestJob(t, srv.URL)

	done := make(chan error, 1)
	go func() { done <- newTestExecutor(nil, &fakeClock{}).Transfer(job.Context(), job) }()

	require.Eventually(t, func() bool { return job.Transferred() > 0 }, 5*time.Second, 10*time.Millisecond)
	job.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not stop after cancel")
	}
	assert.False(t, job.Succeeded())
	assert.LessOrEqual(t, job.Transferred(), job.Total())
	assert.False(t, testutil.FileExists(job.FilePath))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(io.ErrUnexpectedEOF))
	assert.True(t, IsTransient(&StatusError{StatusCode: 503}))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(Permanent(io.EOF)))
}
