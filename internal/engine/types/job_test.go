package types

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestJob_ProgressIsMonotonicAndClamped(t *testing.T) {
	job := NewJob("m1", "Movie", KindMovie)
	job.SetTotal(1000)

	var last int64
	for i := 0; i < 30; i++ {
		job.AddTransferred(64)
		cur := job.Transferred()
		if cur < last {
			t.Fatalf("transferred went backwards: %d -> %d", last, cur)
		}
		if cur > job.Total() {
			t.Fatalf("transferred %d exceeds total %d", cur, job.Total())
		}
		last = cur
	}
	if job.Transferred() != 1000 {
		t.Errorf("transferred should clamp at total, got %d", job.Transferred())
	}
	if job.Progress() != 1 {
		t.Errorf("progress should be 1, got %f", job.Progress())
	}
}

func TestJob_AddTransferredConcurrent(t *testing.T) {
	job := NewJob("m1", "Movie", KindMovie)
	job.SetTotal(1 << 20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 1000; k++ {
				job.AddTransferred(10)
			}
		}()
	}
	wg.Wait()

	if job.Transferred() != 80000 {
		t.Errorf("expected 80000 bytes, got %d", job.Transferred())
	}
}

func TestJob_IgnoresNonPositiveDeltas(t *testing.T) {
	job := NewJob("m1", "Movie", KindMovie)
	job.AddTransferred(100)
	job.AddTransferred(-50)
	job.AddTransferred(0)
	if job.Transferred() != 100 {
		t.Errorf("negative deltas must not move progress back, got %d", job.Transferred())
	}
}

func TestJob_CompleteWithUnknownTotal(t *testing.T) {
	job := NewJob("e1", "Pilot", KindEpisode)
	job.AddTransferred(512)

	if job.Progress() != 0 {
		t.Errorf("progress with unknown total should be 0, got %f", job.Progress())
	}

	job.Complete()

	if job.Total() != 512 || job.Transferred() != 512 {
		t.Errorf("complete should settle total and transferred at 512, got %d/%d", job.Transferred(), job.Total())
	}
	if !job.Succeeded() {
		t.Error("complete should mark success")
	}
}

func TestJob_TimestampsSetOnce(t *testing.T) {
	job := NewJob("m1", "Movie", KindMovie)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	job.MarkStarted(first)
	job.MarkStarted(first.Add(time.Hour))
	job.MarkFinished(first.Add(2 * time.Hour))
	job.MarkFinished(first.Add(3 * time.Hour))

	rec := job.Snapshot()
	if rec.Started == nil || !rec.Started.Equal(first) {
		t.Errorf("started should stay at first mark, got %v", rec.Started)
	}
	if rec.Finished == nil || !rec.Finished.Equal(first.Add(2*time.Hour)) {
		t.Errorf("finished should stay at first mark, got %v", rec.Finished)
	}
	if !job.IsStarted() {
		t.Error("IsStarted should be true")
	}
}

func TestJob_CancelClosesContext(t *testing.T) {
	job := NewJob("m1", "Movie", KindMovie)
	job.Cancel()

	select {
	case <-job.Context().Done():
	default:
		t.Fatal("context should be done after Cancel")
	}
}

func TestJob_SnapshotOmitsToken(t *testing.T) {
	job := NewJob("m1", "Movie", KindMovie)
	job.Token = "secret-token"
	job.URI = "http://server:32400/library/parts/1/file.mkv"
	job.SetFileName("file.mkv")

	data, err := json.Marshal(job.Snapshot().Status())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "secret-token") {
		t.Error("token leaked into the status resource")
	}
	for _, key := range []string{`"id"`, `"name"`, `"uri"`, `"progress"`, `"started"`, `"finished"`,
		`"finishedSuccessfully"`, `"downloadedBytes"`, `"totalBytes"`, `"elementType"`, `"fileName"`, `"filePath"`, `"mediaKey"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("status resource missing %s: %s", key, data)
		}
	}
}

func TestDownloadStatus_State(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		status DownloadStatus
		want   string
	}{
		{"queued", DownloadStatus{}, "queued"},
		{"downloading", DownloadStatus{Started: &now}, "downloading"},
		{"completed", DownloadStatus{Started: &now, Finished: &now, FinishedSuccessfully: true}, "completed"},
		{"failed", DownloadStatus{Started: &now, Finished: &now}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.State(); got != tt.want {
				t.Errorf("State() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseElementKind(t *testing.T) {
	if k, err := ParseElementKind("movie"); err != nil || k != KindMovie {
		t.Errorf("movie: got %q, %v", k, err)
	}
	if k, err := ParseElementKind("episode"); err != nil || k != KindEpisode {
		t.Errorf("episode: got %q, %v", k, err)
	}
	if _, err := ParseElementKind("show"); err == nil {
		t.Error("show is not a downloadable element kind")
	}
}
