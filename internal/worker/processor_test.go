package worker_test

import (
	"errors"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/glizzus/framegrab/internal/repository"
	"github.com/glizzus/framegrab/internal/worker"
	"github.com/google/go-cmp/cmp"
)

func testWorkerConfig(t *testing.T) config.WorkerConfig {
	return config.WorkerConfig{
		TempDir:        t.TempDir(),
		EncodeWorkers:  2,
		MaxFramesLimit: 100,
		SourcePrefix:   "sources/",
		FramePrefix:    "frames/",
		DefaultFormat:  "png",
		DefaultFPS:     1,
	}
}

func testJob() worker.ExtractionJob {
	return worker.ExtractionJob{
		ID:           "job-1",
		SourceKey:    "sources/job-1/clip.mp4",
		OutputPrefix: "frames/job-1/frame_",
		Format:       frame.PNG,
		PixelFormat:  frame.RGB24,
		FPS:          2,
		RequestedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Errorf("expected %s to be empty, found %d entries", dir, len(entries))
	}
}

func TestProcessor_Process(t *testing.T) {
	ctx := t.Context()
	cfg := testWorkerConfig(t)
	job := testJob()

	storage := newMemStorage()
	storage.objects[job.SourceKey] = []byte("not really a video")
	repo := newMemRepository(repository.Extraction{ID: job.ID, Status: repository.StatusQueued})
	opener := &fakeOpener{frames: 3}

	p := worker.NewProcessor(storage, repo, opener, cfg)
	if err := p.Process(ctx, job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	keys := storage.keys(job.OutputPrefix)
	sort.Strings(keys)
	wantKeys := []string{
		"frames/job-1/frame_000000.png",
		"frames/job-1/frame_000001.png",
		"frames/job-1/frame_000002.png",
	}
	if diff := cmp.Diff(wantKeys, keys); diff != "" {
		t.Errorf("stored frames mismatch (-want +got):\n%s", diff)
	}
	if got := storage.contentTypes[wantKeys[0]]; got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}

	if opener.gotOpts.FPS != 2 || opener.gotOpts.MaxFrames != cfg.MaxFramesLimit {
		t.Errorf("unexpected decode options: %+v", opener.gotOpts)
	}

	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if got.Status != repository.StatusDone {
		t.Errorf("expected status done, got %s", got.Status)
	}
	summary := repository.StreamSummary{FrameCount: got.FrameCount, Width: got.Width, Height: got.Height, Codec: got.Codec}
	if diff := cmp.Diff(repository.StreamSummary{FrameCount: 3, Width: 4, Height: 2, Codec: "h264"}, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	assertEmptyDir(t, cfg.TempDir)
}

func TestProcessor_Process_CreatesMissingRecord(t *testing.T) {
	ctx := t.Context()
	job := testJob()
	storage := newMemStorage()
	storage.objects[job.SourceKey] = []byte("video")
	repo := newMemRepository()

	p := worker.NewProcessor(storage, repo, &fakeOpener{frames: 1}, testWorkerConfig(t))
	if err := p.Process(ctx, job); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("expected record to be created, got %v", err)
	}
	if got.Status != repository.StatusDone || got.SourceKey != job.SourceKey {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestProcessor_Process_Failures(t *testing.T) {
	tests := []struct {
		name       string
		source     bool
		opener     *fakeOpener
		wantErr    error
		wantReason string
	}{
		{
			name:       "missing source",
			source:     false,
			opener:     &fakeOpener{frames: 1},
			wantReason: "failed to download sources/job-1/clip.mp4",
		},
		{
			name:       "decoder fails",
			source:     true,
			opener:     &fakeOpener{openErr: errBoom},
			wantErr:    errBoom,
			wantReason: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := t.Context()
			cfg := testWorkerConfig(t)
			job := testJob()
			storage := newMemStorage()
			if tt.source {
				storage.objects[job.SourceKey] = []byte("video")
			}
			repo := newMemRepository(repository.Extraction{ID: job.ID, Status: repository.StatusQueued})

			err := worker.NewProcessor(storage, repo, tt.opener, cfg).Process(ctx, job)
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}

			got, _ := repo.Get(ctx, job.ID)
			if got.Status != repository.StatusFailed {
				t.Errorf("expected status failed, got %s", got.Status)
			}
			if !strings.Contains(got.Error, tt.wantReason) {
				t.Errorf("expected reason containing %q, got %q", tt.wantReason, got.Error)
			}
			if len(storage.keys(job.OutputPrefix)) != 0 {
				t.Error("expected no frames to be stored")
			}
			assertEmptyDir(t, cfg.TempDir)
		})
	}
}

func TestProcessor_Sweep(t *testing.T) {
	ctx := t.Context()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Minute)

	records := []repository.Extraction{
		{ID: "old-done", Status: repository.StatusDone, OutputPrefix: "frames/old-done/", SourceKey: "sources/old-done/a.mp4", FinishedAt: &old},
		{ID: "old-failed", Status: repository.StatusFailed, OutputPrefix: "frames/old-failed/", FinishedAt: &old},
		{ID: "recent", Status: repository.StatusDone, OutputPrefix: "frames/recent/", FinishedAt: &recent},
		{ID: "running", Status: repository.StatusRunning, OutputPrefix: "frames/running/"},
	}
	repo := newMemRepository(records...)
	storage := newMemStorage()
	for _, key := range []string{
		"frames/old-done/frame_000000.png",
		"frames/old-done/frame_000001.png",
		"sources/old-done/a.mp4",
		"frames/recent/frame_000000.png",
		"frames/running/frame_000000.png",
	} {
		storage.objects[key] = []byte{1}
	}

	p := worker.NewProcessor(storage, repo, &fakeOpener{}, testWorkerConfig(t))
	removed, err := p.Sweep(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 extractions removed, got %d", removed)
	}

	remaining := storage.keys("")
	sort.Strings(remaining)
	if diff := cmp.Diff([]string{"frames/recent/frame_000000.png", "frames/running/frame_000000.png"}, remaining); diff != "" {
		t.Errorf("remaining objects mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []string{"old-done", "old-failed"} {
		if _, err := repo.Get(ctx, id); !errors.Is(err, repository.ErrExtractionNotFound) {
			t.Errorf("expected %s to be deleted, got %v", id, err)
		}
	}
	for _, id := range []string{"recent", "running"} {
		if _, err := repo.Get(ctx, id); err != nil {
			t.Errorf("expected %s to remain, got %v", id, err)
		}
	}
}
