package worker

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/datalayer"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/glizzus/framegrab/internal/generator"
	"github.com/glizzus/framegrab/internal/repository"
)

type SubmitOptions struct {
	// Format and FPS fall back to the worker defaults when zero.
	Format      frame.ImageFormat
	PixelFormat frame.PixelFormat
	FPS         float64
	MaxFrames   int
}

// Submitter uploads local videos and queues them for extraction.
type Submitter struct {
	storage datalayer.BlobStorage
	repo    repository.ExtractionRepository
	queue   JobQueue
	ids     generator.Generator[string]
	cfg     config.WorkerConfig
}

func NewSubmitter(storage datalayer.BlobStorage, repo repository.ExtractionRepository, queue JobQueue, ids generator.Generator[string], cfg config.WorkerConfig) *Submitter {
	return &Submitter{
		storage: storage,
		repo:    repo,
		queue:   queue,
		ids:     ids,
		cfg:     cfg,
	}
}

func (s *Submitter) Submit(ctx context.Context, path string, opts SubmitOptions) (ExtractionJob, error) {
	job, err := s.newJob(path, opts)
	if err != nil {
		return ExtractionJob{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return ExtractionJob{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return ExtractionJob{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := s.storage.Put(ctx, job.SourceKey, f, datalayer.PutOptions{
		Size:        stat.Size(),
		ContentType: contentType(path),
	}); err != nil {
		return ExtractionJob{}, fmt.Errorf("failed to upload %s: %w", path, err)
	}

	if err := s.repo.Save(ctx, repository.Extraction{
		ID:           job.ID,
		SourceKey:    job.SourceKey,
		OutputPrefix: job.OutputPrefix,
		Format:       string(job.Format),
		Status:       repository.StatusQueued,
		RequestedAt:  job.RequestedAt,
	}); err != nil {
		return ExtractionJob{}, fmt.Errorf("failed to save extraction %s: %w", job.ID, err)
	}

	if err := s.queue.Submit(ctx, job); err != nil {
		return ExtractionJob{}, err
	}
	slog.Info("submitted extraction job", "jobID", job.ID, "sourceKey", job.SourceKey, "bytes", stat.Size())
	return job, nil
}

// The system MIME table often lacks video types.
var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".ts":   "video/mp2t",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Submitter) newJob(path string, opts SubmitOptions) (ExtractionJob, error) {
	id, err := s.ids.Next()
	if err != nil {
		return ExtractionJob{}, fmt.Errorf("failed to generate job ID: %w", err)
	}

	format := opts.Format
	if format == "" {
		if format, err = frame.ParseImageFormat(s.cfg.DefaultFormat); err != nil {
			return ExtractionJob{}, err
		}
	}
	fps := opts.FPS
	if fps == 0 {
		fps = s.cfg.DefaultFPS
	}
	pixelFormat := opts.PixelFormat
	if pixelFormat == 0 {
		pixelFormat = frame.RGB24
	}

	job := ExtractionJob{
		ID:           id,
		SourceKey:    s.cfg.SourcePrefix + id + "/" + filepath.Base(path),
		OutputPrefix: s.cfg.FramePrefix + id + "/frame_",
		Format:       format,
		PixelFormat:  pixelFormat,
		FPS:          fps,
		MaxFrames:    opts.MaxFrames,
		RequestedAt:  time.Now().UTC(),
	}
	return job, job.Validate()
}
