package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/datalayer"
	"github.com/glizzus/framegrab/internal/extract"
	"github.com/glizzus/framegrab/internal/ffmpeg"
	"github.com/glizzus/framegrab/internal/metrics"
	"github.com/glizzus/framegrab/internal/repository"
	"github.com/glizzus/framegrab/internal/util"
	"golang.org/x/sync/errgroup"
)

const sweepBatchSize = 8

// Processor runs extraction jobs against blob storage and records their
// outcome.
type Processor struct {
	storage datalayer.BlobStorage
	repo    repository.ExtractionRepository
	opener  extract.Opener
	cfg     config.WorkerConfig
}

func NewProcessor(storage datalayer.BlobStorage, repo repository.ExtractionRepository, opener extract.Opener, cfg config.WorkerConfig) *Processor {
	return &Processor{
		storage: storage,
		repo:    repo,
		opener:  opener,
		cfg:     cfg,
	}
}

// Process runs job to completion. A failed extraction is recorded as failed
// and its error returned; the job should not be retried either way.
func (p *Processor) Process(ctx context.Context, job ExtractionJob) error {
	start := time.Now()
	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	log := slog.With("jobID", job.ID, "sourceKey", job.SourceKey)
	log.Info("processing extraction job")

	if err := p.markRunning(ctx, job); err != nil {
		return err
	}

	summary, err := p.run(ctx, job, log)
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JobsProcessedTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		log.Error("extraction job failed", "error", err)
		// The job's context may be the reason it failed.
		if markErr := p.repo.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error()); markErr != nil {
			return errors.Join(err, fmt.Errorf("failed to record failure: %w", markErr))
		}
		return err
	}

	if err := p.repo.MarkDone(ctx, job.ID, summary); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	metrics.JobsProcessedTotal.WithLabelValues(metrics.OutcomeDone).Inc()
	log.Info("extraction job done", "frameCount", summary.FrameCount, "elapsed", time.Since(start))
	return nil
}

// markRunning creates the record if the job was queued without one.
func (p *Processor) markRunning(ctx context.Context, job ExtractionJob) error {
	err := p.repo.MarkRunning(ctx, job.ID)
	if !errors.Is(err, repository.ErrExtractionNotFound) {
		return err
	}

	now := time.Now().UTC()
	return p.repo.Save(ctx, repository.Extraction{
		ID:           job.ID,
		SourceKey:    job.SourceKey,
		OutputPrefix: job.OutputPrefix,
		Format:       string(job.Format),
		Status:       repository.StatusRunning,
		RequestedAt:  job.RequestedAt,
		StartedAt:    &now,
	})
}

func (p *Processor) maxFrames(requested int) int {
	limit := p.cfg.MaxFramesLimit
	if limit <= 0 {
		return requested
	}
	if requested == 0 || requested > limit {
		return limit
	}
	return requested
}

func (p *Processor) run(ctx context.Context, job ExtractionJob, log *slog.Logger) (repository.StreamSummary, error) {
	if err := os.MkdirAll(p.cfg.TempDir, 0o755); err != nil {
		return repository.StreamSummary{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	workDir, err := os.MkdirTemp(p.cfg.TempDir, job.ID+"-")
	if err != nil {
		return repository.StreamSummary{}, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("failed to remove work dir", "dir", workDir, "error", err)
		}
	}()

	input := filepath.Join(workDir, "source"+path.Ext(job.SourceKey))
	stageStart := time.Now()
	if err := p.storage.FGet(ctx, job.SourceKey, input); err != nil {
		return repository.StreamSummary{}, fmt.Errorf("failed to download %s: %w", job.SourceKey, err)
	}
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(stageStart).Seconds())

	maxFrames := p.maxFrames(job.MaxFrames)
	stageStart = time.Now()
	result, err := extract.New(p.opener, extract.NewBlobSink(p.storage)).Extract(ctx, input, job.OutputPrefix, extract.Options{
		Decode: ffmpeg.DecodeOptions{
			PixelFormat: job.PixelFormat,
			FPS:         job.FPS,
			MaxFrames:   maxFrames,
		},
		Format:  job.Format,
		Workers: p.cfg.EncodeWorkers,
		OnFrame: func(string) { metrics.FramesExtractedTotal.Inc() },
	})
	if err != nil {
		return repository.StreamSummary{}, err
	}
	metrics.JobProcessingDuration.WithLabelValues("extract").Observe(time.Since(stageStart).Seconds())

	return repository.StreamSummary{
		FrameCount: result.Frames,
		Width:      result.Stream.Width,
		Height:     result.Stream.Height,
		Codec:      result.Stream.Stream.Codec,
	}, nil
}

// Sweep deletes the stored frames and records of extractions that finished
// more than olderThan ago. It returns how many extractions were removed.
func (p *Processor) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	finished, err := p.repo.ListFinishedBefore(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if len(finished) == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		removed int
		errs    []error
	)
	for _, batch := range util.Chunk(finished, sweepBatchSize) {
		var g errgroup.Group
		for _, e := range batch {
			g.Go(func() error {
				err := p.remove(ctx, e)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				} else {
					removed++
				}
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			break
		}
	}

	metrics.SweptExtractionsTotal.Add(float64(removed))
	slog.Info("swept finished extractions", "removed", removed, "failed", len(errs))
	return removed, errors.Join(errs...)
}

func (p *Processor) remove(ctx context.Context, e repository.Extraction) error {
	// An empty prefix would match the whole bucket.
	if e.OutputPrefix != "" {
		n, err := p.storage.RemovePrefix(ctx, e.OutputPrefix)
		if err != nil {
			return fmt.Errorf("failed to remove frames of %s: %w", e.ID, err)
		}
		slog.Debug("removed frames", "jobID", e.ID, "objects", n)
	}
	if e.SourceKey != "" {
		if _, err := p.storage.RemovePrefix(ctx, e.SourceKey); err != nil {
			return fmt.Errorf("failed to remove source of %s: %w", e.ID, err)
		}
	}
	if err := p.repo.Delete(ctx, e.ID); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", e.ID, err)
	}
	return nil
}
