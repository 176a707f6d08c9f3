package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/datalayer"
	"github.com/glizzus/framegrab/internal/ffmpeg"
	"github.com/glizzus/framegrab/internal/metrics"
	"github.com/glizzus/framegrab/internal/repository"
	"github.com/glizzus/framegrab/internal/schedule"
	"github.com/glizzus/framegrab/internal/worker"
	"golang.org/x/sync/errgroup"
)

func runWorkerForever(ctx context.Context) error {
	slog.SetLogLoggerLevel(slog.LevelDebug)
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	workerConfig, err := config.NewWorkerConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load worker config: %w", err)
	}
	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	if err := schedule.ValidateCron(workerConfig.SweepCron); err != nil {
		return fmt.Errorf("invalid WORKER_SWEEP_CRON: %w", err)
	}
	nextSweep, err := schedule.NextRun(workerConfig.SweepCron)
	if err != nil {
		return fmt.Errorf("invalid WORKER_SWEEP_CRON: %w", err)
	}

	runner, err := ffmpeg.NewRunnerFromEnv()
	if err != nil {
		return err
	}
	if err := runner.CheckAvailable(); err != nil {
		return err
	}

	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure bucket: %w", err)
	}

	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	rdb, err := datalayer.NewRedisClient(ctx, *redisConfig)
	if err != nil {
		return err
	}
	defer rdb.Close()

	consumer, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	queue, err := worker.NewRedisJobQueue(ctx, rdb, *redisConfig, consumer)
	if err != nil {
		return err
	}

	repo := repository.NewPostgresExtractionRepository(pool)
	processor := worker.NewProcessor(storage, repo, runner, *workerConfig)

	metricsServer := metrics.StartMetricsServer(workerConfig.MetricsAddr)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("failed to stop metrics server", "error", err)
		}
	}()

	slog.Info("worker started",
		"consumer", consumer,
		"stream", redisConfig.Stream,
		"sweepCron", workerConfig.SweepCron,
		"nextSweep", nextSweep,
		"retention", workerConfig.Retention,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return schedule.Every(gctx, workerConfig.SweepCron, func(ctx context.Context) {
			if _, err := processor.Sweep(ctx, workerConfig.Retention); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		})
	})
	g.Go(func() error {
		return worker.Run(gctx, queue, processor)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("worker stopped")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWorkerForever(ctx); err != nil {
		slog.Error("Worker encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
