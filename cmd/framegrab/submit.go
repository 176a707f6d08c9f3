package main

import (
	"context"
	"fmt"
	"os"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/datalayer"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/glizzus/framegrab/internal/generator"
	"github.com/glizzus/framegrab/internal/repository"
	"github.com/glizzus/framegrab/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func openRepository(ctx context.Context) (*pgxpool.Pool, *repository.PostgresExtractionRepository, error) {
	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	return pool, repository.NewPostgresExtractionRepository(pool), nil
}

var submitCommand = &cli.Command{
	Name:      "submit",
	Usage:     "Upload a video and queue it for extraction by a worker",
	ArgsUsage: "<input>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "format", Usage: "ppm, png or jpeg (default from WORKER_DEFAULT_FORMAT)"},
		&cli.StringFlag{Name: "pixel-format", Value: "rgb24", Usage: "rgb24, bgr24 or rgba"},
		&cli.Float64Flag{Name: "fps", Usage: "Frames per second to sample (default from WORKER_DEFAULT_FPS)"},
		&cli.IntFlag{Name: "max-frames", Usage: "Stop after `N` frames"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("expected an input file", 1)
		}

		opts := worker.SubmitOptions{
			FPS:       c.Float64("fps"),
			MaxFrames: c.Int("max-frames"),
		}
		if c.IsSet("format") {
			format, err := frame.ParseImageFormat(c.String("format"))
			if err != nil {
				return exit(err)
			}
			opts.Format = format
		}
		pixelFormat, err := pixelFormatFlag(c)
		if err != nil {
			return exit(err)
		}
		opts.PixelFormat = pixelFormat

		workerConfig, err := config.NewWorkerConfigFromEnv()
		if err != nil {
			return exit(fmt.Errorf("failed to load worker config: %w", err))
		}
		redisConfig, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return exit(fmt.Errorf("failed to load redis config: %w", err))
		}

		storage, err := datalayer.NewMinioStorageFromEnv()
		if err != nil {
			return exit(fmt.Errorf("failed to create minio client: %w", err))
		}
		if err := storage.EnsureBucket(c.Context); err != nil {
			return exit(fmt.Errorf("failed to ensure bucket: %w", err))
		}

		pool, repo, err := openRepository(c.Context)
		if err != nil {
			return exit(err)
		}
		defer pool.Close()

		rdb, err := datalayer.NewRedisClient(c.Context, *redisConfig)
		if err != nil {
			return exit(err)
		}
		defer rdb.Close()

		hostname, _ := os.Hostname()
		queue, err := worker.NewRedisJobQueue(c.Context, rdb, *redisConfig, "submit-"+hostname)
		if err != nil {
			return exit(err)
		}

		submitter := worker.NewSubmitter(storage, repo, queue, &generator.UUIDV4Generator{}, *workerConfig)
		job, err := submitter.Submit(c.Context, c.Args().First(), opts)
		if err != nil {
			return exit(err)
		}
		fmt.Fprintln(c.App.Writer, job.ID)
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:      "status",
	Usage:     "Show the record of a submitted extraction",
	ArgsUsage: "<job-id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "frame-out",
			Usage: "Download one extracted frame to `PATH`",
		},
		&cli.IntFlag{
			Name:  "frame",
			Usage: "Index of the frame --frame-out downloads",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("expected a job ID", 1)
		}
		pool, repo, err := openRepository(c.Context)
		if err != nil {
			return exit(err)
		}
		defer pool.Close()

		e, err := repo.Get(c.Context, c.Args().First())
		if err != nil {
			return exit(err)
		}

		w := c.App.Writer
		fmt.Fprintf(w, "id:        %s\n", e.ID)
		fmt.Fprintf(w, "status:    %s\n", e.Status)
		fmt.Fprintf(w, "source:    %s\n", e.SourceKey)
		fmt.Fprintf(w, "frames:    %s (%d, %s)\n", e.OutputPrefix, e.FrameCount, e.Format)
		if e.Width > 0 {
			fmt.Fprintf(w, "stream:    %s %dx%d\n", e.Codec, e.Width, e.Height)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "error:     %s\n", e.Error)
		}
		fmt.Fprintf(w, "requested: %s\n", e.RequestedAt.Format("2006-01-02 15:04:05"))
		if e.FinishedAt != nil {
			fmt.Fprintf(w, "finished:  %s\n", e.FinishedAt.Format("2006-01-02 15:04:05"))
		}

		if out := c.String("frame-out"); out != "" {
			return exit(downloadFrame(c.Context, *e, c.Int("frame"), out))
		}
		return nil
	},
}

func downloadFrame(ctx context.Context, e repository.Extraction, index int, path string) error {
	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := worker.FetchFrame(ctx, storage, e, index, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
