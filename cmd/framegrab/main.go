package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/ffmpeg"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/urfave/cli/v2"
)

func newRunner() (*ffmpeg.Runner, error) {
	runner, err := ffmpeg.NewRunnerFromEnv()
	if err != nil {
		return nil, err
	}
	if err := runner.CheckAvailable(); err != nil {
		return nil, err
	}
	return runner, nil
}

func pixelFormatFlag(c *cli.Context) (frame.PixelFormat, error) {
	if !c.IsSet("pixel-format") {
		return frame.RGB24, nil
	}
	return frame.ParsePixelFormat(c.String("pixel-format"))
}

// exit turns an error into a non-zero exit with its message.
func exit(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(err.Error(), 1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:        "framegrab",
		Usage:       "Extract video frames as images",
		UsageText:   "framegrab [options] <input> <output-prefix>\nframegrab <command> [options] <args>",
		Description: "Decodes the first video stream of <input> and writes every frame to <output-prefix>NNNNNN.<ext>.",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at debug level",
			},
		}, extractFlags...),
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			if err := config.LoadEnv(); err != nil {
				if os.IsNotExist(err) {
					slog.Debug("No .env file found, continuing without it")
				} else {
					return fmt.Errorf("failed to load .env file: %w", err)
				}
			}
			return nil
		},
		Action: extractAction,
		Commands: []*cli.Command{
			probeCommand,
			previewCommand,
			spriteCommand,
			submitCommand,
			statusCommand,
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("framegrab failed", "error", err)
		os.Exit(1)
	}
}
