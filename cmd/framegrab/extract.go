package main

import (
	"fmt"
	"log/slog"

	"github.com/glizzus/framegrab/internal/extract"
	"github.com/glizzus/framegrab/internal/ffmpeg"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/urfave/cli/v2"
)

var extractFlags = []cli.Flag{
	&cli.Float64Flag{
		Name:  "fps",
		Usage: "Sample `N` frames per second instead of keeping every frame",
	},
	&cli.IntFlag{
		Name:  "max-frames",
		Usage: "Stop after `N` frames",
	},
	&cli.DurationFlag{
		Name:  "start",
		Usage: "Seek to `D` before decoding",
	},
	&cli.IntFlag{
		Name:  "width",
		Usage: "Scale frames to `W` pixels wide",
	},
	&cli.IntFlag{
		Name:  "height",
		Usage: "Scale frames to `H` pixels high",
	},
	&cli.StringFlag{
		Name:  "pixel-format",
		Usage: "Pixel format to convert to: rgb24, bgr24 or rgba",
		Value: "rgb24",
	},
	&cli.StringFlag{
		Name:  "format",
		Usage: "Image format to write: ppm, png or jpeg",
		Value: "ppm",
	},
	&cli.IntFlag{
		Name:  "workers",
		Usage: "Number of concurrent image encoders (default GOMAXPROCS)",
	},
}

func extractAction(c *cli.Context) error {
	if c.NArg() < 2 {
		_ = cli.ShowAppHelp(c)
		return cli.Exit("expected an input file and an output prefix", 1)
	}
	input, prefix := c.Args().Get(0), c.Args().Get(1)

	format, err := frame.ParseImageFormat(c.String("format"))
	if err != nil {
		return exit(err)
	}
	pixelFormat, err := pixelFormatFlag(c)
	if err != nil {
		return exit(err)
	}
	if c.Int("max-frames") < 0 || c.Float64("fps") < 0 {
		return cli.Exit("--fps and --max-frames must not be negative", 1)
	}

	runner, err := newRunner()
	if err != nil {
		return exit(err)
	}

	extractor := extract.New(runner, extract.NewFileSink())
	result, err := extractor.Extract(c.Context, input, prefix, extract.Options{
		Decode: ffmpeg.DecodeOptions{
			PixelFormat: pixelFormat,
			Width:       c.Int("width"),
			Height:      c.Int("height"),
			FPS:         c.Float64("fps"),
			MaxFrames:   c.Int("max-frames"),
			Start:       c.Duration("start"),
		},
		Format:  format,
		Workers: c.Int("workers"),
	})
	if err != nil {
		return exit(err)
	}

	slog.Info("extracted frames",
		"input", input,
		"frameCount", result.Frames,
		"width", result.Stream.Width,
		"height", result.Stream.Height,
		"elapsed", result.Duration,
	)
	fmt.Fprintf(c.App.Writer, "wrote %d frames to %s\n", result.Frames, prefix)
	return nil
}
