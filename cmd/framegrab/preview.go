package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/glizzus/framegrab/internal/frame"
	"github.com/glizzus/framegrab/internal/mp4"
	"github.com/glizzus/framegrab/internal/preview"
	"github.com/urfave/cli/v2"
)

var outputFlag = &cli.StringFlag{
	Name:     "output",
	Aliases:  []string{"o"},
	Usage:    "Image file to write; the extension picks the format",
	Required: true,
}

func writeImage(path string, fr *frame.Frame) error {
	format, err := frame.ParseImageFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := frame.Encode(f, fr, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

var previewCommand = &cli.Command{
	Name:      "preview",
	Usage:     "Decode one frame of an H.264 MP4 file or URL",
	ArgsUsage: "<input.mp4|url>",
	Flags: []cli.Flag{
		outputFlag,
		&cli.Float64Flag{
			Name:  "at",
			Usage: "Time in `SECONDS` to preview",
		},
		&cli.BoolFlag{
			Name:  "exact",
			Usage: "Decode up to the exact frame instead of the preceding keyframe",
		},
		&cli.IntFlag{Name: "width", Usage: "Output width"},
		&cli.IntFlag{Name: "height", Usage: "Output height"},
		&cli.StringFlag{Name: "pixel-format", Value: "rgb24", Usage: "rgb24, bgr24 or rgba"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("expected an MP4 file or URL", 1)
		}
		input := c.Args().First()
		pixelFormat, err := pixelFormatFlag(c)
		if err != nil {
			return exit(err)
		}
		runner, err := newRunner()
		if err != nil {
			return exit(err)
		}

		var src preview.Source
		if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
			rr, err := mp4.NewRangeReader(c.Context, http.DefaultClient, input)
			if err != nil {
				return exit(err)
			}
			src = rr
		} else {
			f, err := os.Open(input)
			if err != nil {
				return exit(err)
			}
			defer f.Close()
			src = f
		}

		fr, err := preview.New(runner).FromMP4(c.Context, src, c.Float64("at"), preview.Options{
			Width:       c.Int("width"),
			Height:      c.Int("height"),
			PixelFormat: pixelFormat,
			Exact:       c.Bool("exact"),
		})
		if err != nil {
			return exit(err)
		}
		return exit(writeImage(c.String("output"), fr))
	},
}

var spriteCommand = &cli.Command{
	Name:      "sprite",
	Usage:     "Build a thumbnail sprite of frames sampled across a video",
	ArgsUsage: "<input>",
	Flags: []cli.Flag{
		outputFlag,
		&cli.IntFlag{Name: "columns", Value: preview.DefaultLayout.Columns},
		&cli.IntFlag{Name: "rows", Value: preview.DefaultLayout.Rows},
		&cli.IntFlag{Name: "tile-width", Value: preview.DefaultLayout.TileWidth},
		&cli.IntFlag{Name: "tile-height", Value: preview.DefaultLayout.TileHeight},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("expected an input file", 1)
		}
		runner, err := newRunner()
		if err != nil {
			return exit(err)
		}

		sprite, err := preview.New(runner).Sprite(c.Context, c.Args().First(), preview.Layout{
			Columns:    c.Int("columns"),
			Rows:       c.Int("rows"),
			TileWidth:  c.Int("tile-width"),
			TileHeight: c.Int("tile-height"),
		})
		if err != nil {
			return exit(err)
		}
		return exit(writeImage(c.String("output"), sprite))
	},
}
