// Package extract decodes every frame of a video and stores each one as an
// image.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glizzus/framegrab/internal/ffmpeg"
	"github.com/glizzus/framegrab/internal/frame"
)

// Opener starts decoding a video. *ffmpeg.Runner implements it.
type Opener interface {
	OpenVideo(ctx context.Context, input string, opts ffmpeg.DecodeOptions) (ffmpeg.FrameSource, error)
}

var _ Opener = (*ffmpeg.Runner)(nil)

// Sink stores encoded frames. data is only valid for the duration of the
// call. Write is called concurrently.
type Sink interface {
	Write(ctx context.Context, name string, data []byte, format frame.ImageFormat) error
}

// Options controls an extraction.
type Options struct {
	Decode ffmpeg.DecodeOptions

	// Format defaults to PPM.
	Format frame.ImageFormat

	// Workers is the number of concurrent image encoders. Zero means
	// GOMAXPROCS.
	Workers int

	// OnFrame, if set, is called after each frame is stored.
	OnFrame func(name string)
}

// Result summarises a finished extraction.
type Result struct {
	Frames   int
	Stream   ffmpeg.StreamInfo
	Duration time.Duration
}

// FrameName is the name frame index is stored under:
// the prefix, the index zero-padded to six digits, and the extension.
func FrameName(prefix string, index int, format frame.ImageFormat) string {
	return fmt.Sprintf("%s%06d.%s", prefix, index, format.Extension())
}

type Extractor struct {
	opener Opener
	sink   Sink
}

func New(opener Opener, sink Sink) *Extractor {
	return &Extractor{opener: opener, sink: sink}
}

// Extract decodes input and writes every frame to the sink under prefix.
// Frames are named by their 0-based decode index. If the input has no video
// stream nothing is written and the error matches ffmpeg.ErrNoVideoStream.
func (e *Extractor) Extract(ctx context.Context, input, prefix string, opts Options) (*Result, error) {
	format := opts.Format
	if format == "" {
		format = frame.PPM
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	src, err := e.opener.OpenVideo(ctx, input, opts.Decode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer src.Close()

	info := src.Info()
	slog.Debug("extracting frames",
		"input", input,
		"stream", info.Stream.Index,
		"codec", info.Stream.Codec,
		"width", info.Width,
		"height", info.Height,
		"format", format,
		"workers", workers,
	)

	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan *frame.Frame, workers)
	var written atomic.Int64

	g.Go(func() error {
		defer close(frames)
		for {
			fr, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to decode frame: %w", err)
			}
			select {
			case frames <- fr:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for range workers {
		g.Go(func() error {
			var buf bytes.Buffer
			for fr := range frames {
				buf.Reset()
				if err := frame.Encode(&buf, fr, format); err != nil {
					return fmt.Errorf("failed to encode frame %d: %w", fr.Index, err)
				}
				name := FrameName(prefix, fr.Index, format)
				if err := e.sink.Write(gctx, name, buf.Bytes(), format); err != nil {
					return fmt.Errorf("failed to write %s: %w", name, err)
				}
				if n := written.Add(1); n%100 == 0 {
					slog.Debug("frames written", "frameCount", n)
				}
				if opts.OnFrame != nil {
					opts.OnFrame(name)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		Frames:   int(written.Load()),
		Stream:   info,
		Duration: time.Since(start),
	}, nil
}
