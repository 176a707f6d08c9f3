package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/frame"
)

// Runner starts ffmpeg and ffprobe processes.
type Runner struct {
	ffmpegPath  string
	ffprobePath string
	logLevel    string
}

// NewRunner returns a Runner using the tool paths in cfg.
func NewRunner(cfg config.FFmpegConfig) *Runner {
	r := &Runner{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		logLevel:    cfg.LogLevel,
	}
	if r.ffmpegPath == "" {
		r.ffmpegPath = "ffmpeg"
	}
	if r.ffprobePath == "" {
		r.ffprobePath = "ffprobe"
	}
	if r.logLevel == "" {
		r.logLevel = "error"
	}
	return r
}

func NewRunnerFromEnv() (*Runner, error) {
	cfg, err := config.NewFFmpegConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load ffmpeg config: %w", err)
	}
	return NewRunner(*cfg), nil
}

// CheckAvailable reports ErrNotFound if either tool is missing.
func (r *Runner) CheckAvailable() error {
	for _, path := range []string{r.ffmpegPath, r.ffprobePath} {
		if _, err := exec.LookPath(path); err != nil {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
	}
	return nil
}

// StreamInfo describes the stream being decoded and the frames produced.
type StreamInfo struct {
	Container *Container
	Stream    Stream

	// Width, Height and Format describe every frame returned by Next.
	Width  int
	Height int
	Format frame.PixelFormat
}

// FrameSource yields decoded frames in order. Close must always be called.
type FrameSource interface {
	// Next returns the next frame, or io.EOF once the decoder finished cleanly.
	Next() (*frame.Frame, error)
	Info() StreamInfo
	Close() error
}

type decodeStream struct {
	proc   *process
	reader *FrameReader
	info   StreamInfo
}

var _ FrameSource = (*decodeStream)(nil)

func (s *decodeStream) Next() (*frame.Frame, error) {
	fr, err := s.reader.ReadFrame()
	if err == nil {
		return fr, nil
	}
	// The process error explains a short read better than the read itself.
	if werr := s.proc.wait(); werr != nil {
		return nil, werr
	}
	return nil, err
}

func (s *decodeStream) Info() StreamInfo {
	return s.info
}

func (s *decodeStream) Close() error {
	s.proc.kill()
	return nil
}

// OpenVideo probes input, selects a video stream and starts decoding it.
// ErrNoVideoStream is returned before any process is left running if the
// input has no such stream.
func (r *Runner) OpenVideo(ctx context.Context, input string, opts DecodeOptions) (FrameSource, error) {
	container, err := r.Probe(ctx, input)
	if err != nil {
		return nil, err
	}

	videos := container.VideoStreams()
	if opts.VideoStream < 0 || opts.VideoStream >= len(videos) {
		return nil, fmt.Errorf("%w: %s has %d video streams, wanted #%d",
			ErrNoVideoStream, input, len(videos), opts.VideoStream)
	}
	src := videos[opts.VideoStream]
	if src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("video stream %d of %s has no picture size", src.Index, input)
	}

	width, height := OutputSize(src.Width, src.Height, opts.Width, opts.Height)
	format := opts.pixelFormat()

	proc, err := startProcess(ctx, r.ffmpegPath, fileDecodeArgs(r.logLevel, input, src, opts, width, height), nil)
	if err != nil {
		return nil, err
	}

	return &decodeStream{
		proc:   proc,
		reader: NewFrameReader(proc.stdout, width, height, format),
		info: StreamInfo{
			Container: container,
			Stream:    src,
			Width:     width,
			Height:    height,
			Format:    format,
		},
	}, nil
}

// DecodePackets decodes the elementary stream read from packets and calls fn
// for every frame in output order. An error from fn stops decoding and is
// returned as is.
func (r *Runner) DecodePackets(ctx context.Context, packets io.Reader, opts PacketOptions, fn func(*frame.Frame) error) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid picture size %dx%d", opts.Width, opts.Height)
	}

	proc, err := startProcess(ctx, r.ffmpegPath, packetDecodeArgs(r.logLevel, opts), packets)
	if err != nil {
		return err
	}
	defer proc.kill()

	reader := NewFrameReader(proc.stdout, opts.Width, opts.Height, opts.pixelFormat())
	for {
		fr, err := reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			return proc.wait()
		}
		if err != nil {
			if werr := proc.wait(); werr != nil {
				return werr
			}
			return err
		}
		if err := fn(fr); err != nil {
			return err
		}
	}
}
