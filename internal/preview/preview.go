// Package preview renders single frames and thumbnail sprites.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/glizzus/framegrab/internal/ffmpeg"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/glizzus/framegrab/internal/h264"
	"github.com/glizzus/framegrab/internal/mp4"
)

var (
	ErrNoSamples = errors.New("preview: no samples to decode")
	ErrNoFrame   = errors.New("preview: decoder produced no frame")
)

// Decoder is the subset of *ffmpeg.Runner used for previews.
type Decoder interface {
	Probe(ctx context.Context, input string) (*ffmpeg.Container, error)
	OpenVideo(ctx context.Context, input string, opts ffmpeg.DecodeOptions) (ffmpeg.FrameSource, error)
	DecodePackets(ctx context.Context, packets io.Reader, opts ffmpeg.PacketOptions, fn func(*frame.Frame) error) error
}

var _ Decoder = (*ffmpeg.Runner)(nil)

// Options controls a preview decode.
type Options struct {
	// Width and Height of the result. Zero takes the size from the SPS;
	// setting only one keeps the SPS aspect ratio.
	Width  int
	Height int

	// PixelFormat defaults to RGB24.
	PixelFormat frame.PixelFormat

	// Params are placed ahead of the first sample. Empty means the samples
	// must carry their own.
	Params h264.ParameterSets

	// Exact decodes through the sample at the requested time instead of
	// stopping at the preceding keyframe.
	Exact bool
}

// Previewer decodes previews with a Decoder.
type Previewer struct {
	decoder Decoder
}

func New(decoder Decoder) *Previewer {
	return &Previewer{decoder: decoder}
}

// Decode feeds samples to an H.264 decoder in order, flushes it and returns
// the last decoded frame. The caller owns the returned frame.
func (p *Previewer) Decode(ctx context.Context, samples []h264.Sample, opts Options) (*frame.Frame, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	params := opts.Params
	if len(params.SPS) == 0 {
		params = h264.FindParameterSets(samples)
	}

	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		w, h, err := params.Dimensions()
		if err != nil {
			return nil, fmt.Errorf("failed to determine picture size: %w", err)
		}
		width, height = ffmpeg.OutputSize(w, h, width, height)
	}

	stream, err := h264.AnnexBStream(samples, params)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble stream: %w", err)
	}

	var last *frame.Frame
	err = p.decoder.DecodePackets(ctx, bytes.NewReader(stream), ffmpeg.PacketOptions{
		Codec:       ffmpeg.CodecH264,
		Width:       width,
		Height:      height,
		PixelFormat: opts.PixelFormat,
	}, func(fr *frame.Frame) error {
		last = fr
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode %d samples: %w", len(samples), err)
	}
	if last == nil {
		return nil, ErrNoFrame
	}
	return last, nil
}

// Source is a seekable MP4 file: an *os.File or an *mp4.RangeReader.
type Source interface {
	io.ReadSeeker
	io.ReaderAt
}

// FromMP4 decodes the frame shown at seconds into the first AVC track of src.
// Without opts.Exact the keyframe at or before seconds is returned.
func (p *Previewer) FromMP4(ctx context.Context, src Source, seconds float64, opts Options) (*frame.Frame, error) {
	track, err := mp4.ReadVideoTrack(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read video track: %w", err)
	}

	from := track.KeyframeAt(seconds)
	to := from
	if opts.Exact {
		to = track.SampleAt(seconds)
	}
	slog.Debug("decoding preview samples",
		"trackID", track.ID,
		"from", from,
		"to", to,
		"keyframeTime", track.SampleTime(from),
	)

	samples, err := track.ReadSamples(src, from, to)
	if err != nil {
		return nil, err
	}
	// Open-GOP streams mark recovery points as sync samples.
	if len(samples) > 0 && !h264.HasIDR(samples[0]) {
		slog.Warn("preview starts at a sync sample without an IDR slice", "sample", from)
	}

	if len(opts.Params.SPS) == 0 {
		opts.Params = track.Params
	}
	if opts.Width <= 0 && opts.Height <= 0 {
		opts.Width, opts.Height = track.Width, track.Height
	}
	return p.Decode(ctx, samples, opts)
}
