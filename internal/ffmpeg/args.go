package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glizzus/framegrab/internal/frame"
)

// DecodeOptions controls how a file is decoded into raw frames.
type DecodeOptions struct {
	// VideoStream selects the nth decodable video stream, from 0.
	VideoStream int

	// PixelFormat is the output format. Zero means RGB24.
	PixelFormat frame.PixelFormat

	// Width and Height scale the output. If only one is set the other
	// follows the source aspect ratio.
	Width  int
	Height int

	// FPS samples frames at a constant rate. Zero keeps every decoded frame.
	FPS float64

	// MaxFrames stops decoding after that many frames. Zero means no limit.
	MaxFrames int

	// Start seeks the input before decoding.
	Start time.Duration
}

func (o DecodeOptions) pixelFormat() frame.PixelFormat {
	if o.PixelFormat == 0 {
		return frame.RGB24
	}
	return o.PixelFormat
}

// Codec names an elementary stream format ffmpeg can demux from a pipe.
type Codec string

const CodecH264 Codec = "h264"

// PacketOptions describes an elementary stream piped to ffmpeg.
type PacketOptions struct {
	// Codec defaults to H.264.
	Codec Codec

	// Width and Height are the decoded picture size, required to split
	// the raw output into frames.
	Width  int
	Height int

	PixelFormat frame.PixelFormat
}

func (o PacketOptions) codec() Codec {
	if o.Codec == "" {
		return CodecH264
	}
	return o.Codec
}

func (o PacketOptions) pixelFormat() frame.PixelFormat {
	if o.PixelFormat == 0 {
		return frame.RGB24
	}
	return o.PixelFormat
}

// OutputSize resolves the scaled frame size from the source size and the
// requested size. A single requested dimension keeps the aspect ratio and
// rounds the other to an even number, the way ffmpeg's scale=-2 does.
func OutputSize(srcW, srcH, reqW, reqH int) (int, int) {
	switch {
	case reqW > 0 && reqH > 0:
		return reqW, reqH
	case reqW > 0 && srcW > 0:
		return reqW, evenRound(float64(srcH) * float64(reqW) / float64(srcW))
	case reqH > 0 && srcH > 0:
		return evenRound(float64(srcW) * float64(reqH) / float64(srcH)), reqH
	}
	return srcW, srcH
}

func evenRound(v float64) int {
	n := int(v/2+0.5) * 2
	if n < 2 {
		return 2
	}
	return n
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// videoFilters builds the -vf chain. Sampling runs before scaling so
// dropped frames are never scaled.
func videoFilters(fps float64, width, height int, scale bool) string {
	var filters []string
	if fps > 0 {
		filters = append(filters, "fps="+formatFloat(fps))
	}
	if scale {
		filters = append(filters, fmt.Sprintf("scale=%d:%d", width, height))
	}
	return strings.Join(filters, ",")
}

func rawOutputArgs(format frame.PixelFormat) []string {
	return []string{"-f", "rawvideo", "-pix_fmt", format.String(), "pipe:1"}
}

// fileDecodeArgs builds the ffmpeg command line for decoding stream src of
// input into raw frames of width x height on stdout.
func fileDecodeArgs(logLevel, input string, src Stream, o DecodeOptions, width, height int) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", logLevel}
	if o.Start > 0 {
		args = append(args, "-ss", formatSeconds(o.Start))
	}
	args = append(args,
		"-noautorotate",
		"-i", input,
		"-map", fmt.Sprintf("0:%d", src.Index),
		"-an", "-sn", "-dn",
	)

	scale := width != src.Width || height != src.Height
	if vf := videoFilters(o.FPS, width, height, scale); vf != "" {
		args = append(args, "-vf", vf)
	}
	if o.FPS == 0 {
		args = append(args, "-fps_mode", "passthrough")
	}
	if o.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(o.MaxFrames))
	}
	return append(args, rawOutputArgs(o.pixelFormat())...)
}

// packetDecodeArgs builds the ffmpeg command line for decoding an
// elementary stream read from stdin. The output is always scaled to the
// requested size so every frame has the length the reader expects.
func packetDecodeArgs(logLevel string, o PacketOptions) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", logLevel,
		"-f", string(o.codec()),
		"-i", "pipe:0",
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", o.Width, o.Height),
		"-fps_mode", "passthrough",
	}
	return append(args, rawOutputArgs(o.pixelFormat())...)
}

// probeArgs builds the ffprobe command line for JSON stream info.
func probeArgs(logLevel, input string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", logLevel,
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	}
}
