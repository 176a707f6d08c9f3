package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glizzus/framegrab/internal/util"
)

// ErrNoVideoStream is returned when a container has no decodable video stream.
var ErrNoVideoStream = errors.New("no video stream found")

const (
	MediaTypeVideo = "video"
	MediaTypeAudio = "audio"
)

// Stream describes one elementary stream of a container.
type Stream struct {
	// Index is the stream index within the container.
	Index       int
	MediaType   string
	Codec       string
	Width       int
	Height      int
	PixelFormat string
	FrameRate   float64
	Duration    time.Duration
	FrameCount  int

	// AttachedPicture marks cover art, which ffprobe reports as video.
	AttachedPicture bool
}

func (s Stream) IsVideo() bool {
	return s.MediaType == MediaTypeVideo && !s.AttachedPicture
}

// Container describes a probed media file.
type Container struct {
	Format   string
	Duration time.Duration
	BitRate  int64
	Streams  []Stream
}

// VideoStreams returns the decodable video streams in container order.
func (c *Container) VideoStreams() []Stream {
	var streams []Stream
	for _, s := range c.Streams {
		if s.IsVideo() {
			streams = append(streams, s)
		}
	}
	return streams
}

// FirstVideoStream returns the first decodable video stream.
func (c *Container) FirstVideoStream() (Stream, error) {
	s, ok := util.FindFirst(c.Streams, Stream.IsVideo)
	if !ok {
		return Stream{}, ErrNoVideoStream
	}
	return s, nil
}

// VideoDuration returns the duration of s, falling back to the container's.
func (c *Container) VideoDuration(s Stream) time.Duration {
	if s.Duration > 0 {
		return s.Duration
	}
	return c.Duration
}

type probeOutput struct {
	Streams []struct {
		Index        int    `json:"index"`
		CodecName    string `json:"codec_name"`
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		PixFmt       string `json:"pix_fmt"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
		NbFrames     string `json:"nb_frames"`
		Disposition  struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// parseProbeOutput converts ffprobe's JSON into a Container. Numeric fields
// that ffprobe reports as "N/A" or omits are left zero.
func parseProbeOutput(data []byte) (*Container, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	c := &Container{
		Format:   out.Format.FormatName,
		Duration: parseSeconds(out.Format.Duration),
		BitRate:  parseInt64(out.Format.BitRate),
		Streams:  make([]Stream, 0, len(out.Streams)),
	}
	for _, s := range out.Streams {
		rate := parseRational(s.AvgFrameRate)
		if rate == 0 {
			rate = parseRational(s.RFrameRate)
		}
		c.Streams = append(c.Streams, Stream{
			Index:           s.Index,
			MediaType:       s.CodecType,
			Codec:           s.CodecName,
			Width:           s.Width,
			Height:          s.Height,
			PixelFormat:     s.PixFmt,
			FrameRate:       rate,
			Duration:        parseSeconds(s.Duration),
			FrameCount:      int(parseInt64(s.NbFrames)),
			AttachedPicture: s.Disposition.AttachedPic == 1,
		})
	}
	return c, nil
}

func parseSeconds(s string) time.Duration {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseRational parses "num/den" rates such as "30000/1001".
func parseRational(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Probe runs ffprobe on input and describes its container and streams.
func (r *Runner) Probe(ctx context.Context, input string) (*Container, error) {
	data, err := output(ctx, r.ffprobePath, probeArgs(r.logLevel, input))
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", input, err)
	}
	return parseProbeOutput(data)
}
