package ffmpeg

import (
	"errors"
	"fmt"
	"io"

	"github.com/glizzus/framegrab/internal/frame"
)

// FrameReader reads headerless raw frames of a fixed geometry from an io.Reader.
type FrameReader struct {
	r      io.Reader
	width  int
	height int
	format frame.PixelFormat
	next   int
}

// NewFrameReader returns a FrameReader for width x height frames in format.
func NewFrameReader(r io.Reader, width, height int, format frame.PixelFormat) *FrameReader {
	return &FrameReader{r: r, width: width, height: height, format: format}
}

// ReadFrame reads and returns the next frame, numbering frames from 0.
// Returns io.EOF when the stream ends on a frame boundary.
func (f *FrameReader) ReadFrame() (*frame.Frame, error) {
	fr := frame.New(f.width, f.height, f.format)
	if _, err := io.ReadFull(f.r, fr.Pix); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("frame %d is truncated: %w", f.next, err)
		}
		return nil, err
	}
	fr.Index = f.next
	f.next++
	return fr, nil
}
