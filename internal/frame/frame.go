package frame

import (
	"fmt"
	"image"
	"strings"
)

// PixelFormat is a packed, 8 bits per channel pixel layout.
type PixelFormat int

const (
	RGB24 PixelFormat = iota + 1
	BGR24
	RGBA
)

// ParsePixelFormat accepts the FFmpeg names of the supported formats.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgb24", "rgb":
		return RGB24, nil
	case "bgr24", "bgr":
		return BGR24, nil
	case "rgba":
		return RGBA, nil
	}
	return 0, fmt.Errorf("unsupported pixel format %q", s)
}

// String returns the FFmpeg pix_fmt name.
func (p PixelFormat) String() string {
	switch p {
	case RGB24:
		return "rgb24"
	case BGR24:
		return "bgr24"
	case RGBA:
		return "rgba"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(p))
}

func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case RGB24, BGR24:
		return 3
	case RGBA:
		return 4
	}
	return 0
}

// FrameSize is the byte length of a width x height frame in format p.
func (p PixelFormat) FrameSize(width, height int) int {
	return width * height * p.BytesPerPixel()
}

// Frame is one decoded picture. Pix holds Height rows of Stride() bytes
// with no padding between rows.
type Frame struct {
	// Index is the 0-based position of the frame in decode output order.
	Index  int
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// New allocates a zeroed frame.
func New(width, height int, format PixelFormat) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Format: format,
		Pix:    make([]byte, format.FrameSize(width, height)),
	}
}

func (f *Frame) Stride() int {
	return f.Width * f.Format.BytesPerPixel()
}

// Validate reports whether Pix matches the frame geometry.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if f.Format.BytesPerPixel() == 0 {
		return fmt.Errorf("invalid pixel format %s", f.Format)
	}
	if want := f.Format.FrameSize(f.Width, f.Height); len(f.Pix) != want {
		return fmt.Errorf("frame buffer is %d bytes, want %d for %dx%d %s", len(f.Pix), want, f.Width, f.Height, f.Format)
	}
	return nil
}

// Convert returns a copy of f in format to. Alpha is set opaque when
// converting into RGBA and dropped when converting out of it. f must be
// valid and to a supported format.
func (f *Frame) Convert(to PixelFormat) (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if to.BytesPerPixel() == 0 {
		return nil, fmt.Errorf("invalid pixel format %s", to)
	}

	out := New(f.Width, f.Height, to)
	out.Index = f.Index
	if to == f.Format {
		copy(out.Pix, f.Pix)
		return out, nil
	}

	srcBPP := f.Format.BytesPerPixel()
	dstBPP := to.BytesPerPixel()
	for si, di := 0, 0; si+srcBPP <= len(f.Pix); si, di = si+srcBPP, di+dstBPP {
		r, g, b := f.Pix[si], f.Pix[si+1], f.Pix[si+2]
		if f.Format == BGR24 {
			r, b = b, r
		}
		switch to {
		case BGR24:
			out.Pix[di], out.Pix[di+1], out.Pix[di+2] = b, g, r
		case RGBA:
			out.Pix[di], out.Pix[di+1], out.Pix[di+2], out.Pix[di+3] = r, g, b, 0xff
		default:
			out.Pix[di], out.Pix[di+1], out.Pix[di+2] = r, g, b
		}
	}
	return out, nil
}

// ToRGBA copies the frame into an *image.RGBA for use with the image packages.
func (f *Frame) ToRGBA() (*image.RGBA, error) {
	rgba, err := f.Convert(RGBA)
	if err != nil {
		return nil, err
	}
	return &image.RGBA{
		Pix:    rgba.Pix,
		Stride: rgba.Stride(),
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}, nil
}
