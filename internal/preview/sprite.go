package preview

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/glizzus/framegrab/internal/ffmpeg"
	"github.com/glizzus/framegrab/internal/frame"
)

// Layout is the tile grid of a sprite.
type Layout struct {
	Columns    int
	Rows       int
	TileWidth  int
	TileHeight int
}

// DefaultLayout is 5 columns by 6 rows of 320x240 tiles.
var DefaultLayout = Layout{Columns: 5, Rows: 6, TileWidth: 320, TileHeight: 240}

func (l Layout) Tiles() int {
	return l.Columns * l.Rows
}

func (l Layout) Validate() error {
	if l.Columns < 1 || l.Rows < 1 || l.TileWidth < 1 || l.TileHeight < 1 {
		return fmt.Errorf("invalid sprite layout %dx%d of %dx%d tiles", l.Columns, l.Rows, l.TileWidth, l.TileHeight)
	}
	return nil
}

// Sprite samples Tiles() frames evenly across the first video stream of
// input and packs them row-major into one RGB24 frame.
func (p *Previewer) Sprite(ctx context.Context, input string, layout Layout) (*frame.Frame, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	container, err := p.decoder.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	stream, err := container.FirstVideoStream()
	if err != nil {
		return nil, err
	}

	var fps float64
	if d := container.VideoDuration(stream); d > 0 {
		fps = float64(layout.Tiles()) / d.Seconds()
	}

	src, err := p.decoder.OpenVideo(ctx, input, ffmpeg.DecodeOptions{
		FPS:         fps,
		MaxFrames:   layout.Tiles(),
		Width:       layout.TileWidth,
		Height:      layout.TileHeight,
		PixelFormat: frame.RGB24,
	})
	if err != nil {
		return nil, err
	}
	defer src.Close()

	tiles := make([]*frame.Frame, 0, layout.Tiles())
	for len(tiles) < layout.Tiles() {
		fr, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode sprite tile %d: %w", len(tiles), err)
		}
		tiles = append(tiles, fr)
	}
	if len(tiles) == 0 {
		return nil, ErrNoFrame
	}

	return Compose(layout, tiles)
}

// Compose places tiles row-major on a black RGB24 canvas. Tiles beyond the
// grid are ignored and tiles larger than a cell are clipped.
func Compose(layout Layout, tiles []*frame.Frame) (*frame.Frame, error) {
	canvas := frame.New(layout.Columns*layout.TileWidth, layout.Rows*layout.TileHeight, frame.RGB24)
	stride := canvas.Stride()

	for i, t := range tiles {
		if i >= layout.Tiles() {
			break
		}
		tile, err := t.Convert(frame.RGB24)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", i, err)
		}

		x0 := (i % layout.Columns) * layout.TileWidth
		y0 := (i / layout.Columns) * layout.TileHeight
		w := min(tile.Width, layout.TileWidth)
		h := min(tile.Height, layout.TileHeight)
		for y := 0; y < h; y++ {
			dst := canvas.Pix[(y0+y)*stride+x0*3:]
			src := tile.Pix[y*tile.Stride():]
			copy(dst[:w*3], src[:w*3])
		}
	}
	return canvas, nil
}
