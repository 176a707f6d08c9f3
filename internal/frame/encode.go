package frame

import (
	"bufio"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
)

// ImageFormat is a still-image container frames can be written as.
type ImageFormat string

const (
	PPM  ImageFormat = "ppm"
	PNG  ImageFormat = "png"
	JPEG ImageFormat = "jpeg"
)

func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "ppm":
		return PPM, nil
	case "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	}
	return "", fmt.Errorf("unsupported image format %q", s)
}

func (f ImageFormat) Extension() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

func (f ImageFormat) ContentType() string {
	switch f {
	case PPM:
		return "image/x-portable-pixmap"
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	}
	return "application/octet-stream"
}

// JPEGQuality is used for every JPEG written by Encode.
const JPEGQuality = 90

// Encode writes fr to w as an image of the given format.
func Encode(w io.Writer, fr *Frame, format ImageFormat) error {
	if err := fr.Validate(); err != nil {
		return err
	}
	switch format {
	case PPM:
		return writePPM(w, fr)
	case PNG, JPEG:
		img, err := fr.ToRGBA()
		if err != nil {
			return err
		}
		if format == PNG {
			return png.Encode(w, img)
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	}
	return fmt.Errorf("unsupported image format %q", format)
}

// writePPM writes a binary (P6) portable pixmap with maxval 255.
func writePPM(w io.Writer, fr *Frame) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P6\n%d %d\n255\n", fr.Width, fr.Height); err != nil {
		return err
	}

	pix := fr.Pix
	if fr.Format != RGB24 {
		rgb, err := fr.Convert(RGB24)
		if err != nil {
			return err
		}
		pix = rgb.Pix
	}
	if _, err := bw.Write(pix); err != nil {
		return err
	}
	return bw.Flush()
}
