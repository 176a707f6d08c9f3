package frame_test

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/glizzus/framegrab/internal/frame"
	"github.com/google/go-cmp/cmp"
)

func TestEncodePPM(t *testing.T) {
	var buf bytes.Buffer
	src, err := twoPixels().Convert(frame.BGR24)
	if err != nil {
		t.Fatal(err)
	}
	if err := frame.Encode(&buf, src, frame.PPM); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	want := append([]byte("P6\n2 1\n255\n"), 0xff, 0, 0, 0, 0, 0xff)
	if diff := cmp.Diff(want, buf.Bytes()); diff != "" {
		t.Errorf("PPM output mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := frame.Encode(&buf, twoPixels(), frame.PNG); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	r, _, b, a := img.At(1, 0).RGBA()
	if r != 0 || b != 0xffff || a != 0xffff {
		t.Errorf("pixel (1,0) = r:%d b:%d a:%d, want blue", r, b, a)
	}
}

func TestEncodeRejectsMalformedFrame(t *testing.T) {
	var buf bytes.Buffer
	bad := &frame.Frame{Width: 4, Height: 4, Format: frame.RGB24, Pix: []byte{0}}
	if err := frame.Encode(&buf, bad, frame.PNG); err == nil {
		t.Fatal("Encode accepted a frame with a short buffer")
	}
	if buf.Len() != 0 {
		t.Errorf("Encode wrote %d bytes for a rejected frame", buf.Len())
	}
}

func TestParseImageFormat(t *testing.T) {
	tests := []struct {
		in       string
		want     frame.ImageFormat
		wantExt  string
		wantType string
	}{
		{in: "ppm", want: frame.PPM, wantExt: "ppm", wantType: "image/x-portable-pixmap"},
		{in: ".PNG", want: frame.PNG, wantExt: "png", wantType: "image/png"},
		{in: "jpg", want: frame.JPEG, wantExt: "jpg", wantType: "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := frame.ParseImageFormat(tt.in)
			if err != nil {
				t.Fatalf("ParseImageFormat(%q) returned error: %v", tt.in, err)
			}
			if got != tt.want || got.Extension() != tt.wantExt || got.ContentType() != tt.wantType {
				t.Errorf("ParseImageFormat(%q) = %q (%s, %s), want %q (%s, %s)",
					tt.in, got, got.Extension(), got.ContentType(), tt.want, tt.wantExt, tt.wantType)
			}
		})
	}

	if _, err := frame.ParseImageFormat("gif"); err == nil {
		t.Error("ParseImageFormat(\"gif\") should fail")
	}
}
