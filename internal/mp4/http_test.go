package mp4

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newRangeServer(t *testing.T, data []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestRangeReader(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	srv, requests := newRangeServer(t, data)

	r, err := NewRangeReader(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewRangeReader() error = %v", err)
	}
	r.blockSize = 128

	if r.Size() != 1000 {
		t.Fatalf("Size() = %d, want 1000", r.Size())
	}

	buf := make([]byte, 300)
	n, err := r.ReadAt(buf, 100)
	if err != nil || n != 300 {
		t.Fatalf("ReadAt() = %d, %v", n, err)
	}
	if diff := cmp.Diff(data[100:400], buf); diff != "" {
		t.Errorf("ReadAt() mismatch (-want +got):\n%s", diff)
	}

	// Blocks 0 through 3 are cached now.
	before := requests.Load()
	if _, err := r.ReadAt(buf[:50], 200); err != nil {
		t.Fatalf("cached ReadAt() error = %v", err)
	}
	if got := requests.Load(); got != before {
		t.Errorf("cached read issued %d requests", got-before)
	}

	n, err = r.ReadAt(buf, 900)
	if n != 100 || !errors.Is(err, io.EOF) {
		t.Errorf("ReadAt() past end = %d, %v, want 100, io.EOF", n, err)
	}
}

func TestRangeReaderSeekAndRead(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	srv, _ := newRangeServer(t, data)

	r, err := NewRangeReader(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewRangeReader() error = %v", err)
	}
	r.blockSize = 8

	if _, err := r.Seek(-5, io.SeekEnd); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "fghij" {
		t.Errorf("ReadAll() = %q, want %q", got, "fghij")
	}

	if _, err := r.Seek(-1, io.SeekStart); err == nil {
		t.Error("Seek() to negative position error = nil, want error")
	}
}

func TestRangeReaderUsesConstructorContext(t *testing.T) {
	data := make([]byte, 256)
	srv, _ := newRangeServer(t, data)

	ctx, cancel := context.WithCancel(context.Background())
	r, err := NewRangeReader(ctx, srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewRangeReader() error = %v", err)
	}
	r.blockSize = 64

	buf := make([]byte, 16)
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}

	cancel()
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Errorf("cached ReadAt() after cancel error = %v", err)
	}
	if _, err := r.ReadAt(buf, 128); !errors.Is(err, context.Canceled) {
		t.Errorf("uncached ReadAt() after cancel error = %v, want context.Canceled", err)
	}
}

func TestRangeReaderUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("no ranges here"))
	}))
	defer srv.Close()

	_, err := NewRangeReader(context.Background(), srv.Client(), srv.URL)
	if !errors.Is(err, ErrRangeUnsupported) {
		t.Errorf("NewRangeReader() error = %v, want ErrRangeUnsupported", err)
	}
}

func TestParseContentRangeSize(t *testing.T) {
	tests := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{header: "bytes 0-0/1234", want: 1234},
		{header: "bytes 0-0/*", wantErr: true},
		{header: "bytes 0-0", wantErr: true},
		{header: "items 0-0/10", wantErr: true},
		{header: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseContentRangeSize(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseContentRangeSize(%q) = %d, %v", tt.header, got, err)
		}
	}
}

func TestWidenLengths(t *testing.T) {
	got, err := widenLengths([]byte{0x00, 0x02, 0x65, 0x01, 0x00, 0x01, 0x41}, 2)
	if err != nil {
		t.Fatalf("widenLengths() error = %v", err)
	}
	want := []byte{0, 0, 0, 2, 0x65, 0x01, 0, 0, 0, 1, 0x41}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("widenLengths() mismatch (-want +got):\n%s", diff)
	}

	if _, err := widenLengths([]byte{0x05, 0x65}, 1); err == nil {
		t.Error("widenLengths() of overlong unit error = nil, want error")
	}
}
