package mp4

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// ErrRangeUnsupported is returned when a server ignores Range requests.
var ErrRangeUnsupported = errors.New("mp4: server does not support range requests")

// HTTPClient is an abstraction for making HTTP requests.
// The implementation is usually Go's stdlib http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	DefaultBlockSize = 64 << 10
	defaultMaxBlocks = 64
)

// RangeReader reads a remote file with HTTP Range requests. Reads are
// served from fixed-size blocks, and recently used blocks are kept in
// memory.
//
// io.ReaderAt has no context parameter, so every request is bound to the
// context given to NewRangeReader.
type RangeReader struct {
	ctx       context.Context
	client    HTTPClient
	url       string
	size      int64
	blockSize int64
	maxBlocks int

	mu     sync.Mutex
	blocks map[int64][]byte
	order  []int64
	offset int64
}

var (
	_ io.ReadSeeker = (*RangeReader)(nil)
	_ io.ReaderAt   = (*RangeReader)(nil)
)

// NewRangeReader learns the size of the file at url.
//
// ctx bounds the whole lifetime of the reader, not just this call: every
// later Read, ReadAt or Seek that misses the block cache issues a request
// with ctx, and fails once ctx is done. Pass a context that outlives all
// use of the reader, such as the command's context, rather than one with a
// short timeout for the size lookup.
func NewRangeReader(ctx context.Context, client HTTPClient, url string) (*RangeReader, error) {
	r := &RangeReader{
		ctx:       ctx,
		client:    client,
		url:       url,
		blockSize: DefaultBlockSize,
		maxBlocks: defaultMaxBlocks,
		blocks:    make(map[int64][]byte),
	}

	resp, err := r.get(0, 0)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	size, err := parseContentRangeSize(resp.Header.Get("Content-Range"))
	if err != nil {
		return nil, err
	}
	r.size = size
	slog.Debug("opened remote file", "url", url, "size", size)
	return r, nil
}

// Size is the length of the remote file.
func (r *RangeReader) Size() int64 {
	return r.size
}

// get requests bytes [start, end] and checks for a partial response.
func (r *RangeReader) get(start, end int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp, nil
	case http.StatusOK:
		resp.Body.Close()
		return nil, ErrRangeUnsupported
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch range %d-%d: %s", start, end, resp.Status)
	}
}

// parseContentRangeSize reads the complete length from "bytes a-b/size".
func parseContentRangeSize(header string) (int64, error) {
	_, total, ok := strings.Cut(header, "/")
	if !ok || !strings.HasPrefix(header, "bytes ") {
		return 0, fmt.Errorf("malformed Content-Range %q", header)
	}
	if total == "*" {
		return 0, fmt.Errorf("server did not report the file size: %w", ErrRangeUnsupported)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", header)
	}
	return size, nil
}

// block returns block i, fetching it if needed. r.mu must be held.
func (r *RangeReader) block(i int64) ([]byte, error) {
	if b, ok := r.blocks[i]; ok {
		return b, nil
	}

	start := i * r.blockSize
	end := min(start+r.blockSize, r.size) - 1
	resp, err := r.get(start, end)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	want := end - start + 1
	b, err := io.ReadAll(io.LimitReader(resp.Body, want))
	if err != nil {
		return nil, fmt.Errorf("failed to read range %d-%d: %w", start, end, err)
	}
	if int64(len(b)) != want {
		return nil, fmt.Errorf("range %d-%d returned %d bytes: %w", start, end, len(b), io.ErrUnexpectedEOF)
	}

	if len(r.order) >= r.maxBlocks {
		delete(r.blocks, r.order[0])
		r.order = r.order[1:]
	}
	r.blocks[i] = b
	r.order = append(r.order, i)
	return b, nil
}

// ReadAt implements io.ReaderAt.
func (r *RangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("mp4: negative offset")
	}
	if off >= r.size {
		return 0, io.EOF
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for n < len(p) && off < r.size {
		b, err := r.block(off / r.blockSize)
		if err != nil {
			return n, err
		}
		copied := copy(p[n:], b[off%r.blockSize:])
		n += copied
		off += int64(copied)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Read implements io.Reader.
func (r *RangeReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	off := r.offset
	r.mu.Unlock()

	n, err := r.ReadAt(p, off)

	r.mu.Lock()
	r.offset = off + int64(n)
	r.mu.Unlock()

	if n > 0 && errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// Seek implements io.Seeker.
func (r *RangeReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("mp4: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("mp4: negative position")
	}
	r.offset = abs
	return abs, nil
}
