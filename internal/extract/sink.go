package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/glizzus/framegrab/internal/datalayer"
	"github.com/glizzus/framegrab/internal/frame"
)

// FileSink writes frames to the local filesystem, treating names as paths.
// Missing parent directories are created.
type FileSink struct {
	mu   sync.Mutex
	dirs map[string]bool
}

var _ Sink = (*FileSink)(nil)

func NewFileSink() *FileSink {
	return &FileSink{dirs: make(map[string]bool)}
}

func (s *FileSink) ensureDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirs[dir] {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	s.dirs[dir] = true
	return nil
}

func (s *FileSink) Write(_ context.Context, name string, data []byte, _ frame.ImageFormat) error {
	if err := s.ensureDir(filepath.Dir(name)); err != nil {
		return err
	}
	return os.WriteFile(name, data, 0o644)
}

// BlobSink uploads frames to blob storage, treating names as keys.
type BlobSink struct {
	storage datalayer.BlobStorage
}

var _ Sink = (*BlobSink)(nil)

func NewBlobSink(storage datalayer.BlobStorage) *BlobSink {
	return &BlobSink{storage: storage}
}

func (s *BlobSink) Write(ctx context.Context, name string, data []byte, format frame.ImageFormat) error {
	return s.storage.Put(ctx, name, bytes.NewReader(data), datalayer.PutOptions{
		Size:        int64(len(data)),
		ContentType: format.ContentType(),
	})
}
