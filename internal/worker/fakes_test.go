package worker_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/glizzus/framegrab/internal/datalayer"
	"github.com/glizzus/framegrab/internal/ffmpeg"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/glizzus/framegrab/internal/repository"
	"github.com/glizzus/framegrab/internal/worker"
)

type memStorage struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (s *memStorage) Put(_ context.Context, key string, data io.Reader, opts datalayer.PutOptions) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	s.contentTypes[key] = opts.ContentType
	return nil
}

func (s *memStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memStorage) FGet(ctx context.Context, key, path string) error {
	r, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	b, _ := io.ReadAll(r)
	return os.WriteFile(path, b, 0o644)
}

func (s *memStorage) RemovePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
			n++
		}
	}
	return n, nil
}

func (s *memStorage) keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

var _ datalayer.BlobStorage = (*memStorage)(nil)

type memRepository struct {
	mu      sync.Mutex
	records map[string]repository.Extraction
}

func newMemRepository(records ...repository.Extraction) *memRepository {
	r := &memRepository{records: make(map[string]repository.Extraction)}
	for _, e := range records {
		r.records[e.ID] = e
	}
	return r
}

func (r *memRepository) Save(_ context.Context, e repository.Extraction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Status == "" {
		e.Status = repository.StatusQueued
	}
	r.records[e.ID] = e
	return nil
}

func (r *memRepository) Get(_ context.Context, id string) (*repository.Extraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[id]
	if !ok {
		return nil, repository.ErrExtractionNotFound
	}
	return &e, nil
}

func (r *memRepository) modify(id string, fn func(*repository.Extraction)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[id]
	if !ok {
		return repository.ErrExtractionNotFound
	}
	fn(&e)
	r.records[id] = e
	return nil
}

func (r *memRepository) MarkRunning(_ context.Context, id string) error {
	return r.modify(id, func(e *repository.Extraction) {
		now := time.Now()
		e.Status = repository.StatusRunning
		e.StartedAt = &now
	})
}

func (r *memRepository) MarkDone(_ context.Context, id string, s repository.StreamSummary) error {
	return r.modify(id, func(e *repository.Extraction) {
		now := time.Now()
		e.Status = repository.StatusDone
		e.FrameCount, e.Width, e.Height, e.Codec = s.FrameCount, s.Width, s.Height, s.Codec
		e.FinishedAt = &now
	})
}

func (r *memRepository) MarkFailed(_ context.Context, id string, reason string) error {
	return r.modify(id, func(e *repository.Extraction) {
		now := time.Now()
		e.Status = repository.StatusFailed
		e.Error = reason
		e.FinishedAt = &now
	})
}

func (r *memRepository) ListFinishedBefore(_ context.Context, before time.Time) ([]repository.Extraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Extraction
	for _, e := range r.records {
		if e.Status.Finished() && e.FinishedAt != nil && e.FinishedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return repository.ErrExtractionNotFound
	}
	delete(r.records, id)
	return nil
}

var _ repository.ExtractionRepository = (*memRepository)(nil)

type fakeOpener struct {
	frames  int
	openErr error
	gotOpts ffmpeg.DecodeOptions
}

func (o *fakeOpener) OpenVideo(_ context.Context, input string, opts ffmpeg.DecodeOptions) (ffmpeg.FrameSource, error) {
	o.gotOpts = opts
	if o.openErr != nil {
		return nil, o.openErr
	}
	if _, err := os.Stat(input); err != nil {
		return nil, err
	}
	return &fakeSource{total: o.frames}, nil
}

type fakeSource struct {
	total int
	next  int
}

func (s *fakeSource) Next() (*frame.Frame, error) {
	if s.next == s.total {
		return nil, io.EOF
	}
	fr := frame.New(4, 2, frame.RGB24)
	fr.Index = s.next
	s.next++
	return fr, nil
}

func (s *fakeSource) Info() ffmpeg.StreamInfo {
	return ffmpeg.StreamInfo{
		Stream: ffmpeg.Stream{Index: 0, MediaType: ffmpeg.MediaTypeVideo, Codec: "h264"},
		Width:  4,
		Height: 2,
		Format: frame.RGB24,
	}
}

func (s *fakeSource) Close() error { return nil }

type fakeQueue struct {
	mu        sync.Mutex
	submitted []worker.ExtractionJob
	pending   []worker.Delivery
	acked     []string
	onEmpty   func()
}

func (q *fakeQueue) Submit(_ context.Context, jobs ...worker.ExtractionJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = append(q.submitted, jobs...)
	return nil
}

func (q *fakeQueue) Receive(context.Context) ([]worker.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		if q.onEmpty != nil {
			q.onEmpty()
		}
		return nil, nil
	}
	d := q.pending[:1]
	q.pending = q.pending[1:]
	return d, nil
}

func (q *fakeQueue) Ack(_ context.Context, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, ids...)
	return nil
}

var _ worker.JobQueue = (*fakeQueue)(nil)

var errBoom = errors.New("boom")
