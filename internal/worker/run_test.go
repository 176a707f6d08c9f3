package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/glizzus/framegrab/internal/worker"
	"github.com/google/go-cmp/cmp"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (p *recordingProcessor) Process(_ context.Context, job worker.ExtractionJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, job.ID)
	if p.fail[job.ID] {
		return errBoom
	}
	return nil
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	queue := &fakeQueue{
		pending: []worker.Delivery{
			{MessageID: "1-0", Job: worker.ExtractionJob{ID: "a"}},
			{MessageID: "2-0", Job: worker.ExtractionJob{ID: "b"}},
			{MessageID: "3-0", Job: worker.ExtractionJob{ID: "c"}},
		},
		onEmpty: cancel,
	}
	processor := &recordingProcessor{fail: map[string]bool{"b": true}}

	err := worker.Run(ctx, queue, processor)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, processor.seen); diff != "" {
		t.Errorf("processed jobs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1-0", "2-0", "3-0"}, queue.acked); diff != "" {
		t.Errorf("acked messages mismatch (-want +got):\n%s", diff)
	}
}
