package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/glizzus/framegrab/internal/datalayer"
	"github.com/glizzus/framegrab/internal/extract"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/glizzus/framegrab/internal/repository"
)

var ErrFrameOutOfRange = errors.New("frame index out of range")

// FetchFrame copies frame index of a finished extraction from storage to w.
func FetchFrame(ctx context.Context, storage datalayer.BlobStorage, e repository.Extraction, index int, w io.Writer) error {
	if e.Status != repository.StatusDone {
		return fmt.Errorf("extraction %s is %s, not done", e.ID, e.Status)
	}
	if index < 0 || index >= e.FrameCount {
		return fmt.Errorf("%w: %d of %d frames", ErrFrameOutOfRange, index, e.FrameCount)
	}
	format, err := frame.ParseImageFormat(e.Format)
	if err != nil {
		return err
	}

	key := extract.FrameName(e.OutputPrefix, index, format)
	rc, err := storage.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("failed to copy %s: %w", key, err)
	}
	return nil
}
