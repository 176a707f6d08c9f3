package worker

import (
	"context"
	"fmt"
	"log/slog"
)

type JobProcessor interface {
	Process(ctx context.Context, job ExtractionJob) error
}

var _ JobProcessor = (*Processor)(nil)

// Run receives jobs from queue and processes them one at a time until ctx
// is done. Every delivered job is acknowledged after processing, whether
// it succeeded or not.
func Run(ctx context.Context, queue JobQueue, processor JobProcessor) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to receive jobs: %w", err)
		}

		for _, d := range deliveries {
			if err := processor.Process(ctx, d.Job); err != nil {
				slog.Error("job finished with error", "jobID", d.Job.ID, "messageID", d.MessageID, "error", err)
			}
			if err := queue.Ack(context.WithoutCancel(ctx), d.MessageID); err != nil {
				return err
			}
		}
	}
}
