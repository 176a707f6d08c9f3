package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

// Every calls fn each time cron fires until ctx is done, and then returns
// ctx.Err(). Runs never overlap; fire times that pass while fn is running
// are skipped.
func Every(ctx context.Context, cron string, fn func(ctx context.Context)) error {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return fmt.Errorf("cron expression %q has no future run times", cron)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		fn(ctx)
	}
}
