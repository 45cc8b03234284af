package tasks

import (
	"context"
	"fmt"
)

// newStateCompactionTask creates the task pruning the processed-mention ledger
// and rewriting the rate limit record.
func newStateCompactionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "state_compaction")

	return func(ctx context.Context) error {
		pruned, err := deps.Ledger.Compact(ctx)
		if err != nil {
			return fmt.Errorf("ledger compaction failed: %w", err)
		}
		stale := deps.Tracker.Compact(ctx)

		log.InfoContext(ctx, "Bookkeeping state compacted", "ledger_pruned", pruned, "stale_endpoints", stale)
		return nil
	}
}
