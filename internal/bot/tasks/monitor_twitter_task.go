package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/civicbot/internal/monitor"
)

// newMonitorTwitterTask creates the task running one mention monitor pass.
// Throttled, busy and unconfigured passes are not task failures.
func newMonitorTwitterTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "monitor_twitter")

	return func(ctx context.Context) error {
		res, err := deps.Monitor.Run(ctx)
		switch {
		case err == nil:
			log.InfoContext(ctx, "Monitor pass finished", "message", res.Message,
				"replies", res.Stats.RepliesSent, "failed", res.Stats.Failed)
			return nil
		case errors.Is(err, monitor.ErrBusy):
			log.InfoContext(ctx, "Monitor pass already running, skipping")
			return nil
		case errors.Is(err, monitor.ErrThrottled):
			log.WarnContext(ctx, "Monitor pass throttled", "message", res.Message, "wait_ms", res.WaitMs)
			return nil
		case errors.Is(err, monitor.ErrNotConfigured):
			log.WarnContext(ctx, "Monitor task enabled but Twitter is not configured")
			return nil
		default:
			return fmt.Errorf("monitor pass failed: %w", err)
		}
	}
}
