package tasks

import (
	"context"
	"fmt"
	"time"
)

// newSQLMaintenanceTask creates the task running PRAGMA optimize and VACUUM on the reports database.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		startTime := time.Now()

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "SQL maintenance failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "SQL maintenance completed", "duration", time.Since(startTime))
		return nil
	}
}
