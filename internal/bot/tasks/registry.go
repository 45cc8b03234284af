package tasks

import (
	"context"
)

// ScheduledTaskFunc defines the signature for all scheduled tasks.
// The context is cancelled when the scheduler stops.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns every registered task keyed by the name used in the
// scheduler configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	tasks["sql_maintenance"] = newSQLMaintenanceTask(deps)
	tasks["monitor_twitter"] = newMonitorTwitterTask(deps)
	tasks["state_compaction"] = newStateCompactionTask(deps)

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
