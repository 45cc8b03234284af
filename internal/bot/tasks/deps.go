// Package tasks implements the scheduled tasks of the civic reporting service.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/civicbot/internal/config"
	"github.com/edgard/civicbot/internal/monitor"
)

// Maintainer runs storage maintenance on the reports database.
type Maintainer interface {
	RunSQLMaintenance(ctx context.Context) error
}

// MonitorRunner performs one mention monitor pass.
type MonitorRunner interface {
	Run(ctx context.Context) (monitor.Result, error)
}

// LedgerCompactor drops expired processed-mention entries.
type LedgerCompactor interface {
	Compact(ctx context.Context) (int, error)
}

// TrackerCompactor rewrites the rate limit record without stale endpoints.
type TrackerCompactor interface {
	Compact(ctx context.Context) int
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   Maintainer
	Monitor MonitorRunner
	Ledger  LedgerCompactor
	Tracker TrackerCompactor
	Config  *config.Config
}
