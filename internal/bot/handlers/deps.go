package handlers

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/budget"
	"github.com/edgard/civicbot/internal/config"
	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/health"
	"github.com/edgard/civicbot/internal/monitor"
	"github.com/edgard/civicbot/internal/photo"
	"github.com/edgard/civicbot/internal/pipeline"
	"github.com/edgard/civicbot/internal/ratelimit"
	"github.com/edgard/civicbot/internal/usage"
)

// Pipeline runs the per-report steps.
type Pipeline interface {
	Classify(ctx context.Context, id string) (pipeline.ClassifyResult, error)
	Notify(ctx context.Context, id string) (pipeline.NotifyResult, error)
	Tweet(ctx context.Context, id string) (pipeline.TweetResult, error)
}

// UsageAdmin exposes and adjusts the daily AI counter.
type UsageAdmin interface {
	Stats(ctx context.Context) usage.Stats
	Reset(ctx context.Context) error
	UpdateLimit(ctx context.Context, limit int) error
}

// RateLimits reports the provider call windows.
type RateLimits interface {
	Snapshot(ctx context.Context) map[ratelimit.Endpoint]ratelimit.Snapshot
}

// MonitorRunner performs one mention monitor pass.
type MonitorRunner interface {
	Run(ctx context.Context) (monitor.Result, error)
}

// BudgetFinder searches the transparency budget lines.
type BudgetFinder interface {
	Find(q budget.Query) budget.Result
}

// HealthChecker probes the service dependencies.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// HandlerDeps provides dependencies for the HTTP API handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    database.Store
	Photos   photo.Store
	Pipeline Pipeline
	Usage    UsageAdmin
	Tracker  RateLimits
	Monitor  MonitorRunner
	Budgets  BudgetFinder
	Health   HealthChecker
	Clock    clockwork.Clock
}
