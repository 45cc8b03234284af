package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/bot/tasks"
	"github.com/edgard/civicbot/internal/config"
)

// Scheduler runs the registered tasks on their configured cron schedules.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc

	// base is handed to every task run and cancelled on Stop.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewScheduler creates a scheduler evaluating cron expressions in loc.
// A nil clock uses the real clock.
func NewScheduler(logger *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc, loc *time.Location, clock clockwork.Clock) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	opts := []gocron.SchedulerOption{gocron.WithLocation(loc)}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}

	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
		cfg:       cfg,
		taskMap:   taskMap,
		base:      base,
		cancel:    cancel,
	}, nil
}

// Start schedules every enabled task and starts ticking. Tasks that are
// unknown, disabled or have an invalid schedule are skipped with a log line.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return fmt.Errorf("scheduler is already running or stopped")
	}

	var names []string
	if s.cfg != nil {
		for name := range s.cfg.Tasks {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	scheduled := 0
	for _, taskName := range names {
		taskConfig := s.cfg.Tasks[taskName]
		if !taskConfig.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", taskName)
			continue
		}

		taskFunc, exists := s.taskMap[taskName]
		if !exists {
			s.logger.Warn("Task configured but not registered, skipping", "task_name", taskName)
			continue
		}
		if taskConfig.Schedule == "" {
			s.logger.Warn("Task enabled without a schedule, skipping", "task_name", taskName)
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(taskConfig.Schedule, true),
			gocron.NewTask(s.wrap(taskFunc), taskName),
			gocron.WithName(taskName),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Error("Failed to schedule task", "task_name", taskName, "schedule", taskConfig.Schedule, "error", err)
			continue
		}

		s.logger.Info("Scheduled task", "task_name", taskName, "schedule", taskConfig.Schedule)
		scheduled++
	}

	if scheduled == 0 {
		s.logger.Warn("No scheduler tasks enabled")
	}
	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "tasks_scheduled", scheduled)
	return nil
}

func (s *Scheduler) wrap(taskFunc tasks.ScheduledTaskFunc) func(string) {
	return func(name string) {
		s.logger.Info("Running scheduled task", "task_name", name)
		startTime := time.Now()
		if err := taskFunc(s.base); err != nil {
			s.logger.Error("Scheduled task failed", "task_name", name, "error", err)
		}
		s.logger.Info("Finished scheduled task", "task_name", name, "duration", time.Since(startTime))
	}
}

// JobNames returns the names of the scheduled jobs, sorted.
func (s *Scheduler) JobNames() []string {
	var names []string
	for _, j := range s.scheduler.Jobs() {
		names = append(names, j.Name())
	}
	sort.Strings(names)
	return names
}

// Stop cancels running tasks and waits for them to return. It is safe to call
// more than once and before Start.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.running = false

	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
		return err
	}
	s.logger.Info("Scheduler stopped")
	return nil
}
