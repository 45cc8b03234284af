// Package usage enforces the daily cap on AI classification calls.
package usage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/statefile"
)

// StateKey is the bookkeeping record the limiter persists under.
const StateKey = "ai-usage"

const dateLayout = "2006-01-02"

// Record is the persisted usage counter for one calendar day.
type Record struct {
	Date       string    `json:"date"`
	Count      int       `json:"count"`
	DailyLimit int       `json:"dailyLimit"`
	ResetAt    time.Time `json:"resetAt"`
}

// Stats is a point-in-time view of the counter.
type Stats struct {
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"resetAt"`
	CanUseAI  bool      `json:"canUseAI"`
}

// Limiter tracks successful AI calls per local calendar day against a limit.
// A record from a previous day is replaced by a fresh one the first time it is read.
type Limiter struct {
	store statefile.Store
	clock clockwork.Clock
	loc   *time.Location
	log   *slog.Logger

	mu    sync.Mutex
	limit int
}

// NewLimiter creates a Limiter. A nil clock uses the real clock and a nil loc uses time.Local.
func NewLimiter(store statefile.Store, limit int, loc *time.Location, clock clockwork.Clock, log *slog.Logger) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Limiter{
		store: store,
		clock: clock,
		loc:   loc,
		log:   log.With("component", "usage_limiter"),
		limit: limit,
	}
}

func (l *Limiter) fresh(now time.Time) Record {
	local := now.In(l.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
	return Record{
		Date:       local.Format(dateLayout),
		Count:      0,
		DailyLimit: l.limit,
		ResetAt:    midnight.AddDate(0, 0, 1),
	}
}

// current loads today's record, replacing stale or unreadable state with a fresh one.
// Callers must hold l.mu.
func (l *Limiter) current(ctx context.Context) Record {
	now := l.clock.Now()
	today := now.In(l.loc).Format(dateLayout)

	var rec Record
	err := l.store.Load(ctx, StateKey, &rec)
	switch {
	case errors.Is(err, statefile.ErrNotFound):
		return l.fresh(now)
	case err != nil:
		l.log.WarnContext(ctx, "Usage record unreadable, starting fresh", "error", err)
		return l.fresh(now)
	}

	if rec.Date != today {
		l.log.InfoContext(ctx, "New day, resetting AI usage", "previous_date", rec.Date, "previous_count", rec.Count)
		rec = l.fresh(now)
		if err := l.store.Save(ctx, StateKey, rec); err != nil {
			l.log.WarnContext(ctx, "Failed to persist usage reset", "error", err)
		}
	}
	return rec
}

// CanUseAI reports whether another AI call is allowed today.
func (l *Limiter) CanUseAI(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.current(ctx)
	return rec.Count < rec.DailyLimit
}

// RecordUsage counts one AI call against today. It keeps counting past the limit.
func (l *Limiter) RecordUsage(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.current(ctx)
	rec.Count++
	if err := l.store.Save(ctx, StateKey, rec); err != nil {
		return fmt.Errorf("failed to record AI usage: %w", err)
	}
	l.log.DebugContext(ctx, "AI usage recorded", "used", rec.Count, "limit", rec.DailyLimit)
	return nil
}

// Stats returns the current usage snapshot.
func (l *Limiter) Stats(ctx context.Context) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.current(ctx)
	return Stats{
		Used:      rec.Count,
		Remaining: max(0, rec.DailyLimit-rec.Count),
		Limit:     rec.DailyLimit,
		ResetAt:   rec.ResetAt,
		CanUseAI:  rec.Count < rec.DailyLimit,
	}
}

// Reset zeroes today's counter.
func (l *Limiter) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.fresh(l.clock.Now())
	if err := l.store.Save(ctx, StateKey, rec); err != nil {
		return fmt.Errorf("failed to reset AI usage: %w", err)
	}
	l.log.InfoContext(ctx, "AI usage reset")
	return nil
}

// UpdateLimit changes the daily limit for today and for subsequent days.
// A limit of 0 switches AI off.
func (l *Limiter) UpdateLimit(ctx context.Context, limit int) error {
	if limit < 0 {
		return fmt.Errorf("daily limit must not be negative, got %d", limit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.limit = limit
	rec := l.current(ctx)
	rec.DailyLimit = limit
	if err := l.store.Save(ctx, StateKey, rec); err != nil {
		return fmt.Errorf("failed to update AI daily limit: %w", err)
	}
	l.log.InfoContext(ctx, "AI daily limit updated", "limit", limit)
	return nil
}
