// Package ratelimit tracks per-endpoint call windows for provider APIs so
// callers can stay inside published limits before the provider rejects them.
package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/statefile"
)

// StateKey is the bookkeeping record the tracker persists under.
const StateKey = "rate-limits"

// Endpoint names a rate-limited provider operation.
type Endpoint string

// Twitter endpoints tracked by the service.
const (
	MentionTimeline Endpoint = "mentionTimeline"
	PostTweet       Endpoint = "postTweet"
	UserLookup      Endpoint = "userLookup"
)

// throttleRatio is the share of a window after which ShouldThrottle reports true.
const throttleRatio = 0.8

// Limit is the number of calls allowed per window.
type Limit struct {
	Calls  int
	Window time.Duration
}

// DefaultLimits are the Twitter API v2 per-user limits for the tracked endpoints.
var DefaultLimits = map[Endpoint]Limit{
	MentionTimeline: {Calls: 3, Window: 15 * time.Minute},
	PostTweet:       {Calls: 50, Window: 15 * time.Minute},
	UserLookup:      {Calls: 300, Window: 15 * time.Minute},
}

// Entry is the persisted state of one endpoint.
type Entry struct {
	CallsInWindow int        `json:"callsInWindow"`
	WindowStart   time.Time  `json:"windowStart"`
	LastCall      time.Time  `json:"lastCall,omitzero"`
	ResetAt       *time.Time `json:"resetAt,omitempty"`
	Limit         int        `json:"limit"`
	WindowMs      int64      `json:"windowMs"`
}

func (e *Entry) window() time.Duration {
	return time.Duration(e.WindowMs) * time.Millisecond
}

// Snapshot describes one endpoint for status reporting.
type Snapshot struct {
	CallsInWindow int        `json:"callsInWindow"`
	Limit         int        `json:"limit"`
	WindowStart   time.Time  `json:"windowStart"`
	ResetAt       *time.Time `json:"resetAt,omitempty"`
	WaitMs        int64      `json:"waitMs"`
	Throttled     bool       `json:"throttled"`
}

// Tracker keeps sliding call windows per endpoint. Windows are expired lazily
// when an endpoint is next checked, never by a timer.
type Tracker struct {
	store  statefile.Store
	clock  clockwork.Clock
	limits map[Endpoint]Limit
	log    *slog.Logger

	mu      sync.Mutex
	entries map[Endpoint]*Entry
	loaded  bool
}

// NewTracker creates a Tracker. Nil limits use DefaultLimits and a nil clock uses the real clock.
func NewTracker(store statefile.Store, limits map[Endpoint]Limit, clock clockwork.Clock, log *slog.Logger) *Tracker {
	if limits == nil {
		limits = DefaultLimits
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracker{
		store:   store,
		clock:   clock,
		limits:  limits,
		log:     log.With("component", "rate_limit_tracker"),
		entries: make(map[Endpoint]*Entry),
	}
}

// load reads persisted entries once. Unreadable state starts empty. Callers must hold t.mu.
func (t *Tracker) load(ctx context.Context) {
	if t.loaded {
		return
	}
	t.loaded = true

	stored := map[Endpoint]*Entry{}
	if err := t.store.Load(ctx, StateKey, &stored); err != nil {
		if !errors.Is(err, statefile.ErrNotFound) {
			t.log.WarnContext(ctx, "Rate limit state unreadable, starting fresh", "error", err)
		}
		return
	}
	for ep, e := range stored {
		if e != nil {
			t.entries[ep] = e
		}
	}
}

func (t *Tracker) save(ctx context.Context) {
	if err := t.store.Save(ctx, StateKey, t.entries); err != nil {
		t.log.WarnContext(ctx, "Failed to persist rate limit state", "error", err)
	}
}

// entry returns the endpoint entry, creating it and expiring an elapsed window.
// The second result is true when the entry changed. Callers must hold t.mu.
func (t *Tracker) entry(ctx context.Context, ep Endpoint) (*Entry, bool) {
	t.load(ctx)
	now := t.clock.Now()

	e, ok := t.entries[ep]
	if !ok {
		lim, known := t.limits[ep]
		if !known {
			return nil, false
		}
		e = &Entry{WindowStart: now, Limit: lim.Calls, WindowMs: lim.Window.Milliseconds()}
		t.entries[ep] = e
		return e, true
	}
	if e.WindowMs <= 0 {
		if lim, known := t.limits[ep]; known {
			e.WindowMs = lim.Window.Milliseconds()
		}
	}
	if e.Limit <= 0 {
		if lim, known := t.limits[ep]; known {
			e.Limit = lim.Calls
		}
	}

	expired := now.Sub(e.WindowStart) >= e.window()
	if e.ResetAt != nil && !now.Before(*e.ResetAt) {
		expired = true
	}
	if expired {
		e.CallsInWindow = 0
		e.WindowStart = now
		e.ResetAt = nil
		return e, true
	}
	return e, false
}

// CanMakeCall reports whether ep has capacity in its current window.
// Endpoints without a configured limit are always allowed.
func (t *Tracker) CanMakeCall(ctx context.Context, ep Endpoint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, changed := t.entry(ctx, ep)
	if e == nil {
		return true
	}
	if changed {
		t.save(ctx)
	}
	return e.CallsInWindow < e.Limit
}

// RecordCall counts one call against ep. A non-zero providerReset is stored as the
// authoritative window end and takes precedence in WaitTime.
func (t *Tracker) RecordCall(ctx context.Context, ep Endpoint, providerReset time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, _ := t.entry(ctx, ep)
	if e == nil {
		return
	}
	e.CallsInWindow++
	e.LastCall = t.clock.Now()
	if !providerReset.IsZero() {
		reset := providerReset
		e.ResetAt = &reset
	}
	t.save(ctx)

	if float64(e.CallsInWindow) >= throttleRatio*float64(e.Limit) {
		t.log.WarnContext(ctx, "Approaching rate limit", "endpoint", ep, "calls", e.CallsInWindow, "limit", e.Limit)
	}
}

// WaitTime returns how long until ep can be called again.
func (t *Tracker) WaitTime(ctx context.Context, ep Endpoint) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.waitTime(ctx, ep)
}

func (t *Tracker) waitTime(ctx context.Context, ep Endpoint) time.Duration {
	e, changed := t.entry(ctx, ep)
	if e == nil {
		return 0
	}
	if changed {
		t.save(ctx)
	}
	if e.CallsInWindow < e.Limit {
		return 0
	}

	now := t.clock.Now()
	if e.ResetAt != nil {
		return max(0, e.ResetAt.Sub(now))
	}
	return max(0, e.WindowStart.Add(e.window()).Sub(now))
}

// ShouldThrottle reports whether ep has used 80% or more of its window.
func (t *Tracker) ShouldThrottle(ctx context.Context, ep Endpoint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, changed := t.entry(ctx, ep)
	if e == nil {
		return false
	}
	if changed {
		t.save(ctx)
	}
	return float64(e.CallsInWindow) >= throttleRatio*float64(e.Limit)
}

// UpdateFromHeaders replaces local bookkeeping for ep with the provider's
// x-rate-limit-limit, x-rate-limit-remaining and x-rate-limit-reset headers.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, ep Endpoint, h http.Header) {
	if h == nil {
		return
	}
	limit, limitErr := strconv.Atoi(h.Get("x-rate-limit-limit"))
	remaining, remErr := strconv.Atoi(h.Get("x-rate-limit-remaining"))
	resetUnix, resetErr := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if limitErr != nil && remErr != nil && resetErr != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, _ := t.entry(ctx, ep)
	if e == nil {
		return
	}
	if limitErr == nil && limit > 0 {
		e.Limit = limit
	}
	if remErr == nil {
		e.CallsInWindow = max(0, e.Limit-remaining)
	}
	if resetErr == nil && resetUnix > 0 {
		reset := time.Unix(resetUnix, 0)
		e.ResetAt = &reset
	}
	t.save(ctx)

	t.log.DebugContext(ctx, "Rate limit synced from provider",
		"endpoint", ep, "calls", e.CallsInWindow, "limit", e.Limit, "reset_at", e.ResetAt)
}

// Snapshot returns the state of every known endpoint.
func (t *Tracker) Snapshot(ctx context.Context) map[Endpoint]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[Endpoint]Snapshot, len(t.limits))
	for ep := range t.limits {
		wait := t.waitTime(ctx, ep)
		e := t.entries[ep]
		out[ep] = Snapshot{
			CallsInWindow: e.CallsInWindow,
			Limit:         e.Limit,
			WindowStart:   e.WindowStart,
			ResetAt:       e.ResetAt,
			WaitMs:        wait.Milliseconds(),
			Throttled:     float64(e.CallsInWindow) >= throttleRatio*float64(e.Limit),
		}
	}
	return out
}

// Reset clears the window for ep.
func (t *Tracker) Reset(ctx context.Context, ep Endpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.load(ctx)
	delete(t.entries, ep)
	t.save(ctx)
}

// Compact drops entries for endpoints that are no longer configured and rewrites the record.
func (t *Tracker) Compact(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.load(ctx)
	removed := 0
	for ep := range t.entries {
		if _, ok := t.limits[ep]; !ok {
			delete(t.entries, ep)
			removed++
		}
	}
	t.save(ctx)
	return removed
}
