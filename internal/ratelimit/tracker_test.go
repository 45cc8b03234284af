package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/statefile"
)

func newTestTracker(t *testing.T) (*Tracker, *clockwork.FakeClock, statefile.Store) {
	t.Helper()
	store := statefile.NewFileStore(t.TempDir())
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	return NewTracker(store, nil, clock, nil), clock, store
}

func TestTrackerWindow(t *testing.T) {
	t.Parallel()
	tr, clock, _ := newTestTracker(t)
	ctx := context.Background()

	if !tr.CanMakeCall(ctx, MentionTimeline) {
		t.Fatal("CanMakeCall() = false initially")
	}
	for i := 0; i < 3; i++ {
		tr.RecordCall(ctx, MentionTimeline, time.Time{})
	}
	if tr.CanMakeCall(ctx, MentionTimeline) {
		t.Fatal("CanMakeCall() = true after limit calls")
	}
	if got := tr.WaitTime(ctx, MentionTimeline); got != 15*time.Minute {
		t.Errorf("WaitTime() = %s, want 15m", got)
	}

	clock.Advance(10 * time.Minute)
	if got := tr.WaitTime(ctx, MentionTimeline); got != 5*time.Minute {
		t.Errorf("WaitTime() after 10m = %s, want 5m", got)
	}

	clock.Advance(5 * time.Minute)
	if !tr.CanMakeCall(ctx, MentionTimeline) {
		t.Error("CanMakeCall() = false after window elapsed")
	}
	if got := tr.WaitTime(ctx, MentionTimeline); got != 0 {
		t.Errorf("WaitTime() after window = %s, want 0", got)
	}
}

func TestTrackerProviderResetWins(t *testing.T) {
	t.Parallel()
	tr, clock, _ := newTestTracker(t)
	ctx := context.Background()

	reset := clock.Now().Add(7 * time.Minute)
	for i := 0; i < 3; i++ {
		tr.RecordCall(ctx, MentionTimeline, reset)
	}
	if got := tr.WaitTime(ctx, MentionTimeline); got != 7*time.Minute {
		t.Errorf("WaitTime() = %s, want provider reset 7m", got)
	}

	clock.Advance(7 * time.Minute)
	if !tr.CanMakeCall(ctx, MentionTimeline) {
		t.Error("CanMakeCall() = false after provider reset passed")
	}
}

func TestTrackerShouldThrottle(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 39; i++ {
		tr.RecordCall(ctx, PostTweet, time.Time{})
	}
	if tr.ShouldThrottle(ctx, PostTweet) {
		t.Error("ShouldThrottle() = true at 39/50")
	}
	tr.RecordCall(ctx, PostTweet, time.Time{})
	if !tr.ShouldThrottle(ctx, PostTweet) {
		t.Error("ShouldThrottle() = false at 40/50")
	}
	if !tr.CanMakeCall(ctx, PostTweet) {
		t.Error("CanMakeCall() = false at 40/50, throttling is advisory only")
	}
}

func TestTrackerUpdateFromHeaders(t *testing.T) {
	t.Parallel()
	tr, clock, _ := newTestTracker(t)
	ctx := context.Background()

	tr.RecordCall(ctx, PostTweet, time.Time{})

	reset := clock.Now().Add(4 * time.Minute).Truncate(time.Second)
	h := http.Header{}
	h.Set("x-rate-limit-limit", "17")
	h.Set("x-rate-limit-remaining", "0")
	h.Set("x-rate-limit-reset", strconv.FormatInt(reset.Unix(), 10))
	tr.UpdateFromHeaders(ctx, PostTweet, h)

	if tr.CanMakeCall(ctx, PostTweet) {
		t.Error("CanMakeCall() = true after provider reported 0 remaining")
	}
	snap := tr.Snapshot(ctx)[PostTweet]
	if snap.Limit != 17 || snap.CallsInWindow != 17 {
		t.Errorf("Snapshot() = %+v, want provider limit and count", snap)
	}
	if got := tr.WaitTime(ctx, PostTweet); got != 4*time.Minute {
		t.Errorf("WaitTime() = %s, want 4m", got)
	}

	tr.UpdateFromHeaders(ctx, PostTweet, http.Header{})
	if tr.CanMakeCall(ctx, PostTweet) {
		t.Error("empty headers must not change state")
	}
}

func TestTrackerPersists(t *testing.T) {
	t.Parallel()
	tr, clock, store := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr.RecordCall(ctx, MentionTimeline, time.Time{})
	}

	reloaded := NewTracker(store, nil, clock, nil)
	if reloaded.CanMakeCall(ctx, MentionTimeline) {
		t.Error("reloaded tracker lost persisted window")
	}
}

func TestTrackerUnknownEndpoint(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	if !tr.CanMakeCall(ctx, "other") || tr.ShouldThrottle(ctx, "other") || tr.WaitTime(ctx, "other") != 0 {
		t.Error("unknown endpoints should never be limited")
	}
}
