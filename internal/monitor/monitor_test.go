package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/ledger"
	"github.com/edgard/civicbot/internal/ratelimit"
	"github.com/edgard/civicbot/internal/statefile"
	"github.com/edgard/civicbot/internal/twitter"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var replyHandles = []string{"@GBA_office", "@ICCCBengaluru"}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		ok       bool
		category string
		severity string
		location string
	}{
		{"Huge pothole on MG Road, please fix", true, "roads", "medium", "MG Road"},
		{"Street light not working near Church Street, dark and dangerous", true, "lighting", "high", "Church Street"},
		{"Garbage dump in Koramangala 5th Block", true, "waste", "low", ""},
		{"Water supply pipeline burst at Hosur Road junction, emergency", true, "water", "high", "Hosur Road"},
		{"Happy birthday @GBA_office!", false, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			c, ok := Classify(twitter.Tweet{ID: "1", Text: tt.text})
			if ok != tt.ok {
				t.Fatalf("Classify ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if c.Category != tt.category || c.Severity != tt.severity || c.Location != tt.location {
				t.Errorf("got %s/%s/%q, want %s/%s/%q", c.Category, c.Severity, c.Location, tt.category, tt.severity, tt.location)
			}
			if len(c.Keywords) == 0 {
				t.Error("keywords not recorded")
			}
		})
	}
}

func TestSeverity(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"URGENT pothole, please fix": "high",
		"been weeks now":             "medium",
		"just a crack":               "low",
		"Critical":                   "high",
		"fix it":                     "medium",
	}
	for in, want := range tests {
		if got := Severity(in); got != want {
			t.Errorf("Severity(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestReply(t *testing.T) {
	t.Parallel()

	c := Complaint{Category: "roads", Severity: "high", Location: "MG Road"}
	got := Reply(c, replyHandles)
	for _, want := range []string{"@GBA_office @ICCCBengaluru", "URGENT", "in MG Road", "#FixOurRoads", "Please prioritize this."} {
		if !strings.Contains(got, want) {
			t.Errorf("reply %q missing %q", got, want)
		}
	}

	unknown := Reply(Complaint{Category: "general", Severity: "low"}, replyHandles)
	if !strings.HasSuffix(unknown, "#BengaluruInfra") {
		t.Errorf("default hashtag missing: %q", unknown)
	}

	long := Complaint{Category: "water", Severity: "high", Location: strings.Repeat("Very ", 60) + "Road"}
	short := Reply(long, replyHandles)
	if n := utf8.RuneCountInString(short); n > maxReplyRunes {
		t.Errorf("reply length = %d", n)
	}
	if !strings.HasPrefix(short, "@GBA_office @ICCCBengaluru URGENT: water issue") {
		t.Errorf("short form not used: %q", short)
	}
}

type fakeAPI struct {
	mu       sync.Mutex
	users    map[string]string
	mentions map[string][]twitter.Tweet
	postErr  map[string]error
	replies  []string
	lookups  int
}

func (f *fakeAPI) UserIDByUsername(_ context.Context, username string) (string, http.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	id, ok := f.users[username]
	if !ok {
		return "", nil, &twitter.APIError{StatusCode: http.StatusNotFound}
	}
	return id, nil, nil
}

func (f *fakeAPI) Mentions(_ context.Context, userID string, _ int, _ time.Time) ([]twitter.Tweet, http.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mentions[userID], nil, nil
}

func (f *fakeAPI) CreateTweet(_ context.Context, _ string, opts twitter.PostOptions) (string, http.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.postErr[opts.ReplyTo]; err != nil {
		return "", nil, err
	}
	f.replies = append(f.replies, opts.ReplyTo)
	return "reply-" + opts.ReplyTo, nil, nil
}

func (f *fakeAPI) replied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies...)
}

type fixture struct {
	mon       *Monitor
	api       *fakeAPI
	clock     *clockwork.FakeClock
	tracker   *ratelimit.Tracker
	ledger    *ledger.Ledger
	ledgerDir string
}

func newFixture(t *testing.T, opts Options, mentions map[string][]twitter.Tweet) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	ledgerDir := t.TempDir()
	f := &fixture{
		api: &fakeAPI{
			users:    map[string]string{"@GBA_office": "u1", "@ICCCBengaluru": "u2"},
			mentions: mentions,
			postErr:  map[string]error{},
		},
		clock:     clock,
		tracker:   ratelimit.NewTracker(statefile.NewFileStore(t.TempDir()), nil, clock, discard),
		ledger:    ledger.New(statefile.NewFileStore(ledgerDir), 0, clock),
		ledgerDir: ledgerDir,
	}
	if opts.Handles == nil {
		opts.Handles = []string{"@GBA_office", "@ICCCBengaluru"}
	}
	opts.ReplyHandles = replyHandles
	if opts.RecencyWindow == 0 {
		opts.RecencyWindow = 2 * time.Hour
	}
	if opts.MaxReplies == 0 {
		opts.MaxReplies = 5
	}
	opts.MaxResults = 20
	f.mon = New(opts, f.api, f.tracker, f.ledger, clock, discard)
	return f
}

func tweetAt(id, text string, at time.Time) twitter.Tweet {
	return twitter.Tweet{ID: id, Text: text, CreatedAt: at}
}

func TestRunRepliesOnceAcrossRuns(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	complaint := tweetAt("t1", "Big pothole on MG Road, please fix", now.Add(-10*time.Minute))
	mentions := map[string][]twitter.Tweet{
		"u1": {complaint, tweetAt("t2", "Garbage everywhere", now.Add(-3*time.Hour))},
		"u2": {complaint, tweetAt("t3", "Thanks for the quick response!", now.Add(-5*time.Minute))},
	}
	f := newFixture(t, Options{}, mentions)
	ctx := context.Background()

	res, err := f.mon.Run(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	want := Stats{TotalTweets: 3, RecentTweets: 2, NewComplaints: 1, Processed: 1, RepliesSent: 1}
	res.Stats.DurationMs = 0
	if res.Stats != want || !res.Success {
		t.Errorf("first run stats = %+v, want %+v", res.Stats, want)
	}

	f.clock.Advance(16 * time.Minute)
	res, err = f.mon.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Stats.NewComplaints != 0 || res.Stats.RepliesSent != 0 {
		t.Errorf("second run stats = %+v", res.Stats)
	}
	if got := f.api.replied(); len(got) != 1 || got[0] != "t1" {
		t.Errorf("replies = %v, want exactly [t1]", got)
	}
	if f.api.lookups != 2 {
		t.Errorf("user lookups = %d, want cached after first run", f.api.lookups)
	}

	entries, err := f.ledger.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].TweetID != "t1" || entries[0].RepliedAt == nil {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestRunTreatsMissingTimestampAsRecent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, Options{}, map[string][]twitter.Tweet{
		"u1": {
			{ID: "t1", Text: "Street light not working near Indiranagar Circle, too dark at night"},
			tweetAt("t2", "Overflowing garbage on CMH Road", now.Add(-5*time.Hour)),
		},
	})

	res, err := f.mon.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.RecentTweets != 1 || res.Stats.NewComplaints != 1 || res.Stats.RepliesSent != 1 {
		t.Errorf("stats = %+v, want the undated mention kept and the old one dropped", res.Stats)
	}
	if got := f.api.replied(); len(got) != 1 || got[0] != "t1" {
		t.Errorf("replies = %v, want [t1]", got)
	}
}

func TestRunWithoutComplaintsLeavesLedgerUntouched(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, Options{}, map[string][]twitter.Tweet{
		"u1": {tweetAt("t1", "Great work today", now.Add(-time.Minute))},
	})

	res, err := f.mon.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success || res.Stats.NewComplaints != 0 || res.Stats.RepliesSent != 0 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(f.ledgerDir, ledger.StateKey+".json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ledger written on an empty run: %v", err)
	}
}

func TestRunDelaysBetweenRepliesAndRejectsOverlap(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, Options{ReplyDelay: 2 * time.Minute, Handles: []string{"@GBA_office"}}, map[string][]twitter.Tweet{
		"u1": {
			tweetAt("t1", "Water leak near Hosur Road", now.Add(-time.Minute)),
			tweetAt("t2", "Tree fallen in the park", now.Add(-2*time.Minute)),
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.mon.Run(ctx)
		done <- outcome{res, err}
	}()

	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("run never waited between replies: %v", err)
	}
	if got := f.api.replied(); len(got) != 1 {
		t.Errorf("replies before delay = %v, want one", got)
	}
	if _, err := f.mon.Run(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping run error = %v, want ErrBusy", err)
	}

	f.clock.Advance(2 * time.Minute)
	out := <-done
	if out.err != nil {
		t.Fatalf("Run: %v", out.err)
	}
	if out.res.Stats.RepliesSent != 2 {
		t.Errorf("stats = %+v", out.res.Stats)
	}
}

func TestRunRecordsFailedReplies(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, Options{Handles: []string{"@GBA_office"}}, map[string][]twitter.Tweet{
		"u1": {tweetAt("t1", "Streetlight bulb broken, dark road", now.Add(-time.Minute))},
	})
	f.api.postErr["t1"] = &twitter.APIError{StatusCode: http.StatusServiceUnavailable, Detail: "upstream secret"}

	res, err := f.mon.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Failed != 1 || res.Stats.Processed != 1 || res.Stats.RepliesSent != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "http_503") || strings.Contains(res.Errors[0], "secret") {
		t.Errorf("errors = %v", res.Errors)
	}

	entries, err := f.ledger.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].RepliedAt != nil {
		t.Errorf("ledger = %+v, want processed without reply", entries)
	}
}

func TestRunCapsRepliesPerRun(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	var tweets []twitter.Tweet
	for _, id := range []string{"a", "b", "c"} {
		tweets = append(tweets, tweetAt(id, "pothole again", now.Add(-time.Minute)))
	}
	f := newFixture(t, Options{MaxReplies: 1, Handles: []string{"@GBA_office"}}, map[string][]twitter.Tweet{"u1": tweets})

	res, err := f.mon.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.NewComplaints != 3 || res.Stats.RepliesSent != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestRunGuards(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{}, nil)
		mon := New(Options{Handles: []string{"@x"}}, nil, f.tracker, f.ledger, f.clock, discard)
		if _, err := mon.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("error = %v, want ErrNotConfigured", err)
		}
	})

	t.Run("throttled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{}, nil)
		ctx := context.Background()
		for range ratelimit.DefaultLimits[ratelimit.MentionTimeline].Calls {
			f.tracker.RecordCall(ctx, ratelimit.MentionTimeline, time.Time{})
		}
		res, err := f.mon.Run(ctx)
		if !errors.Is(err, ErrThrottled) {
			t.Fatalf("error = %v, want ErrThrottled", err)
		}
		if res.WaitMs <= 0 || !strings.Contains(res.Message, "15 minute(s)") {
			t.Errorf("result = %+v", res)
		}
		if f.api.lookups != 0 {
			t.Error("network touched while throttled")
		}
	})
}
