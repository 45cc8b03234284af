// Package monitor watches mentions of the civic handles, picks out
// infrastructure complaints and answers each of them once.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/ledger"
	"github.com/edgard/civicbot/internal/metrics"
	"github.com/edgard/civicbot/internal/ratelimit"
	"github.com/edgard/civicbot/internal/twitter"
)

var (
	// ErrBusy is returned when a run is already in progress.
	ErrBusy = errors.New("monitor run already in progress")
	// ErrNotConfigured is returned when credentials or handles are missing.
	ErrNotConfigured = errors.New("monitor not configured")
	// ErrThrottled is returned when the mention timeline window is exhausted.
	ErrThrottled = errors.New("mention timeline rate limit reached")

	errLookupThrottled = errors.New("user lookup rate limit reached")
)

// API is the subset of the Twitter client the monitor uses.
type API interface {
	UserIDByUsername(ctx context.Context, username string) (string, http.Header, error)
	Mentions(ctx context.Context, userID string, maxResults int, since time.Time) ([]twitter.Tweet, http.Header, error)
	CreateTweet(ctx context.Context, text string, opts twitter.PostOptions) (string, http.Header, error)
}

// Tracker guards provider call windows.
type Tracker interface {
	CanMakeCall(ctx context.Context, ep ratelimit.Endpoint) bool
	RecordCall(ctx context.Context, ep ratelimit.Endpoint, providerReset time.Time)
	WaitTime(ctx context.Context, ep ratelimit.Endpoint) time.Duration
	UpdateFromHeaders(ctx context.Context, ep ratelimit.Endpoint, h http.Header)
	Snapshot(ctx context.Context) map[ratelimit.Endpoint]ratelimit.Snapshot
}

// Ledger is the processed-mention record.
type Ledger interface {
	Load(ctx context.Context) (ledger.Entries, error)
	Save(ctx context.Context, entries ledger.Entries) error
}

// Options tune a monitor run.
type Options struct {
	Handles       []string
	ReplyHandles  []string
	RecencyWindow time.Duration
	MaxReplies    int
	ReplyDelay    time.Duration
	MaxResults    int
}

// Stats counts what one run saw and did.
type Stats struct {
	TotalTweets   int   `json:"totalTweets"`
	RecentTweets  int   `json:"recentTweets"`
	NewComplaints int   `json:"newComplaints"`
	Processed     int   `json:"processed"`
	RepliesSent   int   `json:"repliesSent"`
	Failed        int   `json:"failed"`
	DurationMs    int64 `json:"durationMs"`
}

// Result is the outcome of one run.
type Result struct {
	Success    bool                                      `json:"success"`
	Message    string                                    `json:"message"`
	Stats      Stats                                     `json:"stats"`
	WaitMs     int64                                     `json:"waitTimeMs,omitempty"`
	RateLimits map[ratelimit.Endpoint]ratelimit.Snapshot `json:"rateLimits,omitempty"`
	Errors     []string                                  `json:"errors,omitempty"`
}

// Monitor runs mention passes. Only one pass runs at a time.
type Monitor struct {
	opts    Options
	api     API
	tracker Tracker
	ledger  Ledger
	clock   clockwork.Clock
	log     *slog.Logger

	busy atomic.Bool

	mu      sync.Mutex
	userIDs map[string]string
}

// New creates a Monitor. A nil api means credentials are not configured.
func New(opts Options, api API, tracker Tracker, ledger Ledger, clock clockwork.Clock, log *slog.Logger) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{
		opts:    opts,
		api:     api,
		tracker: tracker,
		ledger:  ledger,
		clock:   clock,
		log:     log.With("component", "twitter_monitor"),
		userIDs: make(map[string]string),
	}
}

// Run performs one pass. Replies are posted sequentially with ReplyDelay between them.
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	if !m.busy.CompareAndSwap(false, true) {
		metrics.MonitorRunsTotal.WithLabelValues("busy").Inc()
		return Result{Message: "A monitor run is already in progress"}, ErrBusy
	}
	defer m.busy.Store(false)

	start := m.clock.Now()
	res, err := m.run(ctx, start)
	res.Stats.DurationMs = m.clock.Since(start).Milliseconds()
	metrics.MonitorRunsTotal.WithLabelValues(runLabel(err)).Inc()
	metrics.MonitorRepliesTotal.WithLabelValues("sent").Add(float64(res.Stats.RepliesSent))
	metrics.MonitorRepliesTotal.WithLabelValues("failed").Add(float64(res.Stats.Failed))
	if res.Success {
		m.log.InfoContext(ctx, "Monitor run completed",
			"total", res.Stats.TotalTweets, "recent", res.Stats.RecentTweets,
			"complaints", res.Stats.NewComplaints, "replied", res.Stats.RepliesSent,
			"failed", res.Stats.Failed, "duration_ms", res.Stats.DurationMs)
	}
	return res, err
}

func runLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConfigured):
		return "config_error"
	case errors.Is(err, ErrThrottled):
		return "rate_limited"
	default:
		return "failed"
	}
}

func (m *Monitor) run(ctx context.Context, start time.Time) (Result, error) {
	if m.api == nil || len(m.opts.Handles) == 0 {
		return Result{Message: "Twitter credentials or monitored handles are not configured"}, ErrNotConfigured
	}

	if !m.tracker.CanMakeCall(ctx, ratelimit.MentionTimeline) {
		wait := m.tracker.WaitTime(ctx, ratelimit.MentionTimeline)
		minutes := max(1, int((wait+time.Minute-1)/time.Minute))
		m.log.WarnContext(ctx, "Mention timeline rate limit reached", "wait", wait)
		return Result{
			Message:    fmt.Sprintf("Rate limit reached. Try again in %d minute(s)", minutes),
			WaitMs:     wait.Milliseconds(),
			RateLimits: m.tracker.Snapshot(ctx),
		}, ErrThrottled
	}

	entries, err := m.ledger.Load(ctx)
	if err != nil {
		return Result{Message: "Processed tweet ledger is unreadable"}, err
	}

	var res Result
	tweets, fetchErrs := m.fetchMentions(ctx, start)
	res.Errors = append(res.Errors, fetchErrs...)

	cutoff := start.Add(-m.opts.RecencyWindow)
	var complaints []Complaint
	for _, t := range tweets {
		// Mentions without a timestamp count as just posted.
		if t.CreatedAt.IsZero() {
			t.CreatedAt = start
		}
		if !t.CreatedAt.After(cutoff) {
			continue
		}
		res.Stats.RecentTweets++
		c, ok := Classify(t)
		if !ok || entries.Has(t.ID) {
			continue
		}
		complaints = append(complaints, c)
	}
	res.Stats.TotalTweets = len(tweets)
	res.Stats.NewComplaints = len(complaints)

	if len(complaints) == 0 {
		res.Success = true
		res.Message = "No new infrastructure complaints to process"
		res.RateLimits = m.tracker.Snapshot(ctx)
		return res, nil
	}

	batch := complaints[:min(len(complaints), m.opts.MaxReplies)]
	for i, c := range batch {
		if i > 0 && m.opts.ReplyDelay > 0 {
			select {
			case <-ctx.Done():
				res.Errors = append(res.Errors, "run cancelled: "+ctx.Err().Error())
			case <-m.clock.After(m.opts.ReplyDelay):
			}
			if ctx.Err() != nil {
				break
			}
		}

		if !m.tracker.CanMakeCall(ctx, ratelimit.PostTweet) {
			m.log.WarnContext(ctx, "Post rate limit reached, skipping remaining replies", "remaining", len(batch)-i)
			break
		}

		reply := Reply(c, m.opts.ReplyHandles)
		_, hdr, err := m.api.CreateTweet(ctx, reply, twitter.PostOptions{ReplyTo: c.Tweet.ID})
		m.tracker.UpdateFromHeaders(ctx, ratelimit.PostTweet, hdr)

		now := m.clock.Now()
		res.Stats.Processed++
		if err != nil {
			res.Stats.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("failed to post reply for tweet %s: %s", c.Tweet.ID, twitter.DetailCode(err)))
			m.log.WarnContext(ctx, "Reply failed", "tweet_id", c.Tweet.ID, "error", err)
			entries = append(entries, ledger.Entry{TweetID: c.Tweet.ID, ProcessedAt: now})
			continue
		}

		m.tracker.RecordCall(ctx, ratelimit.PostTweet, time.Time{})
		res.Stats.RepliesSent++
		entries = append(entries, ledger.Entry{TweetID: c.Tweet.ID, ProcessedAt: now, RepliedAt: &now})
		m.log.InfoContext(ctx, "Replied to complaint", "tweet_id", c.Tweet.ID, "category", c.Category, "severity", c.Severity)
	}

	if err := m.ledger.Save(ctx, entries); err != nil {
		m.log.ErrorContext(ctx, "Failed to save processed tweets", "error", err)
		res.Errors = append(res.Errors, "failed to save processed tweets")
	}

	res.Success = true
	res.Message = fmt.Sprintf("Processed %d complaints, sent %d replies", res.Stats.Processed, res.Stats.RepliesSent)
	res.RateLimits = m.tracker.Snapshot(ctx)
	return res, nil
}

// fetchMentions collects mentions of every handle, de-duplicated by id.
// Per-handle failures are reported and skipped.
func (m *Monitor) fetchMentions(ctx context.Context, start time.Time) ([]twitter.Tweet, []string) {
	var (
		out  []twitter.Tweet
		errs []string
		seen = make(map[string]bool)
	)
	since := start.Add(-m.opts.RecencyWindow)

	for _, handle := range m.opts.Handles {
		userID, err := m.userID(ctx, handle)
		if err != nil {
			detail := twitter.DetailCode(err)
			if errors.Is(err, errLookupThrottled) {
				detail = "rate_limited"
			}
			errs = append(errs, fmt.Sprintf("could not resolve %s: %s", handle, detail))
			m.log.WarnContext(ctx, "User lookup failed", "handle", handle, "error", err)
			continue
		}

		if !m.tracker.CanMakeCall(ctx, ratelimit.MentionTimeline) {
			errs = append(errs, "mention timeline rate limit reached before "+handle)
			break
		}
		tweets, hdr, err := m.api.Mentions(ctx, userID, m.opts.MaxResults, since)
		m.tracker.RecordCall(ctx, ratelimit.MentionTimeline, time.Time{})
		m.tracker.UpdateFromHeaders(ctx, ratelimit.MentionTimeline, hdr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("could not fetch mentions of %s: %s", handle, twitter.DetailCode(err)))
			m.log.WarnContext(ctx, "Mention fetch failed", "handle", handle, "error", err)
			continue
		}

		for _, t := range tweets {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	return out, errs
}

func (m *Monitor) userID(ctx context.Context, handle string) (string, error) {
	m.mu.Lock()
	id, ok := m.userIDs[handle]
	m.mu.Unlock()
	if ok {
		return id, nil
	}

	if !m.tracker.CanMakeCall(ctx, ratelimit.UserLookup) {
		return "", errLookupThrottled
	}
	id, hdr, err := m.api.UserIDByUsername(ctx, handle)
	m.tracker.RecordCall(ctx, ratelimit.UserLookup, time.Time{})
	m.tracker.UpdateFromHeaders(ctx, ratelimit.UserLookup, hdr)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.userIDs[handle] = id
	m.mu.Unlock()
	return id, nil
}
