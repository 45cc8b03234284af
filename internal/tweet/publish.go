package tweet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/photo"
	"github.com/edgard/civicbot/internal/ratelimit"
	"github.com/edgard/civicbot/internal/twitter"
)

// Rejection reasons returned to callers.
const (
	ReasonDailyLimit  = "daily_limit_reached"
	ReasonKeysMissing = "twitter_keys_missing"
	ReasonRateLimited = "rate_limit_exceeded"
	ReasonPostFailed  = "twitter_post_failed"
)

const maxPhotoBytes = 20 << 20

// Rejection is a refused or failed post. Status is the HTTP status the caller should answer with.
type Rejection struct {
	Status     int
	Reason     string
	Detail     string
	RetryAfter time.Duration
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "tweet rejected: " + r.Reason
	}
	return fmt.Sprintf("tweet rejected: %s (%s)", r.Reason, r.Detail)
}

// Poster is the subset of the Twitter client used to publish.
type Poster interface {
	CreateTweet(ctx context.Context, text string, opts twitter.PostOptions) (string, http.Header, error)
	UploadMedia(ctx context.Context, data []byte, filename string) (string, error)
}

// CallTracker guards provider call windows.
type CallTracker interface {
	CanMakeCall(ctx context.Context, ep ratelimit.Endpoint) bool
	RecordCall(ctx context.Context, ep ratelimit.Endpoint, providerReset time.Time)
	WaitTime(ctx context.Context, ep ratelimit.Endpoint) time.Duration
	UpdateFromHeaders(ctx context.Context, ep ratelimit.Endpoint, h http.Header)
}

// TweetCounter counts real tweets for the daily cap.
type TweetCounter interface {
	CountRealTweetsSince(ctx context.Context, since time.Time) (int, error)
}

// Options configures a Publisher.
type Options struct {
	Simulate       bool
	DailyLimit     int
	Location       *time.Location
	MediaMaxBytes  int
	MediaMaxPixels int
}

// Result is a published (or simulated) tweet.
type Result struct {
	TweetID       string
	Text          string
	Simulated     bool
	AIEnhanced    bool
	MediaAttached bool
	At            time.Time
}

// Publisher applies the posting gates and posts composed tweets.
type Publisher struct {
	opts     Options
	composer *Composer
	poster   Poster
	tracker  CallTracker
	counter  TweetCounter
	photos   photo.Store
	clock    clockwork.Clock
	log      *slog.Logger
}

// NewPublisher creates a Publisher. A nil poster means credentials are not configured.
func NewPublisher(opts Options, composer *Composer, poster Poster, tracker CallTracker, counter TweetCounter, photos photo.Store, clock clockwork.Clock, log *slog.Logger) *Publisher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Publisher{
		opts:     opts,
		composer: composer,
		poster:   poster,
		tracker:  tracker,
		counter:  counter,
		photos:   photos,
		clock:    clock,
		log:      log.With("component", "tweet_publisher"),
	}
}

// Publish composes and posts the tweet for r. The gates run in order: simulation,
// daily cap, credentials, provider window. Refusals are returned as *Rejection.
// The caller persists the outcome.
func (p *Publisher) Publish(ctx context.Context, r *database.Report) (Result, error) {
	now := p.clock.Now()

	if p.opts.Simulate {
		comp := p.composer.Compose(ctx, r)
		p.log.InfoContext(ctx, "Simulated tweet", "report_id", r.ID, "ai_enhanced", comp.AIEnhanced)
		return Result{
			TweetID:    "sim-" + strconv.FormatInt(now.UnixMilli(), 10),
			Text:       comp.Text,
			Simulated:  true,
			AIEnhanced: comp.AIEnhanced,
			At:         now,
		}, nil
	}

	sent, err := p.counter.CountRealTweetsSince(ctx, p.midnight(now))
	if err != nil {
		return Result{}, fmt.Errorf("failed to count today's tweets: %w", err)
	}
	if sent >= p.opts.DailyLimit {
		p.log.WarnContext(ctx, "Daily tweet limit reached", "sent", sent, "limit", p.opts.DailyLimit)
		return Result{}, &Rejection{
			Status: http.StatusTooManyRequests,
			Reason: ReasonDailyLimit,
			Detail: fmt.Sprintf("%d of %d tweets sent today", sent, p.opts.DailyLimit),
		}
	}

	if p.poster == nil {
		return Result{}, &Rejection{Status: http.StatusNotImplemented, Reason: ReasonKeysMissing}
	}

	if !p.tracker.CanMakeCall(ctx, ratelimit.PostTweet) {
		wait := p.tracker.WaitTime(ctx, ratelimit.PostTweet)
		return Result{}, &Rejection{
			Status:     http.StatusTooManyRequests,
			Reason:     ReasonRateLimited,
			Detail:     fmt.Sprintf("retry in %d minutes", waitMinutes(wait)),
			RetryAfter: wait,
		}
	}

	comp := p.composer.Compose(ctx, r)

	var opts twitter.PostOptions
	if mediaID, ok := p.uploadPhoto(ctx, r); ok {
		opts.MediaIDs = []string{mediaID}
	}

	id, hdr, err := p.poster.CreateTweet(ctx, comp.Text, opts)
	p.tracker.RecordCall(ctx, ratelimit.PostTweet, time.Time{})
	p.tracker.UpdateFromHeaders(ctx, ratelimit.PostTweet, hdr)
	if err != nil {
		p.log.WarnContext(ctx, "Tweet post failed", "report_id", r.ID, "error", err)
		return Result{}, &Rejection{
			Status: http.StatusBadGateway,
			Reason: ReasonPostFailed,
			Detail: twitter.DetailCode(err),
		}
	}

	p.log.InfoContext(ctx, "Tweet posted", "report_id", r.ID, "tweet_id", id, "ai_enhanced", comp.AIEnhanced, "media", len(opts.MediaIDs) > 0)
	return Result{
		TweetID:       id,
		Text:          comp.Text,
		AIEnhanced:    comp.AIEnhanced,
		MediaAttached: len(opts.MediaIDs) > 0,
		At:            p.clock.Now(),
	}, nil
}

// uploadPhoto attaches the report photo. Any failure means a text-only tweet.
func (p *Publisher) uploadPhoto(ctx context.Context, r *database.Report) (string, bool) {
	if r.PhotoRef == "" || p.photos == nil {
		return "", false
	}
	data, err := photo.ReadAll(ctx, p.photos, r.PhotoRef, maxPhotoBytes)
	if err != nil {
		p.log.WarnContext(ctx, "Photo unavailable, posting text only", "report_id", r.ID, "error", err)
		return "", false
	}
	data, ct, err := photo.Prepare(data, r.PhotoContentType, p.opts.MediaMaxBytes, p.opts.MediaMaxPixels)
	if err != nil {
		p.log.WarnContext(ctx, "Photo could not be prepared, posting text only", "report_id", r.ID, "error", err)
		return "", false
	}
	id, err := p.poster.UploadMedia(ctx, data, "report-"+r.ID+photo.ExtensionFor(ct))
	if err != nil {
		var apiErr *twitter.APIError
		if errors.As(err, &apiErr) {
			p.log.WarnContext(ctx, "Media upload rejected, posting text only", "report_id", r.ID, "status", apiErr.StatusCode)
		} else {
			p.log.WarnContext(ctx, "Media upload failed, posting text only", "report_id", r.ID, "error", err)
		}
		return "", false
	}
	return id, true
}

func (p *Publisher) midnight(now time.Time) time.Time {
	local := now.In(p.opts.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.opts.Location)
}

func waitMinutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	return max(1, m)
}
