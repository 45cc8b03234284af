// Package pipeline runs the per-report steps (classify, notify, tweet) and
// writes their outcomes back onto the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/classify"
	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/mail"
	"github.com/edgard/civicbot/internal/metrics"
	"github.com/edgard/civicbot/internal/notify"
	"github.com/edgard/civicbot/internal/tweet"
)

// SourceDisabled marks a classification computed while AI classification is switched off.
const SourceDisabled = "disabled"

// ErrEmailFailed wraps delivery failures of the notify step.
var ErrEmailFailed = errors.New("email delivery failed")

// Classifier assigns category and severity.
type Classifier interface {
	Classify(ctx context.Context, description string) classify.Result
}

// Notifier composes and sends the authority email.
type Notifier interface {
	Send(ctx context.Context, r *database.Report) (string, notify.Draft, error)
}

// Publisher posts the report tweet.
type Publisher interface {
	Publish(ctx context.Context, r *database.Report) (tweet.Result, error)
}

// Options switch pipeline features.
type Options struct {
	ClassificationEnabled bool
	EmailEnabled          bool
	AutoTweet             bool
	BackgroundTimeout     time.Duration
}

// ClassifyResult is the outcome of the classify step.
type ClassifyResult struct {
	Category   string
	Severity   string
	Simulated  bool
	AIEnhanced bool
	Source     string
	Stored     bool
}

// Degraded reports whether AI was switched off or capped for this result.
// A model failure that fell back to keywords is not degraded: AI was allowed
// and the answer is final.
func (r ClassifyResult) Degraded() bool {
	return r.Source == SourceDisabled || r.Source == classify.SourceCapped
}

// NotifyResult is the outcome of the notify step.
type NotifyResult struct {
	MessageID   string
	Subject     string
	Simulated   bool
	AIEnhanced  bool
	AlreadySent bool
	TweetQueued bool
}

// TweetResult is the outcome of the tweet step.
type TweetResult struct {
	TweetID       string
	Text          string
	Simulated     bool
	AIEnhanced    bool
	AlreadyPosted bool
}

// Pipeline owns the report steps and any background work they spawn.
type Pipeline struct {
	opts       Options
	store      database.Store
	classifier Classifier
	notifier   Notifier
	publisher  Publisher
	clock      clockwork.Clock
	log        *slog.Logger

	wg sync.WaitGroup
}

// New creates a Pipeline. A nil notifier means the email transport is not configured.
func New(opts Options, store database.Store, classifier Classifier, notifier Notifier, publisher Publisher, clock clockwork.Clock, log *slog.Logger) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = time.Minute
	}
	return &Pipeline{
		opts:       opts,
		store:      store,
		classifier: classifier,
		notifier:   notifier,
		publisher:  publisher,
		clock:      clock,
		log:        log.With("component", "pipeline"),
	}
}

// Classify assigns category and severity to report id. With AI classification
// switched off the keyword result is returned and the report is left untouched.
func (p *Pipeline) Classify(ctx context.Context, id string) (ClassifyResult, error) {
	r, err := p.store.GetReport(ctx, id)
	if err != nil {
		return ClassifyResult{}, err
	}

	if !p.opts.ClassificationEnabled {
		fb := classify.Fallback(r.Description)
		metrics.ClassificationsTotal.WithLabelValues(SourceDisabled).Inc()
		return ClassifyResult{
			Category:  string(fb.Category),
			Severity:  string(fb.Severity),
			Simulated: true,
			Source:    SourceDisabled,
		}, nil
	}

	res := p.classifier.Classify(ctx, r.Description)
	if err := p.store.UpdateClassification(ctx, id, string(res.Category), string(res.Severity), r.Status.Advance(database.StatusClassified)); err != nil {
		return ClassifyResult{}, fmt.Errorf("failed to store classification: %w", err)
	}

	p.log.InfoContext(ctx, "Report classified", "report_id", id, "category", res.Category, "severity", res.Severity, "source", res.Source)
	return ClassifyResult{
		Category:   string(res.Category),
		Severity:   string(res.Severity),
		Simulated:  res.Simulated,
		AIEnhanced: res.Source == classify.SourceAI,
		Source:     res.Source,
		Stored:     true,
	}, nil
}

// Notify emails the authority about report id. A report that already has a
// real email is not sent again.
func (p *Pipeline) Notify(ctx context.Context, id string) (NotifyResult, error) {
	r, err := p.store.GetReport(ctx, id)
	if err != nil {
		return NotifyResult{}, err
	}
	if r.HasRealEmail() {
		metrics.EmailsTotal.WithLabelValues("already_sent").Inc()
		return NotifyResult{MessageID: r.EmailMessageID.String, AlreadySent: true}, nil
	}

	now := p.clock.Now()
	if !p.opts.EmailEnabled {
		outcome := database.Outcome{
			ExternalID: database.SimulatedMessageID,
			Simulated:  true,
			At:         now,
			Status:     r.Status.Advance(database.StatusNotified),
		}
		if err := p.store.MarkEmailed(ctx, id, outcome); err != nil {
			return NotifyResult{}, fmt.Errorf("failed to store simulated email: %w", err)
		}
		metrics.EmailsTotal.WithLabelValues("simulated").Inc()
		return NotifyResult{Simulated: true, TweetQueued: p.queueTweet(ctx, id)}, nil
	}

	if p.notifier == nil {
		metrics.EmailsTotal.WithLabelValues("not_configured").Inc()
		return NotifyResult{}, mail.ErrNotConfigured
	}

	messageID, draft, err := p.notifier.Send(ctx, r)
	if err != nil {
		metrics.EmailsTotal.WithLabelValues("failed").Inc()
		p.log.WarnContext(ctx, "Authority email failed", "report_id", id, "error", err)
		return NotifyResult{}, fmt.Errorf("%w: %w", ErrEmailFailed, err)
	}

	outcome := database.Outcome{
		ExternalID: messageID,
		At:         p.clock.Now(),
		Status:     r.Status.Advance(database.StatusNotified),
	}
	if err := p.store.MarkEmailed(ctx, id, outcome); err != nil {
		return NotifyResult{}, fmt.Errorf("failed to store email outcome: %w", err)
	}
	metrics.EmailsTotal.WithLabelValues("sent").Inc()

	return NotifyResult{
		MessageID:   messageID,
		Subject:     draft.Subject,
		AIEnhanced:  draft.AIEnhanced,
		TweetQueued: p.queueTweet(ctx, id),
	}, nil
}

// Tweet posts report id. A report with a real tweet is not posted again; a
// simulated one may be replaced by a real post. Refusals are *tweet.Rejection.
func (p *Pipeline) Tweet(ctx context.Context, id string) (TweetResult, error) {
	r, err := p.store.GetReport(ctx, id)
	if err != nil {
		return TweetResult{}, err
	}
	if r.HasRealTweet() {
		metrics.TweetsTotal.WithLabelValues("already_posted").Inc()
		return TweetResult{TweetID: r.TweetID.String, AlreadyPosted: true}, nil
	}

	res, err := p.publisher.Publish(ctx, r)
	if err != nil {
		var rej *tweet.Rejection
		if errors.As(err, &rej) {
			metrics.TweetsTotal.WithLabelValues(rej.Reason).Inc()
		} else {
			metrics.TweetsTotal.WithLabelValues("failed").Inc()
		}
		return TweetResult{}, err
	}

	outcome := database.Outcome{
		ExternalID: res.TweetID,
		Simulated:  res.Simulated,
		At:         res.At,
		Status:     r.Status.Advance(database.StatusTweeted),
	}
	if err := p.store.MarkTweeted(ctx, id, outcome); err != nil {
		return TweetResult{}, fmt.Errorf("failed to store tweet outcome: %w", err)
	}
	if res.Simulated {
		metrics.TweetsTotal.WithLabelValues("simulated").Inc()
	} else {
		metrics.TweetsTotal.WithLabelValues("posted").Inc()
	}

	return TweetResult{
		TweetID:    res.TweetID,
		Text:       res.Text,
		Simulated:  res.Simulated,
		AIEnhanced: res.AIEnhanced,
	}, nil
}

// queueTweet starts the tweet step in the background when auto tweeting is on.
// The work outlives the request but not its own timeout.
func (p *Pipeline) queueTweet(ctx context.Context, id string) bool {
	if !p.opts.AutoTweet {
		return false
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.BackgroundTimeout)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		res, err := p.Tweet(bg, id)
		if err != nil {
			p.log.WarnContext(bg, "Background tweet failed", "report_id", id, "error", err)
			return
		}
		p.log.InfoContext(bg, "Background tweet done", "report_id", id, "tweet_id", res.TweetID, "simulated", res.Simulated)
	}()
	return true
}

// Wait blocks until all background work has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
