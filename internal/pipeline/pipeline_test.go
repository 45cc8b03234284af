package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/civicbot/internal/classify"
	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/mail"
	"github.com/edgard/civicbot/internal/notify"
	"github.com/edgard/civicbot/internal/tweet"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixedClassifier classify.Result

func (f fixedClassifier) Classify(context.Context, string) classify.Result {
	return classify.Result(f)
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends int
	err   error
}

func (f *fakeNotifier) Send(context.Context, *database.Report) (string, notify.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.err != nil {
		return "", notify.Draft{}, f.err
	}
	return "msg-1@civicbot", notify.Draft{Subject: "Report: pothole", AIEnhanced: true}, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	res   tweet.Result
	err   error
}

func (f *fakePublisher) Publish(context.Context, *database.Report) (tweet.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	p         *Pipeline
	store     database.Store
	notifier  *fakeNotifier
	publisher *fakePublisher
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	f := &fixture{
		store:    database.NewStore(db, discard),
		notifier: &fakeNotifier{},
		publisher: &fakePublisher{res: tweet.Result{
			TweetID: "sim-1775030400000", Text: "🕳️ Pothole", Simulated: true, At: clock.Now(),
		}},
		clock: clock,
	}
	classifier := fixedClassifier{Category: classify.Pothole, Severity: classify.High, Source: classify.SourceAI}
	f.p = New(opts, f.store, classifier, f.notifier, f.publisher, clock, discard)
	return f
}

func (f *fixture) seed(t *testing.T) *database.Report {
	t.Helper()
	r := &database.Report{
		ID:          "r-1",
		Description: "Large pothole on MG Road",
		Lat:         12.9716,
		Lng:         77.5946,
		PhotoRef:    "1.jpg",
	}
	require.NoError(t, f.store.CreateReport(context.Background(), r))
	return r
}

func (f *fixture) get(t *testing.T, id string) *database.Report {
	t.Helper()
	r, err := f.store.GetReport(context.Background(), id)
	require.NoError(t, err)
	return r
}

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("disabled leaves the report untouched", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{})
		r := f.seed(t)

		res, err := f.p.Classify(context.Background(), r.ID)
		require.NoError(t, err)
		assert.True(t, res.Simulated)
		assert.True(t, res.Degraded())
		assert.False(t, res.Stored)
		assert.Equal(t, "pothole", res.Category)

		got := f.get(t, r.ID)
		assert.False(t, got.Category.Valid)
		assert.Equal(t, database.StatusNew, got.Status)
	})

	t.Run("enabled stores and advances", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{ClassificationEnabled: true})
		r := f.seed(t)

		res, err := f.p.Classify(context.Background(), r.ID)
		require.NoError(t, err)
		assert.True(t, res.AIEnhanced)
		assert.False(t, res.Degraded())

		got := f.get(t, r.ID)
		assert.Equal(t, "pothole", got.Category.String)
		assert.Equal(t, "high", got.Severity.String)
		assert.Equal(t, database.StatusClassified, got.Status)
	})

	t.Run("unknown report", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{ClassificationEnabled: true})
		_, err := f.p.Classify(context.Background(), "missing")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestClassifyResultDegraded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source string
		want   bool
	}{
		{source: SourceDisabled, want: true},
		{source: classify.SourceCapped, want: true},
		{source: classify.SourceFallback, want: false},
		{source: classify.SourceAI, want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyResult{Source: tt.source}.Degraded(), tt.source)
	}
}

func TestNotify(t *testing.T) {
	t.Parallel()

	t.Run("disabled simulates", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{})
		r := f.seed(t)

		res, err := f.p.Notify(context.Background(), r.ID)
		require.NoError(t, err)
		assert.True(t, res.Simulated)
		assert.Zero(t, f.notifier.sends)

		got := f.get(t, r.ID)
		assert.Equal(t, database.SimulatedMessageID, got.EmailMessageID.String)
		assert.True(t, got.EmailSimulated)
		assert.Equal(t, database.StatusNotified, got.Status)
	})

	t.Run("sends once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{EmailEnabled: true})
		r := f.seed(t)
		ctx := context.Background()

		first, err := f.p.Notify(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "msg-1@civicbot", first.MessageID)
		assert.True(t, first.AIEnhanced)

		second, err := f.p.Notify(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, second.AlreadySent)
		assert.Equal(t, "msg-1@civicbot", second.MessageID)
		assert.Equal(t, 1, f.notifier.sends)
	})

	t.Run("real send replaces a simulated one", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{})
		r := f.seed(t)
		ctx := context.Background()
		_, err := f.p.Notify(ctx, r.ID)
		require.NoError(t, err)

		f.p.opts.EmailEnabled = true
		res, err := f.p.Notify(ctx, r.ID)
		require.NoError(t, err)
		assert.False(t, res.AlreadySent)
		assert.False(t, f.get(t, r.ID).EmailSimulated)
	})

	t.Run("delivery failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{EmailEnabled: true})
		f.notifier.err = errors.New("dial tcp: connection refused")
		r := f.seed(t)

		_, err := f.p.Notify(context.Background(), r.ID)
		assert.ErrorIs(t, err, ErrEmailFailed)
		assert.False(t, f.get(t, r.ID).EmailedAt.Valid)
	})

	t.Run("no transport", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{EmailEnabled: true})
		p := New(Options{EmailEnabled: true}, f.store, nil, nil, f.publisher, f.clock, discard)
		r := f.seed(t)

		_, err := p.Notify(context.Background(), r.ID)
		assert.ErrorIs(t, err, mail.ErrNotConfigured)
	})
}

func TestTweet(t *testing.T) {
	t.Parallel()

	t.Run("simulated tweet is stored", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{})
		r := f.seed(t)

		res, err := f.p.Tweet(context.Background(), r.ID)
		require.NoError(t, err)
		assert.True(t, res.Simulated)

		got := f.get(t, r.ID)
		assert.True(t, got.TweetedAt.Valid)
		assert.Equal(t, "sim-1775030400000", got.TweetID.String)
		assert.True(t, got.TweetSimulated)
		assert.Equal(t, database.StatusTweeted, got.Status)
	})

	t.Run("real tweet is not reposted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{})
		f.publisher.res = tweet.Result{TweetID: "1790", Text: "x", At: f.clock.Now()}
		r := f.seed(t)
		ctx := context.Background()

		_, err := f.p.Tweet(ctx, r.ID)
		require.NoError(t, err)
		res, err := f.p.Tweet(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, res.AlreadyPosted)
		assert.Equal(t, "1790", res.TweetID)
		assert.Equal(t, 1, f.publisher.count())
	})

	t.Run("rejection leaves the report untouched", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{})
		f.publisher.err = &tweet.Rejection{Status: http.StatusTooManyRequests, Reason: tweet.ReasonDailyLimit}
		r := f.seed(t)

		_, err := f.p.Tweet(context.Background(), r.ID)
		var rej *tweet.Rejection
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, tweet.ReasonDailyLimit, rej.Reason)
		assert.False(t, f.get(t, r.ID).TweetedAt.Valid)
	})

	t.Run("status never regresses", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Options{ClassificationEnabled: true})
		r := f.seed(t)
		ctx := context.Background()

		_, err := f.p.Tweet(ctx, r.ID)
		require.NoError(t, err)
		_, err = f.p.Classify(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, database.StatusTweeted, f.get(t, r.ID).Status)
	})
}

func TestAutoTweetRunsInBackground(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{AutoTweet: true, BackgroundTimeout: time.Second})
	r := f.seed(t)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := f.p.Notify(ctx, r.ID)
	cancel()
	require.NoError(t, err)
	assert.True(t, res.TweetQueued)

	f.p.Wait()
	assert.Equal(t, 1, f.publisher.count())
	assert.True(t, f.get(t, r.ID).TweetedAt.Valid)
}
