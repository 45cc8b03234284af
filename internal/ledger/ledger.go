// Package ledger records which Twitter mentions have already been handled so
// that no mention ever receives a second reply.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/civicbot/internal/statefile"
)

// StateKey is the bookkeeping record the ledger persists under.
const StateKey = "processed-tweets"

// DefaultRetention is how long processed entries are remembered.
const DefaultRetention = 7 * 24 * time.Hour

// Entry marks one mention as processed. RepliedAt is nil when the reply failed.
type Entry struct {
	TweetID     string     `json:"tweetId"`
	ProcessedAt time.Time  `json:"processedAt"`
	RepliedAt   *time.Time `json:"repliedAt,omitempty"`
}

// Entries is a loaded ledger. It is small enough to scan linearly.
type Entries []Entry

// Has reports whether tweetID was already processed.
func (es Entries) Has(tweetID string) bool {
	for _, e := range es {
		if e.TweetID == tweetID {
			return true
		}
	}
	return false
}

// Replied counts entries that carry a reply timestamp.
func (es Entries) Replied() int {
	n := 0
	for _, e := range es {
		if e.RepliedAt != nil {
			n++
		}
	}
	return n
}

type document struct {
	ProcessedTweets Entries   `json:"processedTweets"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// Ledger loads and saves the processed-tweet record.
type Ledger struct {
	store     statefile.Store
	clock     clockwork.Clock
	retention time.Duration
}

// New creates a Ledger. A zero retention uses DefaultRetention.
func New(store statefile.Store, retention time.Duration, clock clockwork.Clock) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{store: store, clock: clock, retention: retention}
}

// Load returns the entries newer than the retention window.
// A missing record yields an empty ledger.
func (l *Ledger) Load(ctx context.Context) (Entries, error) {
	var doc document
	if err := l.store.Load(ctx, StateKey, &doc); err != nil {
		if errors.Is(err, statefile.ErrNotFound) {
			return Entries{}, nil
		}
		return nil, fmt.Errorf("failed to load processed tweets: %w", err)
	}
	return l.prune(doc.ProcessedTweets), nil
}

// Save prunes and persists entries.
func (l *Ledger) Save(ctx context.Context, entries Entries) error {
	doc := document{ProcessedTweets: l.prune(entries), LastUpdated: l.clock.Now()}
	if err := l.store.Save(ctx, StateKey, doc); err != nil {
		return fmt.Errorf("failed to save processed tweets: %w", err)
	}
	return nil
}

// Compact rewrites the stored ledger without expired entries and returns how many were dropped.
func (l *Ledger) Compact(ctx context.Context) (int, error) {
	var doc document
	if err := l.store.Load(ctx, StateKey, &doc); err != nil {
		if errors.Is(err, statefile.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load processed tweets: %w", err)
	}
	kept := l.prune(doc.ProcessedTweets)
	if err := l.Save(ctx, kept); err != nil {
		return 0, err
	}
	return len(doc.ProcessedTweets) - len(kept), nil
}

func (l *Ledger) prune(entries Entries) Entries {
	cutoff := l.clock.Now().Add(-l.retention)
	kept := make(Entries, 0, len(entries))
	for _, e := range entries {
		if e.ProcessedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}
