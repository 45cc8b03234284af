package database

import (
	"database/sql"
	"time"
)

// Status is the lifecycle stage of a report.
type Status string

// Report statuses, in progression order.
const (
	StatusNew        Status = "NEW"
	StatusClassified Status = "CLASSIFIED"
	StatusNotified   Status = "NOTIFIED"
	StatusTweeted    Status = "TWEETED"
)

var statusRank = map[Status]int{
	StatusNew:        0,
	StatusClassified: 1,
	StatusNotified:   2,
	StatusTweeted:    3,
}

// Advance returns next if it is further along the lifecycle than s, otherwise s.
// Pipeline steps may run out of order or be retried; status never moves backwards.
func (s Status) Advance(next Status) Status {
	if statusRank[next] > statusRank[s] {
		return next
	}
	return s
}

// SimulatedMessageID is stored as the email message id when sending is disabled.
const SimulatedMessageID = "simulated"

// Report represents one citizen submission and the outcome of every
// pipeline step applied to it.
type Report struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Description      string  `db:"description"`
	Lat              float64 `db:"lat"`
	Lng              float64 `db:"lng"`
	PhotoRef         string  `db:"photo_ref"`
	PhotoContentType string  `db:"photo_content_type"`
	Status           Status  `db:"status"`

	Category sql.NullString `db:"category"`
	Severity sql.NullString `db:"severity"`

	EmailedAt      sql.NullTime   `db:"emailed_at"`
	EmailMessageID sql.NullString `db:"email_message_id"`
	EmailSimulated bool           `db:"email_simulated"`

	TweetedAt      sql.NullTime   `db:"tweeted_at"`
	TweetID        sql.NullString `db:"tweet_id"`
	TweetSimulated bool           `db:"tweet_simulated"`
}

// HasRealEmail reports whether an email was actually delivered for the report.
func (r *Report) HasRealEmail() bool {
	return r.EmailedAt.Valid && !r.EmailSimulated
}

// HasRealTweet reports whether a tweet was actually posted for the report.
func (r *Report) HasRealTweet() bool {
	return r.TweetedAt.Valid && r.TweetID.Valid && !r.TweetSimulated
}

// Outcome is the result of an email or tweet step written back onto a report.
type Outcome struct {
	ExternalID string
	Simulated  bool
	At         time.Time
	Status     Status
}
