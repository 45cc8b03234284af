package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a report or state entry does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreateReport inserts a new report. CreatedAt, UpdatedAt and Status are filled in when empty.
	CreateReport(ctx context.Context, report *Report) error

	// GetReport retrieves a report by id. Returns ErrNotFound if absent.
	GetReport(ctx context.Context, id string) (*Report, error)

	// ListReports retrieves the newest reports first, capped at limit.
	ListReports(ctx context.Context, limit int) ([]Report, error)

	// UpdateClassification stores category and severity on a report.
	UpdateClassification(ctx context.Context, id, category, severity string, status Status) error

	// MarkEmailed stores the outcome of the email step.
	MarkEmailed(ctx context.Context, id string, outcome Outcome) error

	// MarkTweeted stores the outcome of the tweet step.
	MarkTweeted(ctx context.Context, id string, outcome Outcome) error

	// CountRealTweetsSince counts non-simulated tweets sent at or after since.
	CountRealTweetsSince(ctx context.Context, since time.Time) (int, error)

	// GetState returns the raw value stored under key. Returns ErrNotFound if absent.
	GetState(ctx context.Context, key string) ([]byte, error)

	// PutState replaces the value stored under key.
	PutState(ctx context.Context, key string, value []byte) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const reportColumns = `id, created_at, updated_at, description, lat, lng, photo_ref, photo_content_type,
        status, category, severity, emailed_at, email_message_id, email_simulated,
        tweeted_at, tweet_id, tweet_simulated`

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) CreateReport(ctx context.Context, report *Report) error {
	if report == nil {
		return fmt.Errorf("cannot save nil report")
	}
	if report.ID == "" {
		return fmt.Errorf("report must have an id")
	}
	if report.Description == "" {
		return fmt.Errorf("report must have a description")
	}

	now := s.now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.CreatedAt = report.CreatedAt.UTC()
	report.UpdatedAt = now
	if report.Status == "" {
		report.Status = StatusNew
	}

	query := `
        INSERT INTO reports (` + reportColumns + `)
        VALUES (:id, :created_at, :updated_at, :description, :lat, :lng, :photo_ref, :photo_content_type,
                :status, :category, :severity, :emailed_at, :email_message_id, :email_simulated,
                :tweeted_at, :tweet_id, :tweet_simulated);
    `

	if _, err := s.db.NamedExecContext(ctx, query, report); err != nil {
		s.logger.ErrorContext(ctx, "Error saving report", "report_id", report.ID, "error", err)
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}

	s.logger.DebugContext(ctx, "Report saved successfully", "report_id", report.ID)
	return nil
}

func (s *sqlxStore) GetReport(ctx context.Context, id string) (*Report, error) {
	if id == "" {
		return nil, fmt.Errorf("report id cannot be empty")
	}

	var report Report
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = ?;`
	if err := s.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		s.logger.ErrorContext(ctx, "Failed to get report", "report_id", id, "error", err)
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return &report, nil
}

func (s *sqlxStore) ListReports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 50
	} else if limit > 100 {
		limit = 100
	}

	reports := []Report{}
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC LIMIT ?;`
	if err := s.db.SelectContext(ctx, &reports, query, limit); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.WarnContext(ctx, "Timeout listing reports", "limit", limit)
		} else {
			s.logger.ErrorContext(ctx, "Failed to list reports", "limit", limit, "error", err)
		}
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

func (s *sqlxStore) UpdateClassification(ctx context.Context, id, category, severity string, status Status) error {
	query := `
        UPDATE reports
        SET category = ?, severity = ?, status = ?, updated_at = ?
        WHERE id = ?;
    `
	return s.updateOne(ctx, "classification", id, query, category, severity, status, s.now(), id)
}

func (s *sqlxStore) MarkEmailed(ctx context.Context, id string, outcome Outcome) error {
	query := `
        UPDATE reports
        SET emailed_at = ?, email_message_id = ?, email_simulated = ?, status = ?, updated_at = ?
        WHERE id = ?;
    `
	return s.updateOne(ctx, "email outcome", id, query,
		outcome.At.UTC(), outcome.ExternalID, outcome.Simulated, outcome.Status, s.now(), id)
}

func (s *sqlxStore) MarkTweeted(ctx context.Context, id string, outcome Outcome) error {
	query := `
        UPDATE reports
        SET tweeted_at = ?, tweet_id = ?, tweet_simulated = ?, status = ?, updated_at = ?
        WHERE id = ?;
    `
	return s.updateOne(ctx, "tweet outcome", id, query,
		outcome.At.UTC(), outcome.ExternalID, outcome.Simulated, outcome.Status, s.now(), id)
}

// updateOne runs a single-row update inside a transaction and returns ErrNotFound
// when no row matched.
func (s *sqlxStore) updateOne(ctx context.Context, what, id, query string, args ...any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "what", what, "report_id", id, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
		}
	}()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update report", "what", what, "report_id", id, "error", err)
		return fmt.Errorf("failed to update %s for report %s: %w", what, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "what", what, "report_id", id, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Report updated", "what", what, "report_id", id)
	return nil
}

func (s *sqlxStore) CountRealTweetsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reports WHERE tweeted_at >= ? AND tweet_simulated = 0;`
	if err := s.db.GetContext(ctx, &count, query, since.UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Failed to count tweets", "since", since, "error", err)
		return 0, fmt.Errorf("failed to count tweets since %s: %w", since.Format(time.RFC3339), err)
	}
	return count, nil
}

func (s *sqlxStore) GetState(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.db.GetContext(ctx, &value, `SELECT value FROM state_entries WHERE key = ?;`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read state %q: %w", key, err)
	}
	return value, nil
}

func (s *sqlxStore) PutState(ctx context.Context, key string, value []byte) error {
	query := `
        INSERT INTO state_entries (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;
    `
	if _, err := s.db.ExecContext(ctx, query, key, value, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write state", "key", key, "error", err)
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}
	return nil
}

// RunSQLMaintenance refreshes planner statistics and compacts the database file.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running SQL maintenance")

	for _, stmt := range []string{"PRAGMA optimize;", "VACUUM;"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				s.logger.WarnContext(ctx, "Timeout during SQL maintenance", "statement", stmt)
			}
			return fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}
	return nil
}
