// Package report provides PostgreSQL-backed storage for abuse reports.
// Reports are append-only; the chat core writes them and never reads them
// back; they exist for moderator review.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultReason is recorded when a reporter gives no explicit reason.
const DefaultReason = "inappropriate behavior"

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a report store over an existing database handle (shared
// with the profile store's pool).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create appends a report filed by reporterID against targetID.
func (s *Store) Create(ctx context.Context, reporterID, targetID int64, reason string) error {
	if reason == "" {
		reason = DefaultReason
	}

	const query = `
		INSERT INTO reports (reporter_id, target_id, reason)
		VALUES ($1, $2, $3)`

	if _, err := s.db.ExecContext(ctx, query, reporterID, targetID, reason); err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reports filed against targetID within
// the given window. Useful for moderator tooling and future auto-ban logic.
func (s *Store) CountRecent(ctx context.Context, targetID int64, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM reports
		WHERE target_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	if err := s.db.QueryRowContext(ctx, query, targetID, window.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
