package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Store manages user profiles in PostgreSQL behind a managed connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL using the given connection string, verifies the
// connection, and returns a Store. Pool limits are tuned for a single chat
// server process.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("profile: open: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. Used by tests and by the report
// store so both share one pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying pool for collaborators that share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves a profile by user ID. Returns nil if the user is unknown.
func (s *Store) Get(ctx context.Context, userID int64) (*Profile, error) {
	const query = `
		SELECT user_id, username, COALESCE(gender, ''), COALESCE(age, 0),
		       COALESCE(region, ''), COALESCE(looking_for, ''), premium, banned
		FROM users
		WHERE user_id = $1`

	var p Profile
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Username, &p.Gender, &p.Age,
		&p.Region, &p.LookingFor, &p.Premium, &p.Banned,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get %d: %w", userID, err)
	}
	return &p, nil
}

// CreateIfAbsent inserts a blank profile for the user unless one exists.
func (s *Store) CreateIfAbsent(ctx context.Context, userID int64, username string) error {
	const query = `
		INSERT INTO users (user_id, username)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, userID, username); err != nil {
		return fmt.Errorf("profile: create %d: %w", userID, err)
	}
	return nil
}

// IsBanned reports whether the user's banned flag is set. Unknown users are
// not banned.
func (s *Store) IsBanned(ctx context.Context, userID int64) (bool, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return p != nil && p.Banned, nil
}

// SetGender updates the gender field.
func (s *Store) SetGender(ctx context.Context, userID int64, gender string) error {
	return s.setField(ctx, userID, "gender", gender)
}

// SetAge updates the age field.
func (s *Store) SetAge(ctx context.Context, userID int64, age int) error {
	return s.setField(ctx, userID, "age", age)
}

// SetRegion updates the region field.
func (s *Store) SetRegion(ctx context.Context, userID int64, region string) error {
	return s.setField(ctx, userID, "region", region)
}

// SetLookingFor updates the partner preference field.
func (s *Store) SetLookingFor(ctx context.Context, userID int64, lookingFor string) error {
	return s.setField(ctx, userID, "looking_for", lookingFor)
}

// SetPremium flips the premium flag.
func (s *Store) SetPremium(ctx context.Context, userID int64, premium bool) error {
	return s.setField(ctx, userID, "premium", premium)
}

// SetBanned flips the banned flag.
func (s *Store) SetBanned(ctx context.Context, userID int64, banned bool) error {
	return s.setField(ctx, userID, "banned", banned)
}

// setField updates a single column. The column name is always one of the
// fixed strings above, never caller input.
func (s *Store) setField(ctx context.Context, userID int64, column string, value interface{}) error {
	query := fmt.Sprintf("UPDATE users SET %s = $1 WHERE user_id = $2", column)
	if _, err := s.db.ExecContext(ctx, query, value, userID); err != nil {
		return fmt.Errorf("profile: set %s for %d: %w", column, userID, err)
	}
	return nil
}
