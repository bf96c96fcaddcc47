// Package sqlitestore provides a SQLite session storage implementation
// using the pure Go modernc.org/sqlite driver, so no cgo is required.
package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bluescreen10/sessionx/session"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var (
	_ session.Store     = (*SQLiteStore)(nil)
	_ session.Collector = (*SQLiteStore)(nil)
	_ session.Lister    = (*SQLiteStore)(nil)
)

// SQLiteStore is a SQLite backed storage for session data.
type SQLiteStore struct {
	db  *sqlx.DB
	log zerolog.Logger
}

type config func(*SQLiteStore)

// WithLogger sets the logger used to report cleanup failures.
func WithLogger(l zerolog.Logger) config {
	return func(s *SQLiteStore) {
		s.log = l
	}
}

// Open opens the database file at path and wraps it with New.
func Open(path string, opts ...config) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates and returns a new SQLiteStore on an already open database.
// If the sessions table doesn't exists it is created.
func New(db *sqlx.DB, opts ...config) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, log: log.Logger}
	for _, opt := range opts {
		opt(s)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create sessions schema: %w", err)
	}

	return s, nil
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error.
func (s *SQLiteStore) Get(token string) ([]byte, bool, error) {
	var data []byte
	query := `SELECT data FROM sessions WHERE token = ? AND expires_at > ?`
	err := s.db.Get(&data, query, token, time.Now().UnixNano())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}
	return data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. The
// expiresAt parameter specifies when the record should be considered expired.
func (s *SQLiteStore) Set(token string, data []byte, expiresAt time.Time) error {
	query := `INSERT OR REPLACE INTO sessions (token, data, expires_at) VALUES (?, ?, ?)`
	if _, err := s.db.Exec(query, token, data, expiresAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// Delete removes the data associated with the given token.
func (s *SQLiteStore) Delete(token string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Tokens returns the tokens of every session that hasn't expired.
func (s *SQLiteStore) Tokens() ([]string, error) {
	var tokens []string
	err := s.db.Select(&tokens, `SELECT token FROM sessions WHERE expires_at > ?`, time.Now().UnixNano())
	return tokens, err
}

// PeriodicCleanUp runs a loop that periodically deletes expired sessions.
// The cleanup runs every interval duration until a value is received on
// the stop channel, at which point the loop returns.
func (s *SQLiteStore) PeriodicCleanUp(interval time.Duration, stop <-chan (struct{})) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.DeleteExpired(); err != nil {
				s.log.Error().Err(err).Msg("sqlitestore: cleanup failed")
			}
		case <-stop:
			return
		}
	}
}

// DeleteExpired removes all expired rows.
func (s *SQLiteStore) DeleteExpired() error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UnixNano())
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
