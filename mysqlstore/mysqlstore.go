// Package mysqlstore provides a MySQL session storage implementation.
//
// MySQLStore keeps sessions in a "sessions" table using database/sql.
// Any MySQL compatible driver works; github.com/go-sql-driver/mysql is
// the usual choice. Expired rows are ignored on read and removed by
// DeleteExpired or PeriodicCleanUp.
package mysqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bluescreen10/sessionx/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	_ session.Store     = (*MySQLStore)(nil)
	_ session.Collector = (*MySQLStore)(nil)
	_ session.Lister    = (*MySQLStore)(nil)
)

// MySQLStore is a MySQL backed storage for session data.
type MySQLStore struct {
	db  *sql.DB
	log zerolog.Logger
}

type config func(*MySQLStore)

// WithLogger sets the logger used to report cleanup failures.
func WithLogger(l zerolog.Logger) config {
	return func(s *MySQLStore) {
		s.log = l
	}
}

// New creates and returns a new MySQLStore instance.
// If the sessions table doesn't exists it is created.
func New(db *sql.DB, opts ...config) (*MySQLStore, error) {
	s := &MySQLStore{db: db, log: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, createTable(db)
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error.
func (s *MySQLStore) Get(token string) ([]byte, bool, error) {
	stmt := "SELECT data FROM sessions WHERE token = ? AND UTC_TIMESTAMP(6) < expires_at"
	row := s.db.QueryRow(stmt, token)

	var data []byte
	err := row.Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. The
// expiresAt parameter specifies when the record should be considered expired.
func (s *MySQLStore) Set(token string, data []byte, expiresAt time.Time) error {
	stmt := "INSERT INTO sessions(token, data, expires_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data), expires_at = VALUES(expires_at)"
	_, err := s.db.Exec(stmt, token, data, expiresAt.UTC())
	return err
}

// Delete removes the data associated with the given token.
func (s *MySQLStore) Delete(token string) error {
	stmt := "DELETE FROM sessions WHERE token = ?"
	_, err := s.db.Exec(stmt, token)
	return err
}

// Tokens returns the tokens of every session that hasn't expired.
func (s *MySQLStore) Tokens() ([]string, error) {
	rows, err := s.db.Query("SELECT token FROM sessions WHERE UTC_TIMESTAMP(6) < expires_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// PeriodicCleanUp runs a loop that periodically deletes expired sessions.
// The cleanup runs every interval duration until a value is received on
// the stop channel, at which point the loop returns.
//
// Example usage:
//
//	stop := make(chan struct{})
//	go store.PeriodicCleanUp(time.Minute, stop)
//	...
//	close(stop) // stop the cleanup
func (s *MySQLStore) PeriodicCleanUp(interval time.Duration, stop <-chan (struct{})) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.DeleteExpired(); err != nil {
				s.log.Error().Err(err).Msg("mysqlstore: cleanup failed")
			}
		case <-stop:
			return
		}
	}
}

// DeleteExpired removes all expired rows.
func (s *MySQLStore) DeleteExpired() error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE UTC_TIMESTAMP(6) > expires_at")
	return err
}

func createTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
			token VARCHAR(64) COLLATE utf8mb4_bin PRIMARY KEY,
			data BLOB NOT NULL,
			expires_at TIMESTAMP(6) NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}
