// Package pgxstore provides a PostgreSQL session storage implementation
// built on a pgx connection pool.
package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluescreen10/sessionx/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	_ session.Store     = (*PGXStore)(nil)
	_ session.Collector = (*PGXStore)(nil)
	_ session.Lister    = (*PGXStore)(nil)
)

// PGXStore is a PostgreSQL backed storage for session data.
type PGXStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

type config func(*PGXStore)

// WithLogger sets the logger used to report cleanup failures.
func WithLogger(l zerolog.Logger) config {
	return func(s *PGXStore) {
		s.log = l
	}
}

// New creates and returns a new PGXStore instance.
// If the sessions table doesn't exists it is created.
func New(ctx context.Context, pool *pgxpool.Pool, opts ...config) (*PGXStore, error) {
	s := &PGXStore{pool: pool, log: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, createTable(ctx, pool)
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error.
func (s *PGXStore) Get(token string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(context.Background(),
		`SELECT data FROM sessions WHERE token = $1 AND now() < expires_at`, token,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. The
// expiresAt parameter specifies when the record should be considered expired.
func (s *PGXStore) Set(token string, data []byte, expiresAt time.Time) error {
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO sessions (token, data, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
	`, token, data, expiresAt)
	return err
}

// Delete removes the data associated with the given token.
func (s *PGXStore) Delete(token string) error {
	_, err := s.pool.Exec(context.Background(), `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// Tokens returns the tokens of every session that hasn't expired.
func (s *PGXStore) Tokens() ([]string, error) {
	rows, err := s.pool.Query(context.Background(), `SELECT token FROM sessions WHERE now() < expires_at`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// PeriodicCleanUp runs a loop that periodically deletes expired sessions.
// The cleanup runs every interval duration until a value is received on
// the stop channel, at which point the loop returns.
func (s *PGXStore) PeriodicCleanUp(interval time.Duration, stop <-chan (struct{})) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.DeleteExpired(); err != nil {
				s.log.Error().Err(err).Msg("pgxstore: cleanup failed")
			}
		case <-stop:
			return
		}
	}
}

// DeleteExpired removes all expired rows.
func (s *PGXStore) DeleteExpired() error {
	_, err := s.pool.Exec(context.Background(), `DELETE FROM sessions WHERE expires_at <= now()`)
	return err
}

func createTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}
