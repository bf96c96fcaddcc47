// Package gormstore provides a gorm session storage implementation.
//
// GORMStore keeps sessions in a table managed through gorm, so any
// dialect gorm supports can hold them. Expired rows are ignored on read
// and removed by DeleteExpired or PeriodicCleanUp.
package gormstore

import (
	"time"

	"github.com/bluescreen10/sessionx/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	_ session.Store     = (*GORMStore)(nil)
	_ session.Collector = (*GORMStore)(nil)
	_ session.Lister    = (*GORMStore)(nil)
)

// GORMStore is a gorm backed storage for session data.
type GORMStore struct {
	db  *gorm.DB
	log zerolog.Logger
}

// record is a single stored session row.
type record struct {
	Token     string `gorm:"primaryKey;type:varchar(64)"`
	Data      []byte
	ExpiresAt time.Time `gorm:"index"`
}

func (record) TableName() string {
	return "sessions"
}

type config func(*GORMStore)

// WithLogger sets the logger used to report cleanup failures.
func WithLogger(l zerolog.Logger) config {
	return func(s *GORMStore) {
		s.log = l
	}
}

// New creates and returns a new GORMStore instance.
// If the sessions table doesn't exists it is created.
func New(db *gorm.DB, opts ...config) (*GORMStore, error) {
	s := &GORMStore{db: db, log: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, db.AutoMigrate(&record{})
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error.
func (s *GORMStore) Get(token string) ([]byte, bool, error) {
	rec := &record{}
	tx := s.db.Where("token = ? AND expires_at >= ?", token, time.Now()).Limit(1).Find(rec)
	if tx.Error != nil || tx.RowsAffected == 0 {
		return nil, false, tx.Error
	}

	return rec.Data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. The
// expiresAt parameter specifies when the record should be considered expired.
func (s *GORMStore) Set(token string, data []byte, expiresAt time.Time) error {
	rec := &record{}
	tx := s.db.Where(record{Token: token}).Assign(record{Data: data, ExpiresAt: expiresAt}).FirstOrCreate(rec)
	return tx.Error
}

// Delete removes the data associated with the given token.
func (s *GORMStore) Delete(token string) error {
	tx := s.db.Delete(&record{}, "token = ?", token)
	return tx.Error
}

// Tokens returns the tokens of every session that hasn't expired.
func (s *GORMStore) Tokens() ([]string, error) {
	var tokens []string
	tx := s.db.Model(&record{}).Where("expires_at >= ?", time.Now()).Pluck("token", &tokens)
	return tokens, tx.Error
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
func (s *GORMStore) PeriodicCleanUp(interval time.Duration, stop <-chan (struct{})) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.DeleteExpired(); err != nil {
				s.log.Error().Err(err).Msg("gormstore: cleanup failed")
			}
		case <-stop:
			return
		}
	}
}

// DeleteExpired removes all expired rows.
func (s *GORMStore) DeleteExpired() error {
	return s.db.Delete(&record{}, "expires_at < ?", time.Now()).Error
}
