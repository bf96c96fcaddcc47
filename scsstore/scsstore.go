// Package scsstore adapts any github.com/alexedwards/scs storage engine
// so it can back a session.Manager. Applications that already run scs
// can share its tables and connections.
//
//	db, _ := sql.Open("sqlite3", "sessions.db")
//	mngr := session.NewManager(scsstore.New(sqlite3store.New(db)))
package scsstore

import (
	"fmt"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/bluescreen10/sessionx/session"
)

var (
	_ session.Store  = (*SCSStore)(nil)
	_ session.Lister = (*SCSStore)(nil)
)

// SCSStore wraps an scs.Store.
type SCSStore struct {
	store scs.Store
}

// New wraps store.
func New(store scs.Store) *SCSStore {
	return &SCSStore{store: store}
}

// Get retrieves the data associated with the given token.
func (s *SCSStore) Get(token string) ([]byte, bool, error) {
	return s.store.Find(token)
}

// Set stores the data under the given token with an expiration time.
func (s *SCSStore) Set(token string, data []byte, expiresAt time.Time) error {
	return s.store.Commit(token, data, expiresAt)
}

// Delete removes the data associated with the given token.
func (s *SCSStore) Delete(token string) error {
	return s.store.Delete(token)
}

// Tokens lists the stored sessions when the wrapped engine implements
// scs.IterableStore. Otherwise it returns session.ErrNotSupported.
func (s *SCSStore) Tokens() ([]string, error) {
	it, ok := s.store.(scs.IterableStore)
	if !ok {
		return nil, fmt.Errorf("scsstore: %T cannot list sessions: %w", s.store, session.ErrNotSupported)
	}

	all, err := it.All()
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(all))
	for token := range all {
		tokens = append(tokens, token)
	}
	return tokens, nil
}
