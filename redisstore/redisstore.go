// Package redisstore provides a redis session storage implementation.
//
// RedisStore keeps each session under its own key and lets redis expire
// it through the key TTL, so no periodic cleanup is needed.
package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bluescreen10/sessionx/session"
	"github.com/redis/go-redis/v9"
)

var (
	_ session.Store  = (*RedisStore)(nil)
	_ session.Lister = (*RedisStore)(nil)
)

// DefaultPrefix is prepended to every token unless WithPrefix is used.
const DefaultPrefix = "session:"

// RedisStore is a redis backed storage for session data.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type config func(*RedisStore)

// WithPrefix sets the key prefix used for every session key.
func WithPrefix(prefix string) config {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// New creates and returns a new RedisStore instance.
func New(rdb redis.UniversalClient, opts ...config) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error.
func (s *RedisStore) Get(token string) ([]byte, bool, error) {
	data, err := s.rdb.Get(context.Background(), s.prefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []byte{}, false, nil
		}
		return []byte{}, false, err
	}

	return data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. A
// record whose expiration is already in the past is removed instead.
func (s *RedisStore) Set(token string, data []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(token)
	}
	return s.rdb.Set(context.Background(), s.prefix+token, data, ttl).Err()
}

// Delete removes the data associated with the given token. If the token
// does not exist, this is a no-op.
func (s *RedisStore) Delete(token string) error {
	return s.rdb.Del(context.Background(), s.prefix+token).Err()
}

// Tokens returns the tokens of every stored session. Keys are walked
// with SCAN so large keyspaces don't block the server.
func (s *RedisStore) Tokens() ([]string, error) {
	ctx := context.Background()
	var tokens []string

	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		tokens = append(tokens, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}
