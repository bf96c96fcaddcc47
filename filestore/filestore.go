// Package filestore provides a file based session storage implementation.
//
// Every session lives in its own file named prefix+token inside the save
// directory. The file starts with the expiration time (8 bytes, big endian
// unix nanoseconds) followed by the encoded session. The filesystem is an
// afero.Fs so tests and embedded deployments can use memory or overlay
// filesystems.
package filestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bluescreen10/sessionx/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var (
	_ session.Store     = (*FileStore)(nil)
	_ session.Collector = (*FileStore)(nil)
	_ session.Lister    = (*FileStore)(nil)
)

const headerSize = 8

var (
	// ErrInvalidToken is returned by Set for tokens that can't be used as a
	// file name.
	ErrInvalidToken = errors.New("filestore: invalid token")

	errCorrupt = errors.New("filestore: corrupt session file")
)

// FileStore is a filesystem backed storage for session data.
type FileStore struct {
	mu     sync.Mutex
	fs     afero.Fs
	dir    string
	prefix string
	log    zerolog.Logger
}

type config func(*FileStore)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) config {
	return func(s *FileStore) {
		s.fs = fs
	}
}

// WithPrefix sets the file name prefix, see session.SessionFilePrefix.
func WithPrefix(prefix string) config {
	return func(s *FileStore) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger used to report cleanup failures.
func WithLogger(l zerolog.Logger) config {
	return func(s *FileStore) {
		s.log = l
	}
}

// New creates a FileStore rooted at dir, see session.SessionSavePath.
// The directory is created if it doesn't exist.
func New(dir string, opts ...config) (*FileStore, error) {
	s := &FileStore{
		fs:     afero.NewOsFs(),
		dir:    dir,
		prefix: session.DefaultConfig().SessionFilePrefix,
		log:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create save path: %w", err)
	}
	return s, nil
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error. Expired files are removed.
func (s *FileStore) Get(token string) ([]byte, bool, error) {
	if !validToken(token) {
		return nil, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, data, err := s.read(s.path(token))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if errors.Is(err, errCorrupt) {
		s.removeCorrupt(s.path(token))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if !time.Now().Before(expiresAt) {
		s.fs.Remove(s.path(token))
		return nil, false, nil
	}

	return data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten.
func (s *FileStore) Set(token string, data []byte, expiresAt time.Time) error {
	if !validToken(token) {
		return fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}

	buf := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint64(buf, uint64(expiresAt.UnixNano()))
	copy(buf[headerSize:], data)

	s.mu.Lock()
	defer s.mu.Unlock()

	// write then rename so readers never see a partial file
	tmp := s.path(token) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf, 0o600); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path(token))
}

// Delete removes the data associated with the given token. If the token
// does not exist, this is a no-op.
func (s *FileStore) Delete(token string) error {
	if !validToken(token) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.path(token))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Tokens returns the tokens of every session that hasn't expired.
func (s *FileStore) Tokens() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []string
	err := s.each(func(token string, expiresAt time.Time) error {
		if time.Now().Before(expiresAt) {
			tokens = append(tokens, token)
		}
		return nil
	})
	return tokens, err
}

// DeleteExpired removes all expired session files.
func (s *FileStore) DeleteExpired() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.each(func(token string, expiresAt time.Time) error {
		if time.Now().Before(expiresAt) {
			return nil
		}
		return s.fs.Remove(s.path(token))
	})
}

// PeriodicCleanUp runs a loop that periodically deletes expired sessions.
// The cleanup runs every interval duration until a value is received on
// the stop channel, at which point the loop returns.
func (s *FileStore) PeriodicCleanUp(interval time.Duration, stop <-chan (struct{})) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.DeleteExpired(); err != nil {
				s.log.Error().Err(err).Msg("filestore: cleanup failed")
			}
		case <-stop:
			return
		}
	}
}

func (s *FileStore) path(token string) string {
	return filepath.Join(s.dir, s.prefix+token)
}

func (s *FileStore) read(path string) (time.Time, []byte, error) {
	buf, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return time.Time{}, nil, err
	}
	if len(buf) < headerSize {
		return time.Time{}, nil, fmt.Errorf("%w %s", errCorrupt, path)
	}
	expiresAt := time.Unix(0, int64(binary.BigEndian.Uint64(buf)))
	return expiresAt, buf[headerSize:], nil
}

// each calls fn for every session file in the save directory. Files
// without the prefix and leftover temporary files are skipped, corrupt
// files are removed.
func (s *FileStore) each(fn func(token string, expiresAt time.Time) error) error {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.prefix) || strings.HasSuffix(name, ".tmp") {
			continue
		}

		path := filepath.Join(s.dir, name)
		expiresAt, _, err := s.read(path)
		if errors.Is(err, errCorrupt) {
			s.removeCorrupt(path)
			continue
		}
		if err != nil {
			return err
		}

		if err := fn(strings.TrimPrefix(name, s.prefix), expiresAt); err != nil {
			return err
		}
	}
	return nil
}

// removeCorrupt deletes a session file too short to hold its header.
// The caller holds s.mu.
func (s *FileStore) removeCorrupt(path string) {
	s.log.Warn().Str("path", path).Msg("filestore: removing corrupt session file")
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Error().Err(err).Str("path", path).Msg("filestore: failed to remove corrupt session file")
	}
}

func validToken(token string) bool {
	return token != "" && !strings.ContainsAny(token, `/\`) && token != "." && token != ".."
}
