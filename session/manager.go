// Middleware-based session management. Manager stores session data in a
// Store backend, manages cookies, expires inactive sessions, collects
// garbage and provides a load/save workflow through the Handler middleware.
//
// Usage:
//
//	package main
//
//	import (
//	    "fmt"
//	    "net/http"
//	    "time"
//
//	    "github.com/bluescreen10/sessionx/memstore"
//	    "github.com/bluescreen10/sessionx/session"
//	)
//
//	func main() {
//	    store := memstore.New()
//	    mgr := session.NewManager(store,
//	        session.WithName("my_session"),
//	        session.WithInactivityTimeout(30*time.Minute),
//	    )
//
//	    mux := http.NewServeMux()
//	    mux.Handle("/", mgr.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        sess := mgr.Get(r)
//	        count := sess.GetInt("count")
//	        count++
//	        sess.PutData("count", count)
//	        fmt.Fprintf(w, "You have visited %d times\n", count)
//	    })))
//
//	    http.ListenAndServe(":8080", mux)
//	}

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// defaultLifetime bounds the store expiry of a session that has no
// inactivity timeout, lifetime or maximum age.
const defaultLifetime = 24 * time.Hour

// responseWriter wraps http.ResponseWriter to intercept writes
// and ensure the session is saved before any headers or body are written.
type responseWriter struct {
	http.ResponseWriter
	mngr      *Manager
	sess      *HTTPSession
	isWritten bool
}

// Write saves the session before writing the response body if it hasn't
// already been saved.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.isWritten {
		w.isWritten = true
		w.mngr.saveAndLog(w.ResponseWriter, w.sess)
	}
	return w.ResponseWriter.Write(b)
}

// WriteHeader saves the session before writing the response headers
// if it hasn't already been saved.
func (w *responseWriter) WriteHeader(statusCode int) {
	if !w.isWritten {
		w.isWritten = true
		w.mngr.saveAndLog(w.ResponseWriter, w.sess)
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Manager manages HTTP sessions using a Store backend and session options.
type Manager struct {
	store Store
	codec Codec

	name              string
	path              string
	domain            string
	secure            bool
	httpOnly          bool
	partitioned       bool
	sameSite          http.SameSite
	cookieLifetime    time.Duration
	maximumAge        time.Duration
	inactivityTimeout time.Duration
	touchInterval     time.Duration
	gcProbability     float64

	log        zerolog.Logger
	registerer prometheus.Registerer
	metrics    *metrics

	newID  func() string
	now    func() time.Time
	random func() float64

	collecting atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig applies every configuration key of cfg.
func WithConfig(cfg Config) Option {
	return Option(func(m *Manager) {
		m.gcProbability = cfg.GarbageCollectionProbability
		m.name = cfg.SessionName
		m.maximumAge = cfg.SessionMaximumAge
		m.inactivityTimeout = cfg.SessionInactivityTimeout
		m.cookieLifetime = cfg.SessionCookieLifetime
		m.domain = cfg.SessionCookieDomain
		m.path = cfg.SessionCookiePath
		m.secure = cfg.SessionCookieSecure
		m.httpOnly = cfg.SessionHttpOnly
	})
}

// WithName sets the session and cookie name. (default "SESSID".)
func WithName(name string) Option {
	return Option(func(m *Manager) {
		m.name = name
	})
}

// WithPath sets the cookie path. (default "/".)
func WithPath(path string) Option {
	return Option(func(m *Manager) {
		m.path = path
	})
}

// WithDomain sets the cookie domain. (default "".)
func WithDomain(domain string) Option {
	return Option(func(m *Manager) {
		m.domain = domain
	})
}

// WithSecure sets the Secure flag on the cookie. (default false)
func WithSecure(secure bool) Option {
	return Option(func(m *Manager) {
		m.secure = secure
	})
}

// WithHttpOnly sets the HttpOnly flag on the cookie. (default true)
func WithHttpOnly(httpOnly bool) Option {
	return Option(func(m *Manager) {
		m.httpOnly = httpOnly
	})
}

// WithPartitioned sets the Partitioned flag on the cookie. (default false)
func WithPartitioned(partitioned bool) Option {
	return Option(func(m *Manager) {
		m.partitioned = partitioned
	})
}

// WithSameSite sets the SameSite policy for the cookie. (default Lax)
func WithSameSite(sameSite http.SameSite) Option {
	return Option(func(m *Manager) {
		m.sameSite = sameSite
	})
}

// WithCookieLifetime sets the lifetime of new sessions. Zero issues
// browser-session cookies. (default 24hr.)
func WithCookieLifetime(lifetime time.Duration) Option {
	return Option(func(m *Manager) {
		m.cookieLifetime = lifetime
	})
}

// WithMaximumAge sets the maximum age of new sessions. (default none.)
func WithMaximumAge(maximumAge time.Duration) Option {
	return Option(func(m *Manager) {
		m.maximumAge = maximumAge.Truncate(time.Second)
	})
}

// WithInactivityTimeout sets the inactivity after which a session can no
// longer be resumed. (default 24min.)
func WithInactivityTimeout(timeout time.Duration) Option {
	return Option(func(m *Manager) {
		m.inactivityTimeout = timeout
	})
}

// WithGCProbability sets the fraction of requests, within [0,1], that
// trigger the removal of expired sessions from a Collector store.
// (default 0.1)
func WithGCProbability(p float64) Option {
	return Option(func(m *Manager) {
		m.gcProbability = p
	})
}

// WithTouchInterval sets how old the persisted activity of an unmodified
// session may get before it is written again. (default 1min.)
func WithTouchInterval(interval time.Duration) Option {
	return Option(func(m *Manager) {
		m.touchInterval = interval
	})
}

// WithCodec sets the codec used to serialize sessions. (default gob)
func WithCodec(codec Codec) Option {
	return Option(func(m *Manager) {
		m.codec = codec
	})
}

// WithLogger sets the logger for session lifecycle events. (default none)
func WithLogger(log zerolog.Logger) Option {
	return Option(func(m *Manager) {
		m.log = log
	})
}

// WithRegisterer registers the session metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return Option(func(m *Manager) {
		m.registerer = reg
	})
}

// WithIDGenerator sets the session identifier generator. (default 16 random bytes, hex encoded)
func WithIDGenerator(gen func() string) Option {
	return Option(func(m *Manager) {
		m.newID = gen
	})
}

// withClock and withRandom are used by tests.
func withClock(now func() time.Time) Option {
	return Option(func(m *Manager) {
		m.now = now
	})
}

func withRandom(random func() float64) Option {
	return Option(func(m *Manager) {
		m.random = random
	})
}

// Handler wraps an http.Handler and provides load-and-save session functionality.
// It ensures that the session is loaded from the store and saved after the request.
func (m *Manager) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Cookie")
		m.maybeCollect()

		var token string
		cookie, err := r.Cookie(m.name)
		if err == nil {
			token = cookie.Value
		}
		sess, err := m.load(token)
		if err != nil {
			m.log.Error().Err(err).Msg("failed to load session")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		sr := r.WithContext(NewContext(r.Context(), sess))
		sw := &responseWriter{w, m, sess, false}
		next.ServeHTTP(sw, sr)

		if !sw.isWritten {
			m.saveAndLog(w, sess)
		}
	})
}

// Get retrieves the current session from the request context. It always
// returns a valid session object, never nil.
func (m *Manager) Get(r *http.Request) *HTTPSession {
	sess, ok := FromContext(r.Context())
	if !ok {
		return m.newSession()
	}
	return sess
}

// Find loads the persisted session with the given identifier as a remote
// session. It reports false if there is none.
func (m *Manager) Find(id string) (*HTTPSession, bool, error) {
	rec, found, err := m.fetch(id)
	if err != nil || !found {
		return nil, false, err
	}
	if reason := expiredReason(rec, m.inactivityTimeout, m.now()); reason != "" {
		return nil, false, m.expire(id, reason)
	}

	sess := &HTTPSession{mngr: m, id: id}
	sess.applyLocked(rec)
	sess.isStarted = true
	sess.isRemote = true
	sess.persistedActivity = rec.LastActivity
	sess.loadedChecksum = sess.checksumLocked()
	return sess, true, nil
}

// Save persists a session outside of the Handler workflow, e.g. a remote
// session obtained with Find. No cookie is written.
func (m *Manager) Save(sess *HTTPSession) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.isDestroyed {
		return m.store.Delete(sess.id)
	}
	if !sess.isStarted {
		return nil
	}
	return m.persistLocked(sess, m.now())
}

// DestroyTagged deletes every stored session carrying tag and returns how
// many were deleted. The store must implement Lister.
//
// The session carried by ctx, if tagged, is destroyed rather than deleted
// so that saving it at the end of the request can't write it back.
func (m *Manager) DestroyTagged(ctx context.Context, tag string) (int, error) {
	lister, ok := m.store.(Lister)
	if !ok {
		return 0, ErrNotSupported
	}

	reason := "tag " + tag + " invalidated"

	var count int
	var current string
	if sess, ok := FromContext(ctx); ok && sess.HasTag(tag) {
		current = sess.GetID()
		sess.Destroy(reason)
		count++
	}

	tokens, err := lister.Tokens()
	if err != nil {
		return count, fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, token := range tokens {
		if token == current {
			continue
		}
		rec, found, err := m.fetch(token)
		if err != nil {
			return count, err
		}
		if !found || !slices.Contains(rec.Tags, tag) {
			continue
		}
		if err := m.store.Delete(token); err != nil {
			return count, err
		}
		m.observeDestroy(token, reason)
		count++
	}
	return count, nil
}

// Collect removes expired sessions from the store. The store must
// implement Collector.
func (m *Manager) Collect() error {
	c, ok := m.store.(Collector)
	if !ok {
		return ErrNotSupported
	}

	m.metrics.gcRuns.Inc()
	if err := c.DeleteExpired(); err != nil {
		m.metrics.gcErrors.Inc()
		m.log.Error().Err(err).Msg("session garbage collection failed")
		return err
	}
	m.log.Debug().Msg("session garbage collection done")
	return nil
}

// maybeCollect runs Collect in the background with the configured
// probability. Only one collection runs at a time.
func (m *Manager) maybeCollect() {
	if m.gcProbability <= 0 {
		return
	}
	if _, ok := m.store.(Collector); !ok {
		return
	}
	if m.random() >= m.gcProbability {
		return
	}
	if !m.collecting.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer m.collecting.Store(false)
		m.Collect()
	}()
}

// newSession creates an unstarted session using the manager's cookie
// configuration.
func (m *Manager) newSession() *HTTPSession {
	now := m.now()
	sess := &HTTPSession{
		mngr:       m,
		id:         m.newID(),
		name:       m.name,
		createdAt:  now,
		maximumAge: m.maximumAge,
		domain:     m.domain,
		path:       m.path,
		secure:     m.secure,
		httpOnly:   m.httpOnly,
		values:     make(map[string]any),
		tags:       make(map[string]struct{}),
	}
	if m.cookieLifetime > 0 {
		sess.lifetime = now.Add(m.cookieLifetime)
	}
	return sess
}

// load resumes the session identified by token. If the token is empty or
// the session can't be resumed, a new session is created.
func (m *Manager) load(token string) (*HTTPSession, error) {
	sess := m.newSession()
	if token == "" {
		return sess, nil
	}

	sess.SetID(token)
	ok, err := sess.CanBeResumed()
	if err != nil {
		return nil, err
	}
	if !ok {
		sess.SetID(m.newID())
		return sess, nil
	}

	if _, err := sess.Resume(); err != nil {
		return nil, err
	}
	return sess, nil
}

// fetch loads and decodes the record stored under id.
func (m *Manager) fetch(id string) (Record, bool, error) {
	data, found, err := m.store.Get(id)
	if err != nil || !found {
		return Record{}, false, err
	}

	rec, err := m.codec.Decode(data)
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return rec, true, nil
}

// expire deletes an expired session from the store.
func (m *Manager) expire(id string, reason string) error {
	if err := m.store.Delete(id); err != nil {
		return err
	}
	m.metrics.expired.Inc()
	m.log.Info().Str("session_id", id).Str("reason", reason).Msg("session expired")
	return nil
}

func (m *Manager) saveAndLog(w http.ResponseWriter, sess *HTTPSession) {
	if err := m.save(w, sess); err != nil {
		m.log.Error().Err(err).Str("session_id", sess.GetID()).Msg("failed to save session")
	}
}

// save persists the session to the store and updates the HTTP cookie.
// Destroyed sessions are deleted from the store and expired cookies are set.
func (m *Manager) save(w http.ResponseWriter, sess *HTTPSession) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.isDestroyed {
		err := m.store.Delete(sess.id)
		if err != nil {
			return err
		}
		m.writeCookie(w, sess, true)
		return nil
	}

	if !sess.isStarted {
		return nil
	}

	now := m.now()
	sum := sess.checksumLocked()
	changed := sess.isModified || sum != sess.loadedChecksum
	if !changed && now.Sub(sess.persistedActivity) >= m.touchInterval {
		// a touch must not recreate a session deleted while the request ran
		_, found, err := m.store.Get(sess.id)
		if err != nil {
			return err
		}
		if !found {
			m.writeCookie(w, sess, true)
			return nil
		}
		changed = true
	}
	if changed {
		if err := m.persistLocked(sess, now); err != nil {
			return err
		}
	}

	m.writeCookie(w, sess, false)
	return nil
}

// persistLocked encodes and stores the session. The caller holds sess.mu.
func (m *Manager) persistLocked(sess *HTTPSession, now time.Time) error {
	rec := sess.recordLocked()
	if !sess.isRemote {
		rec.LastActivity = now
	}

	data, err := m.codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := m.store.Set(sess.id, data, m.expiresAt(sess, now)); err != nil {
		return err
	}

	sess.isModified = false
	sess.loadedChecksum = checksum(sess.id, rec)
	sess.persistedActivity = rec.LastActivity
	return nil
}

// expiresAt returns the instant the store may drop the session: the
// inactivity deadline, capped by the lifetime and the maximum age.
func (m *Manager) expiresAt(sess *HTTPSession, now time.Time) time.Time {
	var expiresAt time.Time
	if m.inactivityTimeout > 0 {
		expiresAt = now.Add(m.inactivityTimeout)
	}
	expiresAt = earliest(expiresAt, sess.lifetime)
	if sess.maximumAge > 0 {
		expiresAt = earliest(expiresAt, sess.createdAt.Add(sess.maximumAge))
	}
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultLifetime)
	}
	return expiresAt
}

// writeCookie sets or expires the session cookie on the HTTP response.
// The caller holds sess.mu.
func (m *Manager) writeCookie(w http.ResponseWriter, sess *HTTPSession, expire bool) {
	cookie := &http.Cookie{
		Value:       sess.id,
		Name:        sess.name,
		Domain:      sess.domain,
		HttpOnly:    sess.httpOnly,
		Path:        sess.path,
		SameSite:    m.sameSite,
		Secure:      sess.secure,
		Partitioned: m.partitioned,
	}

	if expire {
		cookie.Expires = time.Unix(1, 0)
		cookie.MaxAge = -1
	} else {
		if !sess.lifetime.IsZero() {
			cookie.Expires = time.Unix(sess.lifetime.Unix()+1, 0)
		}
		if sess.maximumAge > 0 {
			cookie.MaxAge = int(sess.maximumAge / time.Second)
		}
	}

	http.SetCookie(w, cookie)

	// a renamed session must not leave its old cookie behind
	if sess.name != m.name {
		http.SetCookie(w, &http.Cookie{
			Name:    m.name,
			Domain:  m.domain,
			Path:    m.path,
			Expires: time.Unix(1, 0),
			MaxAge:  -1,
		})
	}
}

func (m *Manager) observeStart(id string) {
	m.metrics.started.Inc()
	m.log.Debug().Str("session_id", id).Msg("session started")
}

func (m *Manager) observeResume(id string, inactivity time.Duration) {
	m.metrics.resumed.Inc()
	m.log.Debug().Str("session_id", id).Dur("inactivity", inactivity).Msg("session resumed")
}

func (m *Manager) observeDestroy(id string, reason string) {
	m.metrics.destroyed.Inc()
	m.log.Info().Str("session_id", id).Str("reason", reason).Msg("session destroyed")
}

// genSessionID returns 16 random bytes from crypto/rand, hex encoded.
func genSessionID() string {
	id := make([]byte, 16)
	rand.Read(id)
	return hex.EncodeToString(id)
}

// NewManager creates a new session Manager with a Store and optional configuration.
func NewManager(store Store, opts ...Option) *Manager {
	cfg := DefaultConfig()
	mngr := &Manager{
		store:         store,
		codec:         GobCodec{},
		sameSite:      http.SameSiteLaxMode,
		touchInterval: time.Minute,
		log:           zerolog.Nop(),
		newID:         genSessionID,
		now:           time.Now,
		random:        mrand.Float64,
	}
	WithConfig(cfg)(mngr)

	for _, opt := range opts {
		opt(mngr)
	}

	mngr.metrics = newMetrics(mngr.registerer)
	return mngr
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess *HTTPSession) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session stored in ctx by the Handler middleware.
func FromContext(ctx context.Context) (*HTTPSession, bool) {
	sess, ok := ctx.Value(contextKey{}).(*HTTPSession)
	return sess, ok
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}

