package session

import (
	"regexp"
	"slices"
	"sync"
	"time"
)

// Ensure HTTPSession implements Session.
var _ Session = (*HTTPSession)(nil)

var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9_%\-&]{1,250}$`)

// HTTPSession is the Session implementation served by Manager. It tracks
// creation and activity times, cookie attributes, data, tags and whether
// the session has been modified or destroyed. It is safe for concurrent use.
type HTTPSession struct {
	mu   sync.RWMutex
	mngr *Manager

	id           string
	name         string
	createdAt    time.Time
	lastActivity time.Time

	lifetime   time.Time
	maximumAge time.Duration
	domain     string
	path       string
	secure     bool
	httpOnly   bool

	values map[string]any
	tags   map[string]struct{}

	isStarted     bool
	isRemote      bool
	isDestroyed   bool
	isModified    bool
	destroyReason string

	// set by CanBeResumed, consumed by Resume
	checked   bool
	resumable *Record

	loadedChecksum    string
	persistedActivity time.Time
}

// NewSession creates an unstarted session, not attached to any Manager,
// using the cookie attributes of DefaultConfig. Such a session can never be
// resumed.
func NewSession(id string) *HTTPSession {
	cfg := DefaultConfig()
	now := time.Now()
	s := &HTTPSession{
		id:         id,
		name:       cfg.SessionName,
		createdAt:  now,
		maximumAge: cfg.SessionMaximumAge,
		domain:     cfg.SessionCookieDomain,
		path:       cfg.SessionCookiePath,
		secure:     cfg.SessionCookieSecure,
		httpOnly:   cfg.SessionHttpOnly,
		values:     make(map[string]any),
		tags:       make(map[string]struct{}),
	}
	if cfg.SessionCookieLifetime > 0 {
		s.lifetime = now.Add(cfg.SessionCookieLifetime)
	}
	return s
}

// EmptyInstance returns a new, unstarted and empty session with a fresh
// identifier that shares the cookie configuration of s.
func (s *HTTPSession) EmptyInstance() *HTTPSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock()
	e := &HTTPSession{
		mngr:       s.mngr,
		name:       s.name,
		createdAt:  now,
		maximumAge: s.maximumAge,
		domain:     s.domain,
		path:       s.path,
		secure:     s.secure,
		httpOnly:   s.httpOnly,
		values:     make(map[string]any),
		tags:       make(map[string]struct{}),
	}
	if s.mngr != nil {
		e.id = s.mngr.newID()
		if s.mngr.cookieLifetime > 0 {
			e.lifetime = now.Add(s.mngr.cookieLifetime)
		}
	} else {
		e.id = genSessionID()
		e.lifetime = s.lifetime
	}
	return e
}

func (s *HTTPSession) clock() time.Time {
	if s.mngr != nil {
		return s.mngr.now()
	}
	return time.Now()
}

// Start starts the session if it has not been already started.
func (s *HTTPSession) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

func (s *HTTPSession) startLocked() {
	if s.isStarted {
		return
	}
	now := s.clock()
	if s.createdAt.IsZero() {
		s.createdAt = now
	}
	s.lastActivity = now
	s.isStarted = true
	s.isModified = true
	if s.mngr != nil {
		s.mngr.observeStart(s.id)
	}
}

// IsStarted tells if the session has been started already.
func (s *HTTPSession) IsStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isStarted
}

// GetID returns the session's unique identifier.
func (s *HTTPSession) GetID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// SetID changes the session identifier. Any session info loaded by
// CanBeResumed for the previous identifier is discarded.
func (s *HTTPSession) SetID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == id {
		return
	}
	s.id = id
	s.checked = false
	s.resumable = nil
	s.isModified = true
}

// GetCreatedAt returns the time when the session was created.
func (s *HTTPSession) GetCreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// GetLastActivityTimestamp returns the current time for a local session and
// the persisted activity time for a remote one.
func (s *HTTPSession) GetLastActivityTimestamp() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.isRemote {
		return s.lastActivity
	}
	return s.clock()
}

// IsRemote reports whether the session was loaded outside of the request
// it belongs to, see Manager.Find.
func (s *HTTPSession) IsRemote() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRemote
}

// GetName returns the session name.
func (s *HTTPSession) GetName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetName sets the session name, which is the name of its cookie. The
// Manager expires the cookie under its configured name on save, and only a
// Manager configured with the new name reads the session back.
func (s *HTTPSession) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.isModified = true
}

// GetLifetime returns the absolute expiry, the zero time if unset.
func (s *HTTPSession) GetLifetime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifetime
}

// SetLifetime sets the absolute expiry. The zero time removes it.
func (s *HTTPSession) SetLifetime(lifetime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifetime = lifetime
	s.isModified = true
}

// GetMaximumAge returns the maximum age, zero if not defined.
func (s *HTTPSession) GetMaximumAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maximumAge
}

// SetMaximumAge sets the maximum age. It is truncated to whole seconds.
func (s *HTTPSession) SetMaximumAge(maximumAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maximumAge = maximumAge.Truncate(time.Second)
	s.isModified = true
}

func (s *HTTPSession) GetDomain() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domain
}

func (s *HTTPSession) SetDomain(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domain = domain
	s.isModified = true
}

func (s *HTTPSession) GetPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func (s *HTTPSession) SetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	s.isModified = true
}

func (s *HTTPSession) IsSecure() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secure
}

func (s *HTTPSession) SetSecure(secure bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secure = secure
	s.isModified = true
}

func (s *HTTPSession) IsHttpOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpOnly
}

func (s *HTTPSession) SetHttpOnly(httpOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpOnly = httpOnly
	s.isModified = true
}

// GetData retrieves a value from the session.
// Returns nil if the key doesn't exist.
func (s *HTTPSession) GetData(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// HasKey returns true if a value is stored under key.
func (s *HTTPSession) HasKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// PutData adds or updates a value in the session, starting the session
// if needed. Marks the session as modified.
func (s *HTTPSession) PutData(key string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
	s.isModified = true
	s.values[key] = data
}

// GetKeys returns the stored keys in sorted order.
func (s *HTTPSession) GetKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// GetInt retrieves an int value from the session. Returns 0 if not found or
// type mismatch.
func (s *HTTPSession) GetInt(key string) int {
	v, _ := s.GetData(key).(int)
	return v
}

// GetUint retrieves a uint value from the session. Returns 0 if not found or
// type mismatch.
func (s *HTTPSession) GetUint(key string) uint {
	v, _ := s.GetData(key).(uint)
	return v
}

// GetBool retrieves a bool value from the session. Returns false if not found
// or type mismatch.
func (s *HTTPSession) GetBool(key string) bool {
	v, _ := s.GetData(key).(bool)
	return v
}

// GetFloat32 retrieves a float32 value from the session. Returns 0 if not found
// or type mismatch.
func (s *HTTPSession) GetFloat32(key string) float32 {
	v, _ := s.GetData(key).(float32)
	return v
}

// GetFloat64 retrieves a float64 value from the session. Returns 0 if not found
// or type mismatch.
func (s *HTTPSession) GetFloat64(key string) float64 {
	v, _ := s.GetData(key).(float64)
	return v
}

// GetString retrieves a string value from the session. Returns "" if not found
// or type mismatch.
func (s *HTTPSession) GetString(key string) string {
	v, _ := s.GetData(key).(string)
	return v
}

// Delete removes a value from the session and marks it as modified.
func (s *HTTPSession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isModified = true
	delete(s.values, key)
}

// Clear removes all values from the session.
func (s *HTTPSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isModified = true
	s.values = make(map[string]any)
}

// AddTag tags the session, starting it if needed.
func (s *HTTPSession) AddTag(tag string) error {
	if !tagPattern.MatchString(tag) {
		return ErrInvalidTag
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
	if _, ok := s.tags[tag]; !ok {
		s.tags[tag] = struct{}{}
		s.isModified = true
	}
	return nil
}

// RemoveTag removes the tag. Unknown tags are ignored.
func (s *HTTPSession) RemoveTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[tag]; ok {
		delete(s.tags, tag)
		s.isModified = true
	}
}

// GetTags returns the sorted tags of the session.
func (s *HTTPSession) GetTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedTagsLocked()
}

func (s *HTTPSession) sortedTagsLocked() []string {
	tags := make([]string, 0, len(s.tags))
	for tag := range s.tags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// HasTag reports whether the session carries tag.
func (s *HTTPSession) HasTag(tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tags[tag]
	return ok
}

// CanBeResumed returns true if a persisted session with the current
// identifier exists and is still valid. An expired session is deleted from
// the store. The loaded record is kept so Resume doesn't load it again.
func (s *HTTPSession) CanBeResumed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mngr == nil || s.id == "" || s.isDestroyed || s.isRemote {
		return false, nil
	}
	if s.checked {
		return s.resumable != nil, nil
	}

	rec, found, err := s.mngr.fetch(s.id)
	if err != nil {
		return false, err
	}
	s.checked = true
	if !found {
		return false, nil
	}

	if reason := expiredReason(rec, s.mngr.inactivityTimeout, s.clock()); reason != "" {
		if err := s.mngr.expire(s.id, reason); err != nil {
			return false, err
		}
		return false, nil
	}

	s.resumable = &rec
	return true, nil
}

// Resume restores the persisted session and returns the inactivity since
// the last request. It returns 0 if there was nothing to resume.
func (s *HTTPSession) Resume() (time.Duration, error) {
	ok, err := s.CanBeResumed()
	if err != nil || !ok {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.resumable
	if rec == nil {
		return 0, nil
	}
	s.resumable = nil

	now := s.clock()
	inactivity := max(now.Sub(rec.LastActivity), 0)

	s.applyLocked(*rec)
	s.lastActivity = now
	s.persistedActivity = rec.LastActivity
	s.isStarted = true
	s.isModified = false
	s.loadedChecksum = s.checksumLocked()

	s.mngr.observeResume(s.id, inactivity)
	return inactivity, nil
}

// Destroy removes all values and tags and marks the session as destroyed.
// The Manager deletes it from the store and expires the cookie.
func (s *HTTPSession) Destroy(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
	s.tags = make(map[string]struct{})
	s.isModified = true
	s.isDestroyed = true
	s.destroyReason = reason
	if s.mngr != nil {
		s.mngr.observeDestroy(s.id, reason)
	}
}

// IsDestroyed reports whether Destroy has been called.
func (s *HTTPSession) IsDestroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDestroyed
}

// GetDestroyReason returns the reason given to Destroy.
func (s *HTTPSession) GetDestroyReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyReason
}

// Checksum returns the checksum of the session content.
func (s *HTTPSession) Checksum() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checksumLocked()
}

func (s *HTTPSession) checksumLocked() string {
	return checksum(s.id, s.recordLocked())
}

// recordLocked returns the persisted form of the session.
func (s *HTTPSession) recordLocked() Record {
	values := make(map[string]any, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return Record{
		Name:         s.name,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		Lifetime:     s.lifetime,
		MaximumAge:   s.maximumAge,
		Domain:       s.domain,
		Path:         s.path,
		Secure:       s.secure,
		HttpOnly:     s.httpOnly,
		Values:       values,
		Tags:         s.sortedTagsLocked(),
	}
}

func (s *HTTPSession) applyLocked(rec Record) {
	s.name = rec.Name
	s.createdAt = rec.CreatedAt
	s.lastActivity = rec.LastActivity
	s.lifetime = rec.Lifetime
	s.maximumAge = rec.MaximumAge
	s.domain = rec.Domain
	s.path = rec.Path
	s.secure = rec.Secure
	s.httpOnly = rec.HttpOnly
	s.values = make(map[string]any, len(rec.Values))
	for k, v := range rec.Values {
		s.values[k] = v
	}
	s.tags = make(map[string]struct{}, len(rec.Tags))
	for _, tag := range rec.Tags {
		s.tags[tag] = struct{}{}
	}
}

// expiredReason returns why rec is no longer valid at now, or "" if it is.
func expiredReason(rec Record, inactivityTimeout time.Duration, now time.Time) string {
	if inactivityTimeout > 0 && now.Sub(rec.LastActivity) > inactivityTimeout {
		return "inactivity timeout"
	}
	if !rec.Lifetime.IsZero() && now.After(rec.Lifetime) {
		return "lifetime exceeded"
	}
	if rec.MaximumAge > 0 && now.After(rec.CreatedAt.Add(rec.MaximumAge)) {
		return "maximum age exceeded"
	}
	return ""
}
