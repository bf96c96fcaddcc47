// Package session provides HTTP session management with pluggable storage backends.
//
// Session is the contract every session implementation satisfies. HTTPSession
// is the implementation served by Manager, which carries sessions between
// requests through a cookie and persists them in a Store.
package session

import "time"

// Session describes a server-side record of per-client state, identified
// by an opaque identifier and carried across requests by a cookie.
type Session interface {
	// Start starts the session, if it has not been already started.
	Start()

	// IsStarted tells if the session has been started already.
	IsStarted() bool

	// GetID returns the current session identifier.
	GetID() string

	// SetID sets the current session identifier.
	SetID(id string)

	// GetLastActivityTimestamp returns the last point in time this session
	// has been in use. For the current (local) session this is always the
	// current time. For a remote session it is the persisted timestamp.
	GetLastActivityTimestamp() time.Time

	// GetName returns the session name.
	GetName() string

	// SetName sets the session name.
	SetName(name string)

	// GetLifetime returns the instant after which the session expires. The
	// zero time means no absolute expiry.
	GetLifetime() time.Time

	// SetLifetime sets the instant after which the session expires.
	SetLifetime(lifetime time.Time)

	// GetMaximumAge returns the duration until the session expires, zero if
	// not defined.
	GetMaximumAge() time.Duration

	// SetMaximumAge sets the duration until the session expires.
	SetMaximumAge(maximumAge time.Duration)

	// GetDomain returns the host to which the user agent will send the cookie.
	GetDomain() string

	// SetDomain sets the host to which the user agent will send the cookie.
	SetDomain(domain string)

	// GetPath returns the path describing the scope of the cookie.
	GetPath() string

	// SetPath sets the path describing the scope of the cookie.
	SetPath(path string)

	// IsSecure returns true if the cookie is only sent over a secure channel.
	IsSecure() bool

	// SetSecure sets whether the cookie is only sent over a secure channel.
	SetSecure(secure bool)

	// IsHttpOnly returns true if the cookie is only used through HTTP.
	IsHttpOnly() bool

	// SetHttpOnly sets whether the cookie is only used through HTTP.
	SetHttpOnly(httpOnly bool)

	// GetData returns the data associated with the given key, nil if absent.
	GetData(key string) any

	// HasKey returns true if a data entry for key is available.
	HasKey(key string) bool

	// PutData stores data under key.
	PutData(key string, data any)

	// AddTag tags the session. Third-party code may tag sessions too, so
	// namespaced tags such as "Acme-Demo-MySpecialTag" are recommended.
	AddTag(tag string) error

	// RemoveTag removes the tag from the session.
	RemoveTag(tag string)

	// GetTags returns the tags of the session, or an empty slice.
	GetTags() []string

	// CanBeResumed returns true if there is a persisted session that can be
	// resumed. A session inactive for too long is expired as a side effect,
	// and the loaded session info is kept for a following Resume.
	CanBeResumed() (bool, error)

	// Resume resumes an existing session, if any, and returns the
	// inactivity since the last request.
	Resume() (time.Duration, error)

	// Destroy explicitly destroys all session data. The reason is kept for
	// diagnostics.
	Destroy(reason string)

	// Checksum returns the checksum for this session instance.
	Checksum() string
}
