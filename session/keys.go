package session

// Configuration keys an external configuration source is expected to supply.
// The values are part of the wire format and must never change.
const (
	// GarbageCollectionProbability is the probability the garbage collector
	// is invoked on a request.
	GarbageCollectionProbability = "GarbageCollectionProbability"

	// SessionName is the session name, also used as the cookie name.
	SessionName = "SessionName"

	// SessionFilePrefix is the prefix of the files a file store persists.
	SessionFilePrefix = "SessionFilePrefix"

	// SessionSavePath is the path sessions are persisted to.
	SessionSavePath = "SessionSavePath"

	// SessionMaximumAge is the number of seconds until the session expires, if defined.
	SessionMaximumAge = "SessionMaximumAge"

	// SessionInactivityTimeout is the inactivity timeout in seconds until
	// the session is invalidated.
	SessionInactivityTimeout = "SessionInactivityTimeout"

	// SessionCookieLifetime is the session cookie lifetime in seconds.
	SessionCookieLifetime = "SessionCookieLifetime"

	// SessionCookieDomain is the cookie domain set for the session.
	SessionCookieDomain = "SessionCookieDomain"

	// SessionCookiePath is the cookie path set for the session.
	SessionCookiePath = "SessionCookiePath"

	// SessionCookieSecure flags that the cookie is only sent over a secure connection.
	SessionCookieSecure = "SessionCookieSecure"

	// SessionHttpOnly flags that the session cookie is http only.
	SessionHttpOnly = "SessionHttpOnly"
)

// Keys returns all configuration keys in declaration order.
func Keys() []string {
	return []string{
		GarbageCollectionProbability,
		SessionName,
		SessionFilePrefix,
		SessionSavePath,
		SessionMaximumAge,
		SessionInactivityTimeout,
		SessionCookieLifetime,
		SessionCookieDomain,
		SessionCookiePath,
		SessionCookieSecure,
		SessionHttpOnly,
	}
}
