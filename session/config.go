package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds one field per configuration key. Durations are carried as
// time.Duration but are expressed in whole seconds by configuration sources.
type Config struct {
	GarbageCollectionProbability float64
	SessionName                  string
	SessionFilePrefix            string
	SessionSavePath              string
	SessionMaximumAge            time.Duration
	SessionInactivityTimeout     time.Duration
	SessionCookieLifetime        time.Duration
	SessionCookieDomain          string
	SessionCookiePath            string
	SessionCookieSecure          bool
	SessionHttpOnly              bool
}

// DefaultConfig returns the configuration used when nothing is supplied.
func DefaultConfig() Config {
	return Config{
		GarbageCollectionProbability: 0.1,
		SessionName:                  "SESSID",
		SessionFilePrefix:            "sess_",
		SessionSavePath:              filepath.Join(os.TempDir(), "sessions"),
		SessionInactivityTimeout:     1440 * time.Second,
		SessionCookieLifetime:        86400 * time.Second,
		SessionCookiePath:            "/",
		SessionHttpOnly:              true,
	}
}

// Validate reports whether the configuration can be used by a Manager.
func (c Config) Validate() error {
	if c.GarbageCollectionProbability < 0 || c.GarbageCollectionProbability > 1 {
		return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalidConfig, GarbageCollectionProbability, c.GarbageCollectionProbability)
	}
	if c.SessionName == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, SessionName)
	}
	for key, d := range map[string]time.Duration{
		SessionMaximumAge:        c.SessionMaximumAge,
		SessionInactivityTimeout: c.SessionInactivityTimeout,
		SessionCookieLifetime:    c.SessionCookieLifetime,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidConfig, key)
		}
	}
	return nil
}
