package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/bluescreen10/sessionx/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := session.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.SessionInactivityTimeout != 1440*time.Second {
		t.Fatalf("expected '24m' got '%s'", cfg.SessionInactivityTimeout)
	}
	if cfg.SessionFilePrefix != "sess_" {
		t.Fatalf("expected 'sess_' got '%s'", cfg.SessionFilePrefix)
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := map[string]func(*session.Config){
		"probability above one": func(c *session.Config) { c.GarbageCollectionProbability = 1.5 },
		"negative probability":  func(c *session.Config) { c.GarbageCollectionProbability = -0.1 },
		"empty name":            func(c *session.Config) { c.SessionName = "" },
		"negative maximum age":  func(c *session.Config) { c.SessionMaximumAge = -time.Second },
		"negative inactivity":   func(c *session.Config) { c.SessionInactivityTimeout = -time.Second },
		"negative lifetime":     func(c *session.Config) { c.SessionCookieLifetime = -time.Second },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := session.DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, session.ErrInvalidConfig) {
				t.Fatalf("expected '%v' got '%v'", session.ErrInvalidConfig, err)
			}
		})
	}
}
