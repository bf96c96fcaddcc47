package session

import "errors"

var (
	// ErrInvalidTag is returned when a tag contains characters outside
	// [a-zA-Z0-9_%-&] or is longer than 250 characters.
	ErrInvalidTag = errors.New("invalid session tag")

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = errors.New("invalid session config")

	// ErrNotSupported is returned when a store lacks an optional capability.
	ErrNotSupported = errors.New("operation not supported by store")
)
