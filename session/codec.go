package session

import (
	"bytes"
	"encoding/gob"
	"time"
)

// Record is the persisted form of a session.
type Record struct {
	Name         string
	CreatedAt    time.Time
	LastActivity time.Time
	Lifetime     time.Time
	MaximumAge   time.Duration
	Domain       string
	Path         string
	Secure       bool
	HttpOnly     bool
	Values       map[string]any
	Tags         []string
}

// Codec is an interface for serializing and deserializing session records.
type Codec interface {
	// Decode decodes a byte slice into a session record.
	Decode(data []byte) (Record, error)

	// Encode encodes a session record into a byte slice.
	Encode(rec Record) ([]byte, error)
}

// Ensure GobCodec implements Codec.
var _ Codec = GobCodec{}

// GobCodec is a Codec implementation using Go's encoding/gob. Concrete
// types stored as values must be registered with gob.Register.
type GobCodec struct{}

// Encode serializes the record using gob encoding.
func (GobCodec) Encode(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)

	err := encoder.Encode(&rec)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode deserializes the data into a record using gob decoding.
func (GobCodec) Decode(data []byte) (Record, error) {
	buf := bytes.NewBuffer(data)
	decoder := gob.NewDecoder(buf)

	var rec Record
	err := decoder.Decode(&rec)
	if rec.Values == nil {
		rec.Values = make(map[string]any)
	}
	return rec, err
}
