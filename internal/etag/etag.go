// Package etag answers conditional GET requests for JSON views that are
// polled repeatedly, such as the stored session inspector.
//
// The response body is buffered and hashed with CRC64. A matching
// If-None-Match header turns the response into 304 Not Modified.
package etag

import (
	"bytes"
	"fmt"
	"hash/crc64"
	"net/http"
	"strings"
)

var table = crc64.MakeTable(crc64.ECMA)

// responseWriter captures the body and status written by the handler.
type responseWriter struct {
	http.ResponseWriter
	buffer     bytes.Buffer
	statusCode int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	return w.buffer.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
}

// Handler sets a strong ETag on successful GET and HEAD responses and
// replies 304 when the client already holds the same representation.
// Other methods pass through untouched.
func Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		status := rw.statusCode
		if status == 0 {
			status = http.StatusOK
		}

		if status == http.StatusOK && w.Header().Get("ETag") == "" {
			tag := fmt.Sprintf(`"%016x"`, crc64.Checksum(rw.buffer.Bytes(), table))
			w.Header().Set("ETag", tag)

			if matches(r.Header.Get("If-None-Match"), tag) {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		w.WriteHeader(status)
		w.Write(rw.buffer.Bytes())
	})
}

// matches implements the weak comparison used for If-None-Match.
func matches(header, tag string) bool {
	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}
