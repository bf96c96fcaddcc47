// Package logger provides structured logging for the session server and
// an HTTP middleware that records one event per request.
//
// Usage:
//
//	l := logger.New(
//	    logger.WithFormat("console"),
//	    logger.WithLevel("debug"),
//	    logger.WithOutput(os.Stderr),
//	)
//
//	mngr := session.NewManager(store, session.WithLogger(l.Zerolog()))
//	http.ListenAndServe(":8080", l.Handler(mngr.Handler(mux)))
//
// Each request event carries status, latency, ip, method and path.
package logger

import (
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// responseWriter wraps http.ResponseWriter to capture the response status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before delegating to the underlying ResponseWriter.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logger writes structured events through zerolog.
type Logger struct {
	format string
	level  string
	output io.Writer
	zl     zerolog.Logger
}

type config func(*Logger)

// WithFormat selects "json" (the default) or "console" output.
func WithFormat(format string) config {
	return config(func(l *Logger) {
		l.format = format
	})
}

// WithLevel sets the minimum level. Unknown levels fall back to info.
func WithLevel(level string) config {
	return config(func(l *Logger) {
		l.level = level
	})
}

// WithOutput sets the output destination for log entries.
func WithOutput(output io.Writer) config {
	return config(func(l *Logger) {
		l.output = output
	})
}

// New creates a new Logger with optional configuration.
func New(cfgs ...config) *Logger {
	lgr := &Logger{
		format: "json",
		level:  "info",
		output: os.Stdout,
	}

	for _, cfg := range cfgs {
		cfg(lgr)
	}

	out := lgr.output
	if strings.EqualFold(lgr.format, "console") {
		out = zerolog.ConsoleWriter{Out: lgr.output, NoColor: true}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(lgr.level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	lgr.zl = zerolog.New(out).Level(level).With().Timestamp().Logger()
	if err != nil {
		lgr.zl.Warn().Str("level", lgr.level).Msg("invalid log level, defaulting to info")
	}

	return lgr
}

// Zerolog returns the underlying logger so other components can share it.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Handler wraps an http.Handler and logs every request once it completes.
// Server errors are logged at error level, everything else at info.
func (l *Logger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{w, http.StatusOK}
		next.ServeHTTP(rw, r)

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		evt := l.zl.Info()
		if rw.statusCode >= http.StatusInternalServerError {
			evt = l.zl.Error()
		}

		evt.Int("status", rw.statusCode).
			Dur("latency", time.Since(start)).
			Str("ip", ip).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request")
	})
}
