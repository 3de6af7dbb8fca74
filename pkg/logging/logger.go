// Package logging configures zerolog for the combiner and its response cache
// and installs request-scoped loggers on incoming requests.
package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a configured minimum severity.
type LogLevel string

const (
	// LevelTrace adds per-request cache decisions.
	LevelTrace LogLevel = "trace"

	// LevelDebug adds store operations and merge results.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs access lines, resets and lifecycle events.
	LevelInfo LogLevel = "info"

	// LevelWarn logs degraded operation only.
	LevelWarn LogLevel = "warn"

	// LevelError logs failures only.
	LevelError LogLevel = "error"
)

// Config selects level and format.
type Config struct {
	Level LogLevel `yaml:"level"`

	// Pretty switches from JSON lines to console output.
	Pretty bool `yaml:"pretty"`

	// Output receives log lines. Nil means stderr.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Setup applies cfg process-wide and returns the root logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	root := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = root
	return root
}

// ParseLevel maps a LogLevel to zerolog. Unknown names fall back to info.
func ParseLevel(level LogLevel) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(string(level))); err == nil && l != zerolog.NoLevel {
		return l
	}
	if strings.EqualFold(string(level), "warning") {
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Middleware installs a request-scoped logger with a request ID and logs one
// access line per request.
func Middleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	newHandler := hlog.NewHandler(logger)
	requestID := hlog.RequestIDHandler("request_id", "X-Request-Id")
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	})
	return func(next http.Handler) http.Handler {
		return newHandler(requestID(access(next)))
	}
}

// Levels in use:
//
//	trace  control signals, staleness and 304 short-circuits, per request
//	debug  store hits and misses, merge results, backend flushes
//	info   access lines, cache resets, startup and shutdown, backend choice
//	warn   fallback to the in-process store, store errors served uncached,
//	       missing group members
//	error  strict merge failures, server failures
//
// Common fields: key, path, outcome, status_code, members, missing, etag,
// backend, duration, request_id.
