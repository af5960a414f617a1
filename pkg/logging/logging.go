// Package logging holds the process-wide slog logger. Records go to stderr so
// stdout stays free for the JSONL answer stream.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Environment variables read by the default logger.
const (
	EnvFormat = "HYBRIDQA_LOG_FORMAT" // json (default) or text
	EnvLevel  = "HYBRIDQA_LOG_LEVEL"  // debug, info (default), warn or error
)

const service = "hybrid-analyst"

var current atomic.Pointer[slog.Logger]

// Logger returns the shared logger, building it from the environment on first
// use.
func Logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l := New(os.Stderr, os.Getenv(EnvFormat), os.Getenv(EnvLevel))
	if current.CompareAndSwap(nil, l) {
		return l
	}
	return current.Load()
}

// SetLogger replaces the shared logger. A nil logger is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		current.Store(l)
	}
}

// WithComponent tags the shared logger with a component name.
func WithComponent(component string) *slog.Logger {
	return Logger().With("component", component)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New builds a logger writing to w. Unknown formats fall back to JSON and
// unknown levels to info.
func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}
