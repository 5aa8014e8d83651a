// Package logging builds the structured loggers used across flagprobe.
//
// Loggers are [log/slog] JSON loggers with a configurable minimum level.
// Library code receives a logger from the caller and tags its records with
// [Component].
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ComponentKey is the attribute naming the subsystem that emitted a record.
const ComponentKey = "component"

type options struct {
	writer    io.Writer
	addSource bool
	attrs     []slog.Attr
}

type Option func(*options)

// WithWriter sends output to w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

// WithSource adds the calling file and line to every record.
func WithSource() Option {
	return func(o *options) {
		o.addSource = true
	}
}

// WithAttrs attaches attrs to every record.
func WithAttrs(attrs ...slog.Attr) Option {
	return func(o *options) {
		o.attrs = append(o.attrs, attrs...)
	}
}

// New creates a JSON [slog.Logger] at the given level.
// Accepted level strings (case-insensitive): "debug", "info", "warn", "error".
// An empty string defaults to "info".
func New(level string, opts ...Option) *slog.Logger {
	o := options{writer: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	var handler slog.Handler = slog.NewJSONHandler(o.writer, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: o.addSource,
	})
	if len(o.attrs) > 0 {
		handler = handler.WithAttrs(o.attrs)
	}
	return slog.New(handler)
}

// Component returns logger tagged with the component name. A nil logger
// selects slog.Default().
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(ComponentKey, name))
}

// ParseLevel converts a level string to a [slog.Level].
// Returns [slog.LevelInfo] for unrecognised values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
