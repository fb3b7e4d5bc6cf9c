// Package logger provides structured logging for the UnReal analysis service.
//
// Output is JSON in production for log aggregators and key=value text in
// development. Analysis code receives a *Logger and scopes it per request
// with With or WithContext.
//
// Usage:
//
//	log := logger.New("info")
//	log.Info("analysis complete", "fingerprint", fp, "score", 72.5)
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a structured logger wrapper.
type Logger struct {
	*slog.Logger
}

// Options controls how a Logger is built.
type Options struct {
	// Level is one of debug, info, warn, error (case-insensitive).
	Level string

	// JSON selects the JSON handler. When false, text output is used.
	JSON bool

	// Writer receives log output. Defaults to os.Stderr.
	Writer io.Writer
}

// New creates a Logger at the given level. JSON output is selected when
// ENV=production.
func New(level string) *Logger {
	return NewWithOptions(Options{
		Level: level,
		JSON:  os.Getenv("ENV") == "production",
	})
}

// NewWithWriter creates a text Logger that writes to w.
func NewWithWriter(level string, w io.Writer) *Logger {
	return NewWithOptions(Options{Level: level, Writer: w})
}

// NewWithOptions creates a Logger from explicit options.
func NewWithOptions(opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return &Logger{slog.New(handler)}
}

// ParseLevel converts a level name to slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// With returns a Logger with the given attributes added.
//
//	layerLog := log.With("layer", "forensic")
//	layerLog.Warn("layer unavailable", "reason", reason)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// Component returns a Logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// WithContext returns a Logger carrying the request ID stored in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	if reqID := ctx.Value(ContextKeyRequestID); reqID != nil {
		return l.With("request_id", reqID)
	}
	return l
}

// ContextKey is the type for context keys to avoid collisions.
type ContextKey string

const (
	ContextKeyRequestID   ContextKey = "request_id"
	ContextKeyFingerprint ContextKey = "fingerprint"
)

// NopLogger returns a logger that discards all output.
func NopLogger() *Logger {
	return NewWithOptions(Options{Level: "error", Writer: io.Discard})
}
