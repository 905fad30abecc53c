// Package log builds the process logger and adapts guest output streams to slog.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the record encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// HandlerOption configures the process handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	writer    io.Writer
	format    Format
	level     slog.Level
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		writer: os.Stderr,
		format: FormatText,
		level:  slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithFormat selects text or JSON records.
func WithFormat(f Format) HandlerOption {
	return func(c *handlerConfig) {
		c.format = f
	}
}

// WithWriter sets the destination. Default: os.Stderr.
func WithWriter(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		if w != nil {
			c.writer = w
		}
	}
}

// NewHandler creates the process slog handler.
func NewHandler(opts ...HandlerOption) slog.Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	hopts := &slog.HandlerOptions{Level: cfg.level, AddSource: cfg.addSource}
	if cfg.format == FormatJSON {
		return slog.NewJSONHandler(cfg.writer, hopts)
	}
	return slog.NewTextHandler(cfg.writer, hopts)
}

// NewLogger is shorthand for slog.New(NewHandler(opts...)).
func NewLogger(opts ...HandlerOption) *slog.Logger {
	return slog.New(NewHandler(opts...))
}

// ParseLevel maps a configuration level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat validates a configuration format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return f, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}
