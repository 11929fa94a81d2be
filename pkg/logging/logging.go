package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the optional rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New creates a slog.Logger using the provided level string.
func New(level string) *slog.Logger {
	return NewWithFile(level, FileOptions{})
}

// NewWithFile creates a slog.Logger writing JSON to stderr and, when
// opts.Path is set, to a size-rotated log file as well.
func NewWithFile(level string, opts FileOptions) *slog.Logger {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}

	var w io.Writer = os.Stderr
	if opts.Path != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		})
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l})
	return slog.New(handler)
}
