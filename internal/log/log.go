// Package log provides structured logging for entropass.
// It wraps slog with sensible defaults for production use.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
	file   *os.File
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New builds a logger writing to w at the given level.
// Use JSON in production, text in development.
func New(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if os.Getenv("GO_ENV") == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	once.Do(func() {
		logger = New(level, os.Stderr)
		slog.SetDefault(logger)
	})
}

// InitFile is Init plus an append-only copy of every record in path.
// An empty path behaves like Init.
func InitFile(level, path string) error {
	if path == "" {
		Init(level)
		return nil
	}

	var err error
	once.Do(func() {
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			err = fmt.Errorf("log: create directory: %w", err)
			return
		}
		var f *os.File
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			err = fmt.Errorf("log: open file: %w", err)
			return
		}
		file = f
		logger = New(level, io.MultiWriter(os.Stderr, f))
		slog.SetDefault(logger)
	})
	return err
}

// Close flushes and closes the log file opened by InitFile, if any.
func Close() error {
	if file == nil {
		return nil
	}
	return file.Close()
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
