// Package logging provides structured JSON logging for the runner. It wraps
// log/slog so every component shares one handler and level, and child
// loggers carry tick and task context.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels accepted by New.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Logger is a slog.Logger that may own its output file.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
	out *output
}

// output is shared by a logger and all of its children.
type output struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a Logger writing JSON lines to path, or to stderr when path
// is empty.
func New(path, level string) (*Logger, error) {
	if path == "" {
		return NewWriter(os.Stderr, level), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := NewWriter(file, level)
	l.out.file = file
	return l, nil
}

// NewWriter creates a Logger writing JSON lines to w.
func NewWriter(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{Logger: slog.New(handler), out: &output{}}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, LevelError)
}

// ParseLevel converts a level name to a slog.Level, defaulting to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "WARNING":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying the given key-value pairs.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(args...), out: l.out}
}

// WithTick tags entries with a tick ID.
func (l *Logger) WithTick(tickID string) *Logger {
	return l.With("tick_id", tickID)
}

// WithTask tags entries with a task ID.
func (l *Logger) WithTask(taskID string) *Logger {
	return l.With("task_id", taskID)
}

// WithComponent tags entries with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// Close closes the log file shared with the logger's parent and children.
// Only the first call closes it; later calls and loggers without a file are
// no-ops.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.file == nil {
		return nil
	}
	err := l.out.file.Close()
	l.out.file = nil
	return err
}
