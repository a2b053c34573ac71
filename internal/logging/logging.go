// Package logging provides structured logging for jmo using slog.
// It provides a consistent logging interface across all packages.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Level represents a logging level
type Level = slog.Level

// Logging levels
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Logger wraps slog.Logger with jmo-specific functionality
type Logger struct {
	*slog.Logger
}

// defaultLogger is the global default logger
var defaultLogger = NewJSON(os.Stderr, LevelInfo)

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
	slog.SetDefault(l.Logger)
}

// New creates a human-readable text logger that writes to w at the given level.
// This backs the --human-logs CLI flag.
func New(w io.Writer, level Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("15:04:05"))
			}
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok && source != nil {
					source.File = shortPath(source.File)
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(w, opts)
	return &Logger{slog.New(handler)}
}

// NewJSON creates a JSON logger. This is the default output mode per the
// CLI's structured-log contract (JSON unless --human-logs is set).
func NewJSON(w io.Writer, level Level) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewJSONHandler(w, opts)
	return &Logger{slog.New(handler)}
}

// NewNop creates a logger that discards all output
func NewNop() *Logger {
	return &Logger{slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns l unchanged; no values are read from ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return l
}

// With returns a logger with additional attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// WithScan returns a logger with scan id attribute
func (l *Logger) WithScan(scanID string) *Logger {
	return l.With("scan_id", scanID)
}

// WithTarget returns a logger with target attribute
func (l *Logger) WithTarget(target string) *Logger {
	return l.With("target", target)
}

// WithTool returns a logger with tool name attribute
func (l *Logger) WithTool(tool string) *Logger {
	return l.With("tool", tool)
}

// WithOperation returns a logger with operation attribute
func (l *Logger) WithOperation(op string) *Logger {
	return l.With("op", op)
}

// WithError returns a logger with error attribute
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

// WithDuration returns a logger with duration attribute
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.With("duration_ms", d.Milliseconds())
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, args ...any) { l.Logger.Debug(msg, args...) }

// Info logs at info level
func (l *Logger) Info(msg string, args ...any) { l.Logger.Info(msg, args...) }

// Warn logs at warn level
func (l *Logger) Warn(msg string, args ...any) { l.Logger.Warn(msg, args...) }

// Error logs at error level
func (l *Logger) Error(msg string, args ...any) { l.Logger.Error(msg, args...) }

// Package-level convenience functions using default logger

// Debug logs at debug level using default logger
func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }

// Info logs at info level using default logger
func Info(msg string, args ...any) { defaultLogger.Info(msg, args...) }

// Warn logs at warn level using default logger
func Warn(msg string, args ...any) { defaultLogger.Warn(msg, args...) }

// Error logs at error level using default logger
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }

// WithScan returns a logger with scan id using the default logger
func WithScan(scanID string) *Logger { return defaultLogger.WithScan(scanID) }

// WithTool returns a logger with tool name using the default logger
func WithTool(tool string) *Logger { return defaultLogger.WithTool(tool) }

// WithOperation returns a logger with operation using the default logger
func WithOperation(op string) *Logger { return defaultLogger.WithOperation(op) }

// shortPath returns the last two path components
func shortPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			for j := i - 1; j >= 0; j-- {
				if path[j] == '/' {
					return path[j+1:]
				}
			}
			return path
		}
	}
	return path
}

// Timing returns a function that logs the duration when called.
// Usage: defer logging.Timing(logger, "operation")()
func Timing(l *Logger, operation string) func() {
	start := time.Now()
	return func() {
		l.WithDuration(time.Since(start)).Info(operation + " completed")
	}
}

// LogPanic recovers from a panic and logs it.
// Usage: defer logging.LogPanic(logger)
func LogPanic(l *Logger) {
	if r := recover(); r != nil {
		stack := make([]byte, 4096)
		n := runtime.Stack(stack, false)
		l.Error("panic recovered", "panic", r, "stack", string(stack[:n]))
	}
}

// Config holds logger configuration
type Config struct {
	Level     Level
	Output    io.Writer
	Human     bool
	AddSource bool
}

// DefaultConfig returns default logging configuration: JSON to stderr at info level.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Human:  false,
	}
}

// NewFromConfig creates a logger from configuration
func NewFromConfig(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Human {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	return &Logger{slog.New(handler)}
}

// ParseLevel parses a level string
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}
