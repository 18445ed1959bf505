// Package logger provides the process-wide structured logger.
//
// It wraps log/slog with a small global API so callers can log without
// threading a logger through every constructor:
//
//	logger.Info("model admitted", "identity", id, "bytes", size)
//
// The level and format can be reconfigured at runtime (e.g. from a config
// file watch) without recreating the logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level represents log levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	currentLevel atomic.Int32

	mu      sync.RWMutex
	slogger *slog.Logger
	output  io.Writer = os.Stdout
	format            = "text"
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	rebuild()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// rebuild recreates the slog handler from the current settings.
// Caller must hold mu for writing, or be in init().
func rebuild() {
	opts := &slog.HandlerOptions{Level: toSlogLevel(Level(currentLevel.Load()))}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	slogger = slog.New(handler)
}

// Configure applies a full logger configuration. It is typically called once
// at startup; SetLevel can adjust verbosity afterwards.
func Configure(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var w io.Writer
	switch cfg.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		w = f
	}

	f := strings.ToLower(cfg.Format)
	if f != "json" {
		f = "text"
	}

	currentLevel.Store(int32(level))

	mu.Lock()
	defer mu.Unlock()
	output = w
	format = f
	rebuild()

	return nil
}

// SetLevel changes the minimum level at runtime. Invalid levels are ignored
// with a warning so a bad config reload cannot silence the logger.
func SetLevel(level string) {
	parsed, err := parseLevel(level)
	if err != nil {
		Warn("ignoring invalid log level", "level", level)
		return
	}

	currentLevel.Store(int32(parsed))

	mu.Lock()
	defer mu.Unlock()
	rebuild()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

func log(level Level, msg string, args ...any) {
	if level < Level(currentLevel.Load()) {
		return
	}

	mu.RLock()
	l := slogger
	mu.RUnlock()

	l.Log(context.Background(), toSlogLevel(level), msg, args...)
}

// Debug logs a message at DEBUG level with structured key-value pairs.
func Debug(msg string, args ...any) {
	log(LevelDebug, msg, args...)
}

// Info logs a message at INFO level with structured key-value pairs.
func Info(msg string, args ...any) {
	log(LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with structured key-value pairs.
func Warn(msg string, args ...any) {
	log(LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with structured key-value pairs.
func Error(msg string, args ...any) {
	log(LevelError, msg, args...)
}

// Debugf logs a printf-formatted message at DEBUG level.
func Debugf(format string, v ...any) {
	log(LevelDebug, fmt.Sprintf(format, v...))
}

// Infof logs a printf-formatted message at INFO level.
func Infof(format string, v ...any) {
	log(LevelInfo, fmt.Sprintf(format, v...))
}

// Warnf logs a printf-formatted message at WARN level.
func Warnf(format string, v ...any) {
	log(LevelWarn, fmt.Sprintf(format, v...))
}

// Errorf logs a printf-formatted message at ERROR level.
func Errorf(format string, v ...any) {
	log(LevelError, fmt.Sprintf(format, v...))
}
