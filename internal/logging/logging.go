// Package logging provides leveled, printf-style logging for the whole
// application, backed by zerolog. Output defaults to stderr in text format;
// JSON format is available for log aggregation.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level represents a log severity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the uppercase name of the level.
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

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a
// Level. Matching is case-insensitive; "warning" is accepted as an alias.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

var (
	mu     sync.Mutex
	level  = LevelInfo
	format = "text"
	out    io.Writer = os.Stderr
	logger = newLogger(os.Stderr, "text", LevelInfo)
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
}

func newLogger(w io.Writer, format string, lvl Level) zerolog.Logger {
	if format == "text" {
		w = zerolog.ConsoleWriter{
			Out:     w,
			NoColor: true,
			FormatLevel: func(i interface{}) string {
				if s, ok := i.(string); ok {
					return "[" + strings.ToUpper(s) + "]"
				}
				return "[?]"
			},
		}
	}
	return zerolog.New(w).Level(lvl.zerolog()).With().Timestamp().Logger()
}

// SetOutput redirects log output. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
	logger = newLogger(out, format, level)
}

// SetFormat selects the output format: "json" or "text".
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	if f != "json" {
		f = "text"
	}
	format = f
	logger = newLogger(out, format, level)
}

// SetLevel sets the minimum level that will be logged.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	logger = newLogger(out, format, level)
}

// GetLevel returns the current minimum log level.
func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return level
}

// IsDebug reports whether debug logging is enabled.
func IsDebug() bool {
	return GetLevel() == LevelDebug
}

func current() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Debug logs a debug-level message.
func Debug(format string, args ...interface{}) {
	l := current()
	l.Debug().Msgf(format, args...)
}

// Info logs an info-level message.
func Info(format string, args ...interface{}) {
	l := current()
	l.Info().Msgf(format, args...)
}

// Warn logs a warning-level message.
func Warn(format string, args ...interface{}) {
	l := current()
	l.Warn().Msgf(format, args...)
}

// Error logs an error-level message.
func Error(format string, args ...interface{}) {
	l := current()
	l.Error().Msgf(format, args...)
}
