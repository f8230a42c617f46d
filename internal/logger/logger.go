package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	levelNames = map[int]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}

	// Default to INFO in production, DEBUG in development
	minLevel atomic.Int32
)

// Logger wraps the standard logger with levels and a component tag
type Logger struct {
	component string
	fields    string
}

func init() {
	minLevel.Store(LevelInfo)
	if os.Getenv("ENV") == "development" {
		minLevel.Store(LevelDebug)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

// Setup points the process logger at w and applies the named level.
// Unknown names keep the current level.
func Setup(w io.Writer, level string) {
	if w != nil {
		log.SetOutput(w)
	}
	if lvl, ok := ParseLevel(level); ok {
		SetMinLevel(lvl)
	}
}

// ParseLevel converts "debug", "info", "warn" or "error" to a level
func ParseLevel(name string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return 0, false
}

// SetMinLevel allows changing the minimum log level at runtime
func SetMinLevel(level int) {
	minLevel.Store(int32(level))
}

// With returns a logger that prefixes every line with key=value
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		component: l.component,
		fields:    l.fields + fmt.Sprintf("%s=%v ", key, value),
	}
}

// Enabled reports whether lines at level would be written
func (l *Logger) Enabled(level int) bool {
	return int32(level) >= minLevel.Load()
}

// logf logs a message at the specified level
func (l *Logger) logf(level int, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	prefix := fmt.Sprintf("[%s][%s] %s", levelNames[level], l.component, l.fields)
	log.Printf(prefix+format, args...)
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// Fatal logs at error level regardless of the minimum level and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	prefix := fmt.Sprintf("[FATAL][%s] %s", l.component, l.fields)
	log.Printf(prefix+format, args...)
	os.Exit(1)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development"
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
