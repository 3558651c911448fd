package pkg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Component identifies a subsystem for log filtering.
type Component string

// NVEC component identifiers.
const (
	ComponentChip  Component = "chip"  // lifecycle and public API
	ComponentFSM   Component = "fsm"   // interrupt-driven slave state machine
	ComponentXfer  Component = "xfer"  // blocking command transfers
	ComponentEvent Component = "event" // event pool and dispatch
	ComponentHAL   Component = "hal"   // slave controller backends
	ComponentSim   Component = "sim"   // simulated controller and EC
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// DefaultLogger is the default logger used by all softnvec packages.
	DefaultLogger *slog.Logger

	// logLevel controls the minimum log level.
	logLevel = new(slog.LevelVar)

	// logMutex protects logger configuration.
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum log level for all softnvec logging.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetLogger replaces the default logger with a custom logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat configures the default logger to use the specified format.
// The logger writes to os.Stderr and uses the current log level.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	opts := &slog.HandlerOptions{Level: logLevel}
	switch format {
	case LogFormatJSON:
		DefaultLogger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
	default:
		DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
}

// NewLogger creates a new text logger writing to the given writer.
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewJSONLogger creates a new JSON logger writing to the given writer.
func NewJSONLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func logger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

func logAt(level slog.Level, component Component, msg string, args []any) {
	l := logger()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, msg, append([]any{"component", string(component)}, args...)...)
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	logAt(slog.LevelDebug, component, msg, args)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	logAt(slog.LevelInfo, component, msg, args)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logAt(slog.LevelWarn, component, msg, args)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logAt(slog.LevelError, component, msg, args)
}

// Limiter suppresses repeats of a log message within a window. The
// interrupt handler uses one per failure class so a babbling bus master
// cannot flood the log; suppressed messages are counted and reported with
// the next one that gets through.
type Limiter struct {
	lim        *rate.Limiter
	suppressed atomic.Uint64
}

// NewLimiter returns a Limiter emitting at most one message per window.
func NewLimiter(window time.Duration) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Every(window), 1)}
}

// Allow reports whether a message may be emitted now, along with the
// number of messages suppressed since the last one allowed.
func (l *Limiter) Allow(now time.Time) (bool, uint64) {
	if !l.lim.AllowN(now, 1) {
		l.suppressed.Add(1)
		return false, 0
	}
	return true, l.suppressed.Swap(0)
}

// Warn logs at warning level if the limiter allows it.
func (l *Limiter) Warn(component Component, msg string, args ...any) {
	if ok, n := l.Allow(time.Now()); ok {
		if n > 0 {
			args = append(args, "suppressed", n)
		}
		logAt(slog.LevelWarn, component, msg, args)
	}
}

// Error logs at error level if the limiter allows it.
func (l *Limiter) Error(component Component, msg string, args ...any) {
	if ok, n := l.Allow(time.Now()); ok {
		if n > 0 {
			args = append(args, "suppressed", n)
		}
		logAt(slog.LevelError, component, msg, args)
	}
}
