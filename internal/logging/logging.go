// Package logging provides the process-wide structured logger: a
// package-level zap logger behind a verbosity toggle, with Debugf/Infof/
// Warnf/Errorf helpers so call sites don't thread a logger value through
// every constructor.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.RWMutex
	logger  = newLogger(false)
	verbose bool
)

func newLogger(debug bool) *zap.SugaredLogger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than panic: logging must
		// never be the reason the service fails to start.
		l = zap.NewNop()
	}
	return l.Sugar()
}

// SetVerbose adjusts the global logging level.
func SetVerbose(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = enable
	logger = newLogger(enable)
}

// Verbose reports whether verbose logging is enabled.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debugf logs a debug message when verbose logging is enabled.
func Debugf(format string, args ...any) { current().Debugf(format, args...) }

// Infof logs an informational message.
func Infof(format string, args ...any) { current().Infof(format, args...) }

// Warnf logs a warning message.
func Warnf(format string, args ...any) { current().Warnf(format, args...) }

// Errorf logs an error message.
func Errorf(format string, args ...any) { current().Errorf(format, args...) }

// With returns a logger annotated with structured key/value pairs, for call
// sites that want fields instead of format strings.
func With(kv ...any) *zap.SugaredLogger { return current().With(kv...) }

// Sync flushes any buffered log entries. Call during graceful shutdown.
func Sync() error { return current().Sync() }
