package osl

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// liveEngines are the engines of open sessions, for logger propagation.
var (
	liveMu      sync.Mutex
	liveEngines = make(map[*ShadingSystem]loggerSetter)
)

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for osl and the engines of all open
// sessions. By default, osl produces no log output. Call SetLogger to
// enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by osl:
//   - [slog.LevelDebug]: handle traffic (contexts, symbols, tiles)
//   - [slog.LevelInfo]: lifecycle events (session created, group compiled)
//   - [slog.LevelWarn]: recoverable failures and leaked resources
//
// The default ErrorHandler also writes engine diagnostics here.
//
// Example:
//
//	// Enable info-level logging to stderr:
//	osl.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	osl.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.Lock()
	defer liveMu.Unlock()
	for _, ls := range liveEngines {
		ls.SetLogger(l)
	}
}

// Logger returns the current logger used by osl.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by engines that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// trackEngine passes the current logger to the session's engine if it
// implements loggerSetter, and keeps it updated until untrackEngine.
func trackEngine(ss *ShadingSystem) {
	ls, ok := ss.eng.(loggerSetter)
	if !ok {
		return
	}
	ls.SetLogger(Logger())

	liveMu.Lock()
	liveEngines[ss] = ls
	liveMu.Unlock()
}

func untrackEngine(ss *ShadingSystem) {
	liveMu.Lock()
	delete(liveEngines, ss)
	liveMu.Unlock()
}
