package osl

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/internal/thread"
)

// Severity classifies a diagnostic. The values are the engine's wire codes.
type Severity int32

// Severities, in the engine's numbering.
const (
	SeverityMessage = Severity(engine.ErrCodeMessage)
	SeverityInfo    = Severity(engine.ErrCodeInfo)
	SeverityWarning = Severity(engine.ErrCodeWarning)
	SeverityError   = Severity(engine.ErrCodeError)
	SeveritySevere  = Severity(engine.ErrCodeSevere)
	SeverityDebug   = Severity(engine.ErrCodeDebug)
)

// String returns the upper-case label of s.
func (s Severity) String() string { return engine.ErrCode(s).String() }

// Verbosity selects which severities reach the ErrorHandler.
type Verbosity uint8

// Verbosity levels.
const (
	// VerbosityNormal drops Debug.
	VerbosityNormal Verbosity = iota
	// VerbosityQuiet drops Debug, Info and Message.
	VerbosityQuiet
	// VerbosityVerbose passes everything.
	VerbosityVerbose
)

// ErrorHandler receives diagnostics. It is called synchronously, possibly
// from shading worker threads, and must not call back into the session:
// doing so from the same goroutine panics.
type ErrorHandler func(sev Severity, msg string)

// LogHandler is the default ErrorHandler. It writes to the package logger.
func LogHandler(sev Severity, msg string) {
	Logger().Log(context.Background(), logLevel(sev), msg, "severity", sev.String())
}

// passes reports whether v lets sev through.
func (v Verbosity) passes(sev Severity) bool {
	switch sev {
	case SeverityDebug:
		return v == VerbosityVerbose
	case SeverityInfo, SeverityMessage:
		return v != VerbosityQuiet
	}
	return true
}

// errorSink filters diagnostics and records which OS threads are inside the
// handler so re-entrant calls can be caught.
type errorSink struct {
	handler   ErrorHandler
	verbosity Verbosity

	active   atomic.Int32
	inside   sync.Map // thread.ID -> struct{}
	reported atomic.Int64
}

func newErrorSink(h ErrorHandler, v Verbosity) *errorSink {
	if h == nil {
		h = LogHandler
	}
	return &errorSink{handler: h, verbosity: v}
}

// report delivers one diagnostic.
func (s *errorSink) report(sev Severity, msg string) {
	if !s.verbosity.passes(sev) {
		return
	}
	s.reported.Add(1)

	if !thread.Supported() {
		s.handler(sev, msg)
		return
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	id := thread.Current()
	s.inside.Store(id, struct{}{})
	s.active.Add(1)
	defer func() {
		s.active.Add(-1)
		s.inside.Delete(id)
	}()
	s.handler(sev, msg)
}

// reportf formats and delivers one diagnostic.
func (s *errorSink) reportf(sev Severity, format string, args ...any) {
	if !s.verbosity.passes(sev) {
		return
	}
	s.report(sev, fmt.Sprintf(format, args...))
}

// engineHandler adapts the sink to the engine's callback type.
func (s *errorSink) engineHandler() engine.ErrorHandler {
	return func(code engine.ErrCode, msg string) {
		s.report(Severity(code), msg)
	}
}

// guard panics when called from inside the handler on the same thread.
func (s *errorSink) guard(op string) {
	if s.active.Load() == 0 {
		return
	}
	if _, in := s.inside.Load(thread.Current()); in {
		panic(fmt.Sprintf("osl: %s called from inside the ErrorHandler", op))
	}
}

// logLevel maps a severity onto slog levels.
func logLevel(sev Severity) slog.Level {
	switch sev {
	case SeverityError, SeveritySevere:
		return slog.LevelError
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityDebug:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
