package engine

import (
	"errors"
	"fmt"
)

// Package errors for the engine registry.
var (
	// ErrNotRegistered is returned when no engine is registered under a name.
	ErrNotRegistered = errors.New("engine: not registered")

	// ErrNoEngine is returned when no engine is registered at all.
	ErrNoEngine = errors.New("engine: no engine available")
)

// ErrCode classifies a message sent to an ErrorHandler. The values match
// the OpenImageIO error handler codes.
type ErrCode int32

// Error codes.
const (
	ErrCodeMessage ErrCode = 0 << 16
	ErrCodeInfo    ErrCode = 1 << 16
	ErrCodeWarning ErrCode = 2 << 16
	ErrCodeError   ErrCode = 3 << 16
	ErrCodeSevere  ErrCode = 4 << 16
	ErrCodeDebug   ErrCode = 5 << 16
)

// String returns the upper-case label used when printing messages.
func (c ErrCode) String() string {
	switch c {
	case ErrCodeMessage:
		return "MESSAGE"
	case ErrCodeInfo:
		return "INFO"
	case ErrCodeWarning:
		return "WARNING"
	case ErrCodeError:
		return "ERROR"
	case ErrCodeSevere:
		return "SEVERE"
	case ErrCodeDebug:
		return "DEBUG"
	default:
		return fmt.Sprintf("ErrCode(%d)", int32(c))
	}
}

// ErrorHandler receives diagnostics from an engine. It is called
// synchronously, possibly from engine worker threads, and must not call back
// into the engine.
type ErrorHandler func(code ErrCode, msg string)
