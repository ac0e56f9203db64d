package osl

import (
	"errors"
	"fmt"

	"github.com/gogpu/osl/typedesc"
)

// Setup errors.
var (
	// ErrEngineUnavailable is returned by New when no engine can be created.
	ErrEngineUnavailable = errors.New("osl: engine unavailable")

	// ErrThreadInfoCreationFailed is returned when the engine cannot
	// allocate per-thread state.
	ErrThreadInfoCreationFailed = errors.New("osl: thread info creation failed")

	// ErrSessionClosed is returned by every operation after Close.
	ErrSessionClosed = errors.New("osl: session closed")
)

// Configuration errors.
var (
	// ErrAttributeRejected is returned when the engine does not recognize an
	// attribute name or type. Engine state is unchanged.
	ErrAttributeRejected = errors.New("osl: attribute rejected")

	// ErrDuplicateClosureName is returned when a closure name is registered
	// again with a different id or layout.
	ErrDuplicateClosureName = errors.New("osl: duplicate closure name")

	// ErrDuplicateClosureID is returned when a closure id is already used by
	// another name.
	ErrDuplicateClosureID = errors.New("osl: duplicate closure id")

	// ErrRegistrationClosed is returned by RegisterClosure after the first
	// ShaderGroupBegin.
	ErrRegistrationClosed = errors.New("osl: closure registration closed")

	// ErrInvalidLayout is returned by ClosureBuilder.Build for record types
	// or field declarations that cannot be described.
	ErrInvalidLayout = errors.New("osl: invalid closure layout")
)

// Build errors.
var (
	// ErrShaderFailed is returned when a layer cannot be added to a group.
	ErrShaderFailed = errors.New("osl: shader failed")

	// ErrParameterFailed is returned when a parameter value is rejected.
	ErrParameterFailed = errors.New("osl: parameter failed")

	// ErrConnectFailed is returned when two layers cannot be connected.
	ErrConnectFailed = errors.New("osl: connect failed")

	// ErrGroupCompileFailed is returned when ShaderGroupEnd fails.
	ErrGroupCompileFailed = errors.New("osl: group compile failed")

	// ErrGroupClosed is returned for building calls on a closed group.
	ErrGroupClosed = errors.New("osl: group closed")
)

// Execution errors.
var (
	// ErrExecuteFailed is returned when the engine fails to execute a group.
	ErrExecuteFailed = errors.New("osl: execute failed")

	// ErrSymbolNotFound is returned when a symbol does not exist or the group
	// has not been executed yet.
	ErrSymbolNotFound = errors.New("osl: symbol not found")

	// ErrShadeRegionFailed is wrapped by ShadeRegionError.
	ErrShadeRegionFailed = errors.New("osl: shade region failed")

	// ErrInvalidRegion is returned for regions outside the image or with
	// begin greater than end.
	ErrInvalidRegion = errors.New("osl: invalid region")

	// ErrContextUnavailable is returned when no shading context can be
	// checked out.
	ErrContextUnavailable = errors.New("osl: shading context unavailable")

	// ErrContextReleased is returned for any use of a released context.
	ErrContextReleased = errors.New("osl: shading context released")

	// ErrContextsOutstanding is returned by DestroyThreadInfo while contexts
	// of the thread info are still checked out.
	ErrContextsOutstanding = errors.New("osl: shading contexts outstanding")

	// ErrThreadInfoDestroyed is returned for any use of a destroyed thread
	// info.
	ErrThreadInfoDestroyed = errors.New("osl: thread info destroyed")

	// ErrGroupNotClosed is returned when executing a group that is still
	// open.
	ErrGroupNotClosed = errors.New("osl: group not closed")

	// ErrGroupUnusable is returned when executing a group whose build failed
	// or that has been released.
	ErrGroupUnusable = errors.New("osl: group unusable")
)

// AttributeError describes a rejected attribute.
type AttributeError struct {
	// Scope is "session" or "group".
	Scope string
	Name  string
	Type  typedesc.TypeDesc
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("osl: %s attribute %q of type %s rejected", e.Scope, e.Name, e.Type)
}

// Unwrap returns ErrAttributeRejected.
func (e *AttributeError) Unwrap() error { return ErrAttributeRejected }

// ShaderError describes a layer that could not be added to a group.
type ShaderError struct {
	Group  string
	Usage  string
	Shader string
	Layer  string
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("osl: group %q: %s shader %q (layer %q) failed", e.Group, e.Usage, e.Shader, e.Layer)
}

// Unwrap returns ErrShaderFailed.
func (e *ShaderError) Unwrap() error { return ErrShaderFailed }

// ShadeRegionError is returned by ShadeImage when a point fails to shade.
// Shading stops at the first failure; pixels shaded before it keep their
// values.
type ShadeRegionError struct {
	// X and Y locate the first pixel that failed.
	X, Y int
	// Shaded is the number of points shaded successfully.
	Shaded int64
	// Cause is the first failure.
	Cause error
}

func (e *ShadeRegionError) Error() string {
	return fmt.Sprintf("osl: shade region failed at pixel (%d, %d) after %d points: %v", e.X, e.Y, e.Shaded, e.Cause)
}

// Unwrap returns ErrShadeRegionFailed and the cause.
func (e *ShadeRegionError) Unwrap() []error { return []error{ErrShadeRegionFailed, e.Cause} }
