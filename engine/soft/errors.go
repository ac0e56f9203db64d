package soft

import "errors"

// Errors returned by master loading and kernels. The engine boundary itself
// reports failures as false results plus a message to the ErrorHandler;
// these values appear wrapped in those messages and in the errors kernels
// return.
var (
	// ErrShaderNotFound is returned when no master of the given name exists
	// on the search path, in registered sources or in the stock library.
	ErrShaderNotFound = errors.New("soft: shader not found")

	// ErrInvalidMaster is returned for WGSL that parses but does not follow
	// the master convention.
	ErrInvalidMaster = errors.New("soft: invalid shader master")

	// ErrNoKernel is returned when a master has no matching Kernel.
	ErrNoKernel = errors.New("soft: no kernel for shader")

	// ErrUnknownClosure is returned when a kernel builds a closure that is
	// not registered.
	ErrUnknownClosure = errors.New("soft: unknown closure")

	// ErrClosureArgs is returned when closure arguments do not match the
	// registered layout.
	ErrClosureArgs = errors.New("soft: closure arguments do not match layout")

	// ErrRequiredParam is returned when a required parameter is neither set
	// nor connected.
	ErrRequiredParam = errors.New("soft: required parameter not bound")
)
