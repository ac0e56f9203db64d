// Package thread identifies the OS thread the calling goroutine runs on.
//
// Callers that need a stable identity must first pin the goroutine with
// runtime.LockOSThread; the shading layer does so when it creates per-thread
// engine state, and then compares IDs on every use of that state.
package thread

// ID identifies an OS thread. Zero means the platform cannot report one.
type ID uint64

// Current returns the ID of the calling OS thread.
func Current() ID { return current() }

// Supported reports whether Current returns real thread IDs on this platform.
func Supported() bool { return supported }
