// Package engine defines the boundary between the shading session and a
// procedural-shading engine.
//
// Everything an engine exposes is reached through the Engine interface using
// opaque handles. Handles are plain integers: the session never dereferences
// them, and an engine is free to map them onto whatever native resources it
// manages. The zero handle is the null handle and signals failure wherever a
// handle is returned.
//
// Engines are not expected to be reentrant with respect to their error
// handler, and they do not check thread affinity: per-thread state
// (ThreadInfoHandle) and the contexts derived from it must only be used on
// the OS thread that created the thread state. The session layer in package
// osl enforces both rules; code calling an Engine directly must do the same.
//
// Engine implementations register themselves by name, typically from an
// init function:
//
//	func init() {
//		engine.Register(engine.NameSoft, func(rs engine.RendererServices, eh engine.ErrorHandler) (engine.Engine, error) {
//			return New(rs, eh), nil
//		})
//	}
package engine
