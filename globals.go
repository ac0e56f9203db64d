package osl

import "github.com/gogpu/osl/engine"

// ShaderGlobals is the per-point state exchanged with the engine.
type ShaderGlobals = engine.ShaderGlobals

// ClosureColor is a node of the closure tree a shader writes into Ci.
type ClosureColor = engine.ClosureColor

// RendererServices is the set of callbacks the engine makes into the
// renderer.
type RendererServices = engine.RendererServices
