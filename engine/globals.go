package engine

import (
	"golang.org/x/image/math/f32"
)

// ShaderGlobals holds the state of one point being shaded. The renderer
// fills it in before Execute; the engine reads it, writes Ci and uses
// Context. All points, vectors and normals are in "common" space.
//
// Ci and the values reachable through symbols are only meaningful after
// Execute returns.
type ShaderGlobals struct {
	// Surface position and its x and y differentials.
	P, DPdx, DPdy f32.Vec3
	// P's z differential, used for volume shading only.
	DPdz f32.Vec3

	// Incident ray and its x and y derivatives.
	I, DIdx, DIdy f32.Vec3

	// Shading normal, already front-facing.
	N f32.Vec3
	// True geometric normal.
	Ng f32.Vec3

	// Surface parameters and their differentials.
	U, DUdx, DUdy float32
	V, DVdx, DVdy float32

	// Surface tangents: derivatives of P with respect to u and v.
	DPdu, DPdv f32.Vec3

	// Time of the sample, the frame's time interval, and the velocity.
	Time, DTime float32
	DPdtime     f32.Vec3

	// Point being illuminated by light shaders, and its differentials.
	Ps, DPsdx, DPsdy f32.Vec3

	// Opaque renderer state handed back through RendererServices.
	RenderState any
	TraceData   any
	ObjData     any

	// Context is set by the engine during Execute. Renderers leave it alone.
	Context ContextHandle

	// Renderer is how the engine calls back into the renderer.
	Renderer RendererServices

	// Opaque transformation identifiers resolved by
	// RendererServices.GetMatrix.
	Object2Common any
	Shader2Common any

	// Ci receives the output closure. Set it to nil before Execute.
	Ci *ClosureColor

	// Surface area of the emissive object.
	SurfaceArea float32

	// Ray type bit field.
	RayType int32

	// FlipHandedness flips the result of calculatenormal().
	FlipHandedness bool

	// Backfacing is set when shading the back side of a surface.
	Backfacing bool
}
