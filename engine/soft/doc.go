// Package soft is the in-process reference engine behind the engine.Engine
// boundary.
//
// Shader masters are interface declarations written in WGSL and parsed with
// naga. A master names its input parameters, its outputs, the shader usage
// and the closures it may build:
//
//	struct Params {
//	    @init(8.0) scale: f32,
//	    @string @init(perlin) noisetype: u32,
//	}
//
//	struct Outputs {
//	    @semantics(color) Cout: vec3<f32>,
//	}
//
//	@shader(surface) @closures(diffuse)
//	fn noisetest(params: Params) -> Outputs {
//	    var out: Outputs;
//	    return out;
//	}
//
// Member attributes:
//
//	@init(v, ...)        default value; one value is broadcast to all components
//	@semantics(kind)     color, point, vector or normal for vec3<f32> members
//	@string              the u32 member holds an interned string
//	@required            execution fails unless the value is set or connected
//
// The body of a master is not evaluated. Each master is paired with a Kernel,
// a Go function that reads parameters and globals and writes outputs and
// closures through an Exec. The stock library (noisetest, checker, matte,
// metal, emitter) is embedded; more masters are found on the
// "searchpath:shader" attribute or added with WithShaderSource and
// WithKernel.
//
// Importing this package registers the engine under engine.NameSoft.
package soft
