// Package osl is a session layer around a procedural-shading engine.
//
// # Overview
//
// A ShadingSystem owns one engine instance (see package engine) and the
// renderer callbacks it shades with. Through it a renderer registers the
// binary layout of its closures, sets attributes, builds shader groups,
// checks out per-thread execution contexts, executes groups point by point
// and shades whole images in parallel.
//
// # Quick Start
//
//	ss, err := osl.New(renderer)
//	if err != nil {
//	    return err
//	}
//	defer ss.Close()
//
//	diffuse, err := osl.DescribeClosure[DiffuseParams]("diffuse", 1).
//	    Field("N", osl.WithSemantics(typedesc.Normal)).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	if err := ss.RegisterClosure(diffuse); err != nil {
//	    return err
//	}
//
//	g, err := ss.ShaderGroupBegin("material")
//	if err != nil {
//	    return err
//	}
//	defer g.Release()
//	ss.Parameter(g, "Kd", osl.Float(0.8))
//	ss.Shader(g, "surface", "matte", "layer1")
//	if err := ss.ShaderGroupEnd(g); err != nil {
//	    return err
//	}
//
//	err = ss.ShadeImage(g, nil, buf, []string{"albedo"}, osl.ShadePixelCenters, buf.ROI())
//
// # Phases
//
// Use of a session follows a fixed order:
//   - Registration: RegisterClosure, on one goroutine, before any group.
//     The first ShaderGroupBegin ends the phase.
//   - Compilation: ShaderGroupBegin, Parameter, Shader, ConnectShaders,
//     ShaderGroupEnd. A closed group is immutable and may be shared.
//   - Execution: CreateThreadInfo, GetContext, Execute, FindSymbol,
//     SymbolAddress, ReleaseContext, DestroyThreadInfo; or ShadeImage,
//     which manages its own workers.
//
// # Threads
//
// CreateThreadInfo locks the calling goroutine to its OS thread. A
// ThreadInfo and the ShadingContexts checked out from it may only be used
// on that thread; any other use panics. WithContext wraps the whole
// acquire and release sequence.
//
// # Errors
//
// Recoverable failures are returned as errors wrapping the sentinels in
// errors.go, and are also sent to the session's ErrorHandler. Contract
// violations (cross-thread use, releasing a group more often than it was
// retained, calling back into the session from the ErrorHandler) panic.
//
// # Logging
//
// The package is silent by default. SetLogger enables log/slog output for
// this package and the engines of live sessions.
package osl
