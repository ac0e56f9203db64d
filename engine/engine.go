package engine

import (
	"unsafe"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/typedesc"
	"github.com/gogpu/osl/ustring"
)

// Opaque handles. Zero is the null handle.
type (
	GroupHandle      uint64
	ThreadInfoHandle uint64
	ContextHandle    uint64
	SymbolHandle     uint64
)

// ClosureParam is the wire form of one closure field. A closure layout is a
// slice of ClosureParam terminated by a sentinel whose Type.BaseType is
// typedesc.Unknown, whose Offset is the record size and whose FieldSize is
// the record alignment.
type ClosureParam struct {
	Type      typedesc.TypeDesc
	Offset    int32
	Key       ustring.Ustring
	FieldSize int32
}

// IsSentinel reports whether p terminates a closure layout.
func (p ClosureParam) IsSentinel() bool { return p.Type.BaseType == typedesc.Unknown }

// RendererServices is the set of callbacks an engine may make into the
// renderer while shading.
type RendererServices interface {
	// Supports reports whether the renderer implements an optional feature.
	Supports(feature string) bool

	// GetMatrix returns the matrix identified by xform at the time of sg.
	// xform is one of the opaque transformation values the renderer stored
	// in ShaderGlobals (Object2Common, Shader2Common).
	GetMatrix(sg *ShaderGlobals, xform any) (f32.Mat4, bool)
}

// UserDataProvider is optionally implemented by RendererServices to supply
// per-point values for shader parameters that are not locked to the
// geometry (lockgeom=0). out has the size of td; the provider fills it and
// returns true, or returns false to keep the instance value.
type UserDataProvider interface {
	GetUserData(sg *ShaderGlobals, name string, td typedesc.TypeDesc, out []byte) bool
}

// Engine is the procedural-shading engine boundary. Boolean results report
// success; details of any failure are sent to the engine's ErrorHandler.
//
// Registration (RegisterClosure, session Attribute) happens on a single
// goroutine before groups are built. Closed groups may then be executed
// concurrently from any number of threads, each with its own thread info and
// contexts.
type Engine interface {
	// RegisterClosure declares the parameter layout of a closure. params
	// must end with a sentinel entry.
	RegisterClosure(name string, id int32, params []ClosureParam)

	// Attribute sets a session attribute from raw bytes described by td.
	Attribute(name string, td typedesc.TypeDesc, val []byte) bool

	// GetAttribute reads a session attribute as td.
	GetAttribute(name string, td typedesc.TypeDesc) ([]byte, bool)

	// GroupAttribute sets an attribute on a single shader group.
	GroupAttribute(g GroupHandle, name string, td typedesc.TypeDesc, val []byte) bool

	// ShaderGroupBegin opens a new shader group.
	ShaderGroupBegin(name string) GroupHandle

	// Parameter records a pending parameter value for the next Shader call
	// on g. lockgeom=false marks the value as overridable by geometry.
	Parameter(g GroupHandle, name string, td typedesc.TypeDesc, val []byte, lockgeom bool) bool

	// Shader appends a shader instance (layer) to g.
	Shader(g GroupHandle, usage, shader, layer string) bool

	// ConnectShaders connects an output of an earlier layer to an input of
	// a later one.
	ConnectShaders(g GroupHandle, srcLayer, srcParam, dstLayer, dstParam string) bool

	// ShaderGroupEnd closes and compiles g.
	ShaderGroupEnd(g GroupHandle) bool

	// DestroyGroup releases g. The handle is invalid afterwards.
	DestroyGroup(g GroupHandle)

	// CreateThreadInfo allocates per-thread state for the calling thread.
	CreateThreadInfo() ThreadInfoHandle

	// DestroyThreadInfo releases per-thread state.
	DestroyThreadInfo(ti ThreadInfoHandle)

	// GetContext checks out a shading context bound to ti.
	GetContext(ti ThreadInfoHandle) ContextHandle

	// ReleaseContext returns a context to the pool.
	ReleaseContext(ctx ContextHandle)

	// Execute binds g to sg in ctx and, if run is true, evaluates it.
	Execute(ctx ContextHandle, g GroupHandle, sg *ShaderGlobals, run bool) bool

	// FindSymbol looks up a symbol of a group that has been executed at
	// least once. name may be "symbol" or "layer.symbol".
	FindSymbol(g GroupHandle, name string) SymbolHandle

	// SymbolTypeDesc returns the type of a symbol. Closures report
	// typedesc.TypeUnknown.
	SymbolTypeDesc(sym SymbolHandle) typedesc.TypeDesc

	// SymbolAddress returns where the value of sym lives in ctx's memory
	// for the most recent execution in ctx, or nil.
	SymbolAddress(ctx ContextHandle, sym SymbolHandle) unsafe.Pointer

	// Close tears the engine down. All groups, thread infos and contexts
	// must have been released.
	Close()
}
