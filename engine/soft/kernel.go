package soft

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
	"github.com/gogpu/osl/ustring"
)

// ClosureSignature is the field list a kernel expects a closure to have
// been registered with. Only base type, aggregate and array length are
// compared.
type ClosureSignature struct {
	Name   string
	Fields []typedesc.TypeDesc
}

// Kernel evaluates one shader master.
type Kernel struct {
	// Name matches the master's shader name.
	Name string
	// Closures lists the closures Eval may build. Each must be registered
	// with a matching layout before a group using the shader compiles.
	Closures []ClosureSignature
	// Eval runs the shader for one point.
	Eval func(x *Exec) error
}

// Exec is a kernel's view of one layer being executed: its parameters, its
// outputs and the shader globals. An Exec is only valid during Eval.
type Exec struct {
	e     *Engine
	g     *group
	layer *layer
	ctx   *shadingContext
	sg    *engine.ShaderGlobals
}

// Globals returns the shader globals of the point being shaded.
func (x *Exec) Globals() *engine.ShaderGlobals { return x.sg }

// Layer returns the name of the layer being executed.
func (x *Exec) Layer() string { return x.layer.name }

// slot returns the heap bytes of a parameter or output. Unknown names and
// type mismatches are kernel bugs and panic.
func (x *Exec) slot(name string, want typedesc.TypeDesc) []byte {
	idx, ok := x.layer.slotByName[name]
	if !ok {
		panic(fmt.Sprintf("soft: shader %q has no parameter %q", x.layer.master.Name, name))
	}
	s := &x.g.slots[idx]
	if !s.td.Equivalent(want) {
		panic(fmt.Sprintf("soft: %s.%s is %s, not %s", x.layer.name, name, s.td, want))
	}
	return x.ctx.bytes(s)
}

// Float returns a float parameter.
func (x *Exec) Float(name string) float32 {
	return *(*float32)(unsafe.Pointer(&x.slot(name, typedesc.TypeFloat)[0]))
}

// Int returns an int parameter.
func (x *Exec) Int(name string) int32 {
	return *(*int32)(unsafe.Pointer(&x.slot(name, typedesc.TypeInt32)[0]))
}

// String returns a string parameter.
func (x *Exec) String(name string) string {
	return (*(*ustring.Ustring)(unsafe.Pointer(&x.slot(name, typedesc.TypeString)[0]))).String()
}

// Vec3 returns a color, point, vector or normal parameter.
func (x *Exec) Vec3(name string) f32.Vec3 {
	return *(*f32.Vec3)(unsafe.Pointer(&x.slot(name, typedesc.TypeVector)[0]))
}

// Matrix returns a matrix parameter.
func (x *Exec) Matrix(name string) f32.Mat4 {
	return *(*f32.Mat4)(unsafe.Pointer(&x.slot(name, typedesc.TypeMatrix44)[0]))
}

// Floats returns a float array parameter as a view into the context heap.
func (x *Exec) Floats(name string) []float32 {
	idx, ok := x.layer.slotByName[name]
	if !ok {
		panic(fmt.Sprintf("soft: shader %q has no parameter %q", x.layer.master.Name, name))
	}
	s := &x.g.slots[idx]
	if s.td.BaseType != typedesc.Float {
		panic(fmt.Sprintf("soft: %s.%s is %s, not a float type", x.layer.name, name, s.td))
	}
	b := x.ctx.bytes(s)
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), s.td.BaseValues())
}

// SetFloat writes a float output.
func (x *Exec) SetFloat(name string, v float32) {
	*(*float32)(unsafe.Pointer(&x.slot(name, typedesc.TypeFloat)[0])) = v
}

// SetInt writes an int output.
func (x *Exec) SetInt(name string, v int32) {
	*(*int32)(unsafe.Pointer(&x.slot(name, typedesc.TypeInt32)[0])) = v
}

// SetString writes a string output.
func (x *Exec) SetString(name, v string) {
	*(*ustring.Ustring)(unsafe.Pointer(&x.slot(name, typedesc.TypeString)[0])) = ustring.New(v)
}

// SetVec3 writes a color, point, vector or normal output.
func (x *Exec) SetVec3(name string, v f32.Vec3) {
	*(*f32.Vec3)(unsafe.Pointer(&x.slot(name, typedesc.TypeVector)[0])) = v
}

// SetMatrix writes a matrix output.
func (x *Exec) SetMatrix(name string, m f32.Mat4) {
	*(*f32.Mat4)(unsafe.Pointer(&x.slot(name, typedesc.TypeMatrix44)[0])) = m
}

// Closure builds a closure component. args follow the registered layout:
// string or ustring.Ustring for strings, float32, int32 and f32.Vec3.
func (x *Exec) Closure(name string, weight f32.Vec3, args ...any) (*engine.ClosureColor, error) {
	decl := x.e.closure(name)
	if decl == nil {
		return nil, x.Errorf("%w: %q", ErrUnknownClosure, name)
	}
	params, err := decl.pack(args)
	if err != nil {
		return nil, x.Errorf("%w", err)
	}
	return &engine.ClosureColor{
		Kind:   engine.ClosureComponent,
		ID:     decl.id,
		Weight: weight,
		Params: params,
	}, nil
}

// Add returns the sum of two closures. A nil operand yields the other.
func (x *Exec) Add(a, b *engine.ClosureColor) *engine.ClosureColor {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &engine.ClosureColor{Kind: engine.ClosureAdd, A: a, B: b}
}

// Mul scales a closure by w.
func (x *Exec) Mul(w f32.Vec3, a *engine.ClosureColor) *engine.ClosureColor {
	if a == nil {
		return nil
	}
	return &engine.ClosureColor{Kind: engine.ClosureMul, Weight: w, A: a}
}

// SetCi adds c to the output closure of the point.
func (x *Exec) SetCi(c *engine.ClosureColor) {
	x.sg.Ci = x.Add(x.sg.Ci, c)
}

// Noise returns unsigned Perlin noise of p in [0, 1], or 0.5 when the
// "no_noise" attribute is set.
func (x *Exec) Noise(p f32.Vec3) float32 {
	if x.e.noNoise() {
		return 0.5
	}
	return 0.5 * (perlin(p[0], p[1], p[2]) + 1)
}

// CellNoise returns a value in [0, 1) that is constant over each unit cell.
func (x *Exec) CellNoise(p f32.Vec3) float32 {
	if x.e.noNoise() {
		return 0.5
	}
	return cellNoise(
		int32(math.Floor(float64(p[0]))),
		int32(math.Floor(float64(p[1]))),
		int32(math.Floor(float64(p[2]))),
	)
}

// Transform transforms point p by the matrix the renderer associates with
// xform (for example sg.Object2Common). The point is returned unchanged
// when the renderer does not know the transform.
func (x *Exec) Transform(xform any, p f32.Vec3) f32.Vec3 {
	if x.sg.Renderer == nil {
		return p
	}
	m, ok := x.sg.Renderer.GetMatrix(x.sg, xform)
	if !ok {
		if x.e.attrs.int("unknown_coordsys_error") != 0 {
			x.Warningf("unknown transformation %v", xform)
		}
		return p
	}
	return f32.Vec3{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

// Errorf reports an error for the layer through the engine's error handler
// and returns it, so kernels can write "return x.Errorf(...)".
func (x *Exec) Errorf(format string, args ...any) error {
	err := fmt.Errorf("shader %s, layer %s: "+format,
		append([]any{x.layer.master.Name, x.layer.name}, args...)...)
	x.e.report(engine.ErrCodeError, err.Error())
	return err
}

// Warningf reports a warning for the layer.
func (x *Exec) Warningf(format string, args ...any) {
	msg := fmt.Sprintf("shader %s, layer %s: "+format,
		append([]any{x.layer.master.Name, x.layer.name}, args...)...)
	x.e.report(engine.ErrCodeWarning, msg)
}
