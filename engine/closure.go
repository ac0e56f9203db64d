package engine

import (
	"golang.org/x/image/math/f32"
)

// ClosureKind distinguishes closure tree nodes.
type ClosureKind uint8

// Closure node kinds.
const (
	ClosureComponent ClosureKind = iota
	ClosureAdd
	ClosureMul
)

// ClosureColor is a node of the closure tree a shader writes into
// ShaderGlobals.Ci.
//
// A component carries the registered closure ID and its parameter record,
// laid out exactly as registered with RegisterClosure. Add nodes sum A and B;
// Mul nodes scale A by Weight.
type ClosureColor struct {
	Kind   ClosureKind
	ID     int32
	Weight f32.Vec3
	Params []byte
	A, B   *ClosureColor
}

// WeightedComponent is a closure component with its accumulated weight.
type WeightedComponent struct {
	Weight    f32.Vec3
	Component *ClosureColor
}

// Flatten walks the tree and returns its components with the product of all
// weights on the path to each one. A nil tree yields nil.
func (c *ClosureColor) Flatten() []WeightedComponent {
	var out []WeightedComponent
	c.flatten(f32.Vec3{1, 1, 1}, &out)
	return out
}

func (c *ClosureColor) flatten(w f32.Vec3, out *[]WeightedComponent) {
	if c == nil {
		return
	}
	switch c.Kind {
	case ClosureAdd:
		c.A.flatten(w, out)
		c.B.flatten(w, out)
	case ClosureMul:
		c.A.flatten(mulVec3(w, c.Weight), out)
	default:
		*out = append(*out, WeightedComponent{Weight: mulVec3(w, c.Weight), Component: c})
	}
}

func mulVec3(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
