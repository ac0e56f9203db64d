// Package typedesc describes the type of a value crossing the engine
// boundary: its base type, aggregate shape, vector semantics and array length.
//
// The layout mirrors the OpenImageIO TypeDesc so descriptors can be passed to
// an engine unchanged:
//
//	[0] basetype  [1] aggregate  [2] vecsemantics  [3] reserved  [4:8] arraylen
package typedesc

import (
	"fmt"
	"strings"
)

// BaseType is the type of a single scalar element.
type BaseType uint8

// Base types, in OpenImageIO order.
const (
	Unknown BaseType = iota
	None
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Half
	Float
	Double
	String
	Ptr
)

var baseNames = [...]string{
	Unknown: "unknown",
	None:    "none",
	Uint8:   "uint8",
	Int8:    "int8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint",
	Int32:   "int",
	Uint64:  "uint64",
	Int64:   "int64",
	Half:    "half",
	Float:   "float",
	Double:  "double",
	String:  "string",
	Ptr:     "pointer",
}

// String returns the OpenImageIO name of the base type.
func (b BaseType) String() string {
	if int(b) < len(baseNames) {
		return baseNames[b]
	}
	return fmt.Sprintf("basetype(%d)", b)
}

// Size returns the size in bytes of one element of the base type.
// String elements are interned handles (see package ustring), 4 bytes wide.
func (b BaseType) Size() int {
	switch b {
	case Uint8, Int8:
		return 1
	case Uint16, Int16, Half:
		return 2
	case Uint32, Int32, Float, String:
		return 4
	case Uint64, Int64, Double, Ptr:
		return 8
	default:
		return 0
	}
}

// Aggregate is the number of base values making up one element.
type Aggregate uint8

// Aggregates.
const (
	Scalar   Aggregate = 1
	Vec2     Aggregate = 2
	Vec3     Aggregate = 3
	Vec4     Aggregate = 4
	Matrix33 Aggregate = 9
	Matrix44 Aggregate = 16
)

// VecSemantics hints how a 3-vector transforms.
type VecSemantics uint8

// Vector semantics.
const (
	NoXform VecSemantics = iota
	Color
	Point
	Vector
	Normal
	Timecode
	Keycode
	Rational
)

var semanticNames = [...]string{
	NoXform:  "",
	Color:    "color",
	Point:    "point",
	Vector:   "vector",
	Normal:   "normal",
	Timecode: "timecode",
	Keycode:  "keycode",
	Rational: "rational",
}

// String returns the semantics name, empty for NoXform.
func (v VecSemantics) String() string {
	if int(v) < len(semanticNames) {
		return semanticNames[v]
	}
	return fmt.Sprintf("vecsemantics(%d)", v)
}

// ParseVecSemantics maps a semantics name to its value.
func ParseVecSemantics(s string) (VecSemantics, bool) {
	switch strings.ToLower(s) {
	case "", "noxform", "nosemantics":
		return NoXform, true
	case "color":
		return Color, true
	case "point":
		return Point, true
	case "vector":
		return Vector, true
	case "normal":
		return Normal, true
	case "timecode":
		return Timecode, true
	case "keycode":
		return Keycode, true
	case "rational":
		return Rational, true
	}
	return NoXform, false
}

// TypeDesc describes a value's type.
type TypeDesc struct {
	BaseType     BaseType
	Aggregate    Aggregate
	VecSemantics VecSemantics
	reserved     uint8
	// ArrayLen is 0 for non-arrays, the element count for fixed arrays and
	// -1 for arrays of unspecified length.
	ArrayLen int32
}

// Commonly used descriptors.
var (
	TypeUnknown  = TypeDesc{BaseType: Unknown, Aggregate: Scalar}
	TypeFloat    = TypeDesc{BaseType: Float, Aggregate: Scalar}
	TypeInt32    = TypeDesc{BaseType: Int32, Aggregate: Scalar}
	TypeString   = TypeDesc{BaseType: String, Aggregate: Scalar}
	TypeColor    = TypeDesc{BaseType: Float, Aggregate: Vec3, VecSemantics: Color}
	TypePoint    = TypeDesc{BaseType: Float, Aggregate: Vec3, VecSemantics: Point}
	TypeVector   = TypeDesc{BaseType: Float, Aggregate: Vec3, VecSemantics: Vector}
	TypeNormal   = TypeDesc{BaseType: Float, Aggregate: Vec3, VecSemantics: Normal}
	TypeMatrix44 = TypeDesc{BaseType: Float, Aggregate: Matrix44}
)

// New returns a descriptor. A zero aggregate is treated as Scalar.
func New(base BaseType, agg Aggregate, sem VecSemantics, arrayLen int32) TypeDesc {
	if agg == 0 {
		agg = Scalar
	}
	return TypeDesc{BaseType: base, Aggregate: agg, VecSemantics: sem, ArrayLen: arrayLen}
}

// FromBaseType returns a scalar, non-array descriptor of base.
func FromBaseType(base BaseType) TypeDesc {
	return TypeDesc{BaseType: base, Aggregate: Scalar}
}

// Array returns t as an array of n elements.
func (t TypeDesc) Array(n int) TypeDesc {
	t.ArrayLen = int32(n)
	return t
}

// IsArray reports whether t is an array type.
func (t TypeDesc) IsArray() bool { return t.ArrayLen != 0 }

// IsUnsizedArray reports whether t is an array of unspecified length.
func (t TypeDesc) IsUnsizedArray() bool { return t.ArrayLen < 0 }

// ElementType returns the type of one array element.
func (t TypeDesc) ElementType() TypeDesc {
	t.ArrayLen = 0
	return t
}

// NumElements returns the number of array elements, 1 for non-arrays.
func (t TypeDesc) NumElements() int {
	if t.ArrayLen > 0 {
		return int(t.ArrayLen)
	}
	return 1
}

// BaseValues returns the total number of base values, aggregate times
// elements.
func (t TypeDesc) BaseValues() int {
	agg := int(t.Aggregate)
	if agg == 0 {
		agg = 1
	}
	return agg * t.NumElements()
}

// BaseSize returns the size of one base value in bytes.
func (t TypeDesc) BaseSize() int { return t.BaseType.Size() }

// ElementSize returns the size of one element in bytes.
func (t TypeDesc) ElementSize() int {
	agg := int(t.Aggregate)
	if agg == 0 {
		agg = 1
	}
	return agg * t.BaseSize()
}

// Size returns the size of the whole value in bytes.
func (t TypeDesc) Size() int { return t.BaseValues() * t.BaseSize() }

// IsTriple reports whether t is a non-array 3-float aggregate.
func (t TypeDesc) IsTriple() bool {
	return t.BaseType == Float && t.Aggregate == Vec3 && t.ArrayLen == 0
}

// Equivalent reports whether t and u have the same base type, aggregate and
// array length, ignoring vector semantics.
func (t TypeDesc) Equivalent(u TypeDesc) bool {
	return t.BaseType == u.BaseType && t.Aggregate == u.Aggregate && t.ArrayLen == u.ArrayLen
}

// String returns an OSL-style type name, e.g. "color", "float[4]",
// "matrix".
func (t TypeDesc) String() string {
	var s string
	switch {
	case t.Aggregate == Vec3 && t.BaseType == Float && t.VecSemantics != NoXform:
		s = t.VecSemantics.String()
	case t.Aggregate == Matrix44 && t.BaseType == Float:
		s = "matrix"
	case t.Aggregate == Matrix33 && t.BaseType == Float:
		s = "matrix33"
	case t.Aggregate > Scalar:
		s = fmt.Sprintf("%s%d", t.BaseType, t.Aggregate)
	default:
		s = t.BaseType.String()
	}
	switch {
	case t.ArrayLen > 0:
		s += fmt.Sprintf("[%d]", t.ArrayLen)
	case t.ArrayLen < 0:
		s += "[]"
	}
	return s
}
