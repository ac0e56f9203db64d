package osl

import (
	"fmt"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
)

// Value is an attribute or parameter value: an int32, a float32, a string,
// or a homogeneous array of one of these. Build one with Int, Float,
// String, Ints, Floats or Strings.
//
// A Value carries the engine wire form: a TypeDesc and the encoded bytes.
// Arrays have ArrayLen set to their length; empty arrays are unsized.
type Value struct {
	td  typedesc.TypeDesc
	raw []byte
}

// Int returns an int value.
func Int(v int32) Value {
	return Value{td: typedesc.TypeInt32, raw: engine.EncodeInt32s(v)}
}

// Float returns a float value.
func Float(v float32) Value {
	return Value{td: typedesc.TypeFloat, raw: engine.EncodeFloat32s(v)}
}

// String returns a string value. The string is interned for the life of the
// process.
func String(v string) Value {
	return Value{td: typedesc.TypeString, raw: engine.EncodeStrings(v)}
}

// Ints returns an int array value.
func Ints(vs ...int32) Value {
	return Value{td: arrayOf(typedesc.TypeInt32, len(vs)), raw: engine.EncodeInt32s(vs...)}
}

// Floats returns a float array value.
func Floats(vs ...float32) Value {
	return Value{td: arrayOf(typedesc.TypeFloat, len(vs)), raw: engine.EncodeFloat32s(vs...)}
}

// Strings returns a string array value.
func Strings(vs ...string) Value {
	return Value{td: arrayOf(typedesc.TypeString, len(vs)), raw: engine.EncodeStrings(vs...)}
}

// Color returns a color value, a float triple with color semantics.
func Color(r, g, b float32) Value {
	return Value{td: typedesc.TypeColor, raw: engine.EncodeFloat32s(r, g, b)}
}

func arrayOf(elem typedesc.TypeDesc, n int) typedesc.TypeDesc {
	if n == 0 {
		return elem.Array(-1)
	}
	return elem.Array(n)
}

// valueOf wraps raw engine bytes of type td. Unsized arrays take their
// length from the data.
func valueOf(td typedesc.TypeDesc, raw []byte) Value {
	if td.IsUnsizedArray() && len(raw) > 0 {
		td = td.Array(len(raw) / td.ElementSize())
	}
	return Value{td: td, raw: raw}
}

// TypeDesc returns the value's type.
func (v Value) TypeDesc() typedesc.TypeDesc { return v.td }

// Bytes returns the encoded value. The slice must not be modified.
func (v Value) Bytes() []byte { return v.raw }

// IsZero reports whether v was never set.
func (v Value) IsZero() bool { return v.td == typedesc.TypeDesc{} }

// AsInt returns the value as an int if it is a scalar int.
func (v Value) AsInt() (int32, bool) {
	if !v.td.Equivalent(typedesc.TypeInt32) {
		return 0, false
	}
	return engine.DecodeInt32s(v.raw)[0], true
}

// AsFloat returns the value as a float if it is a scalar float.
func (v Value) AsFloat() (float32, bool) {
	if !v.td.Equivalent(typedesc.TypeFloat) {
		return 0, false
	}
	return engine.DecodeFloat32s(v.raw)[0], true
}

// AsString returns the value as a string if it is a scalar string.
func (v Value) AsString() (string, bool) {
	if !v.td.Equivalent(typedesc.TypeString) {
		return "", false
	}
	return engine.DecodeStrings(v.raw)[0], true
}

// AsInts returns every int of an int value, scalar or array.
func (v Value) AsInts() ([]int32, bool) {
	if v.td.BaseType != typedesc.Int32 {
		return nil, false
	}
	return engine.DecodeInt32s(v.raw), true
}

// AsFloats returns every float of a float value, including the components
// of triples and matrices.
func (v Value) AsFloats() ([]float32, bool) {
	if v.td.BaseType != typedesc.Float {
		return nil, false
	}
	return engine.DecodeFloat32s(v.raw), true
}

// AsStrings returns every string of a string value, scalar or array.
func (v Value) AsStrings() ([]string, bool) {
	if v.td.BaseType != typedesc.String {
		return nil, false
	}
	return engine.DecodeStrings(v.raw), true
}

// String formats the value for diagnostics.
func (v Value) String() string {
	switch v.td.BaseType {
	case typedesc.Int32:
		vs, _ := v.AsInts()
		return formatValues(v.td, vs)
	case typedesc.Float:
		vs, _ := v.AsFloats()
		return formatValues(v.td, vs)
	case typedesc.String:
		vs, _ := v.AsStrings()
		return formatValues(v.td, vs)
	}
	return v.td.String()
}

func formatValues[T any](td typedesc.TypeDesc, vs []T) string {
	if len(vs) == 1 && !td.IsArray() {
		return fmt.Sprint(vs[0])
	}
	return fmt.Sprint(vs)
}

// Attribute sets a session attribute. A rejected value returns an
// *AttributeError wrapping ErrAttributeRejected and leaves the engine
// unchanged.
func (ss *ShadingSystem) Attribute(name string, v Value) error {
	if err := ss.enter("Attribute"); err != nil {
		return err
	}
	if !ss.eng.Attribute(name, v.td, v.raw) {
		err := &AttributeError{Scope: "session", Name: name, Type: v.td}
		ss.errs.report(SeverityError, err.Error())
		return err
	}
	Logger().Debug("osl: attribute set", "name", name, "value", v.String())
	return nil
}

// GroupAttribute sets an attribute on one shader group.
func (ss *ShadingSystem) GroupAttribute(g *ShaderGroup, name string, v Value) error {
	if err := ss.enter("GroupAttribute"); err != nil {
		return err
	}
	h, err := g.engineHandle()
	if err != nil {
		return err
	}
	if !ss.eng.GroupAttribute(h, name, v.td, v.raw) {
		err := &AttributeError{Scope: "group", Name: name, Type: v.td}
		ss.errs.report(SeverityError, err.Error())
		return err
	}
	if name == "groupname" {
		if s, ok := v.AsString(); ok {
			g.setName(s)
		}
	}
	return nil
}

// GetAttribute reads a session attribute, or a "stat:" statistic, as td.
// Arrays of unknown length are read with an unsized td.
func (ss *ShadingSystem) GetAttribute(name string, td typedesc.TypeDesc) (Value, error) {
	if err := ss.enter("GetAttribute"); err != nil {
		return Value{}, err
	}
	raw, ok := ss.eng.GetAttribute(name, td)
	if !ok {
		return Value{}, &AttributeError{Scope: "session", Name: name, Type: td}
	}
	return valueOf(td, raw), nil
}
