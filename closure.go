package osl

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
	"github.com/gogpu/osl/ustring"
)

// ClosureField describes one field of a closure parameter record.
type ClosureField struct {
	// Name is the Go field name.
	Name string
	Type typedesc.TypeDesc
	// Offset and Size locate the field in the record.
	Offset uintptr
	Size   uintptr
	// Key is the optional engine-visible field key.
	Key ustring.Ustring
}

// ClosureDescriptor is the immutable layout of a closure: its name, its id
// and the fields of its parameter record in memory order.
type ClosureDescriptor struct {
	Name   string
	ID     int32
	Fields []ClosureField

	// Size and Align of the record.
	Size  uintptr
	Align uintptr

	record reflect.Type
}

// Wire returns the engine form of the layout, terminated by the sentinel
// {Unknown, record size, no key, record alignment}.
func (d *ClosureDescriptor) Wire() []engine.ClosureParam {
	params := make([]engine.ClosureParam, 0, len(d.Fields)+1)
	for _, f := range d.Fields {
		params = append(params, engine.ClosureParam{
			Type:      f.Type,
			Offset:    int32(f.Offset),
			Key:       f.Key,
			FieldSize: int32(f.Size),
		})
	}
	return append(params, engine.ClosureParam{
		Type:      typedesc.TypeUnknown,
		Offset:    int32(d.Size),
		FieldSize: int32(d.Align),
	})
}

// Record returns the Go type of the parameter record.
func (d *ClosureDescriptor) Record() reflect.Type { return d.record }

// sameLayout reports whether d and o describe the same closure.
func (d *ClosureDescriptor) sameLayout(o *ClosureDescriptor) bool {
	return d.Name == o.Name && d.ID == o.ID && d.Size == o.Size && d.Align == o.Align &&
		slices.Equal(d.Fields, o.Fields)
}

// FieldOption configures one field of a ClosureBuilder.
type FieldOption func(*fieldSpec)

type fieldSpec struct {
	name      string
	semantics typedesc.VecSemantics
	key       string
}

// WithSemantics sets the vector semantics of a 3-float field, for example
// typedesc.Normal. Fields default to typedesc.Vector.
func WithSemantics(s typedesc.VecSemantics) FieldOption {
	return func(f *fieldSpec) {
		f.semantics = s
	}
}

// WithKey sets the engine-visible key of a field. Keys are interned for the
// life of the process.
func WithKey(key string) FieldOption {
	return func(f *fieldSpec) {
		f.key = key
	}
}

// ClosureBuilder declares the fields of a closure parameter record in
// memory order. Create one with DescribeClosure.
type ClosureBuilder[T any] struct {
	name   string
	id     int32
	fields []fieldSpec
}

// DescribeClosure starts the layout of closure name, whose parameters are
// held in a record of type T.
//
// Example:
//
//	type MicrofacetParams struct {
//	    Dist                ustring.Ustring
//	    N, U                f32.Vec3
//	    XAlpha, YAlpha, Eta float32
//	    Refract             int32
//	}
//
//	desc, err := osl.DescribeClosure[MicrofacetParams]("microfacet", 2).
//	    Field("Dist").
//	    Field("N", osl.WithSemantics(typedesc.Normal)).
//	    Field("U").Field("XAlpha").Field("YAlpha").Field("Eta").Field("Refract").
//	    Build()
func DescribeClosure[T any](name string, id int32) *ClosureBuilder[T] {
	return &ClosureBuilder[T]{name: name, id: id}
}

// Field appends the record field called name.
func (b *ClosureBuilder[T]) Field(name string, opts ...FieldOption) *ClosureBuilder[T] {
	f := fieldSpec{name: name}
	for _, opt := range opts {
		opt(&f)
	}
	b.fields = append(b.fields, f)
	return b
}

// descriptorKey identifies a built descriptor.
type descriptorKey struct {
	record reflect.Type
	name   string
	id     int32
	fields string
}

// descriptors caches built layouts; layouts depend only on the record type
// and the declarations.
var descriptors sync.Map // descriptorKey -> *ClosureDescriptor

// Build computes the layout from the record type. Offsets and sizes come
// from the Go layout of T. Errors wrap ErrInvalidLayout.
func (b *ClosureBuilder[T]) Build() (*ClosureDescriptor, error) {
	rt := reflect.TypeFor[T]()
	key := descriptorKey{record: rt, name: b.name, id: b.id, fields: b.fieldsKey()}
	if d, ok := descriptors.Load(key); ok {
		return d.(*ClosureDescriptor), nil
	}

	d, err := b.build(rt)
	if err != nil {
		return nil, err
	}
	actual, _ := descriptors.LoadOrStore(key, d)
	return actual.(*ClosureDescriptor), nil
}

func (b *ClosureBuilder[T]) fieldsKey() string {
	var sb strings.Builder
	for _, f := range b.fields {
		fmt.Fprintf(&sb, "%s/%d/%s;", f.name, f.semantics, f.key)
	}
	return sb.String()
}

func (b *ClosureBuilder[T]) build(rt reflect.Type) (*ClosureDescriptor, error) {
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: closure %q: record %s is not a struct", ErrInvalidLayout, b.name, rt)
	}

	d := &ClosureDescriptor{
		Name:   b.name,
		ID:     b.id,
		Fields: make([]ClosureField, 0, len(b.fields)),
		Size:   rt.Size(),
		Align:  uintptr(rt.Align()),
		record: rt,
	}
	seen := make(map[string]bool, len(b.fields))
	for i, spec := range b.fields {
		if seen[spec.name] {
			return nil, fmt.Errorf("%w: closure %q: field %q declared twice", ErrInvalidLayout, b.name, spec.name)
		}
		seen[spec.name] = true

		sf, ok := rt.FieldByName(spec.name)
		if !ok || len(sf.Index) != 1 {
			return nil, fmt.Errorf("%w: closure %q: %s has no field %q", ErrInvalidLayout, b.name, rt, spec.name)
		}
		td, err := fieldType(sf.Type, spec.semantics)
		if err != nil {
			return nil, fmt.Errorf("%w: closure %q field %q: %w", ErrInvalidLayout, b.name, spec.name, err)
		}
		if i > 0 && sf.Offset < d.Fields[i-1].Offset {
			return nil, fmt.Errorf("%w: closure %q: field %q is declared after %q but precedes it in memory",
				ErrInvalidLayout, b.name, spec.name, d.Fields[i-1].Name)
		}

		f := ClosureField{
			Name:   spec.name,
			Type:   td,
			Offset: sf.Offset,
			Size:   sf.Type.Size(),
		}
		if spec.key != "" {
			f.Key = ustring.New(spec.key)
		}
		d.Fields = append(d.Fields, f)
	}
	return d, nil
}

var (
	ustringType = reflect.TypeFor[ustring.Ustring]()
	vec3Type    = reflect.TypeFor[f32.Vec3]()
	float3Type  = reflect.TypeFor[[3]float32]()
)

// fieldType maps a Go field type to the engine type.
func fieldType(t reflect.Type, sem typedesc.VecSemantics) (typedesc.TypeDesc, error) {
	triple := t == vec3Type || t == float3Type
	if sem != typedesc.NoXform && !triple {
		return typedesc.TypeUnknown, fmt.Errorf("semantics %s on non-vector type %s", sem, t)
	}
	switch {
	case t == ustringType:
		return typedesc.TypeString, nil
	case t.Kind() == reflect.Float32:
		return typedesc.TypeFloat, nil
	case t.Kind() == reflect.Int32:
		return typedesc.TypeInt32, nil
	case triple:
		td := typedesc.TypeVector
		if sem != typedesc.NoXform {
			td.VecSemantics = sem
		}
		return td, nil
	}
	return typedesc.TypeUnknown, fmt.Errorf("unsupported type %s", t)
}

// ClosureParams views the parameter bytes of a closure component as the
// record type T it was registered with. It returns false for non-component
// nodes and for records whose size does not match T.
func ClosureParams[T any](c *engine.ClosureColor) (*T, bool) {
	if c == nil || c.Kind != engine.ClosureComponent {
		return nil, false
	}
	var zero T
	size := unsafe.Sizeof(zero)
	if uintptr(len(c.Params)) != size {
		return nil, false
	}
	if size == 0 {
		return &zero, true
	}
	p := unsafe.Pointer(&c.Params[0])
	if uintptr(p)%unsafe.Alignof(zero) != 0 {
		return nil, false
	}
	return (*T)(p), true
}
