package osl

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
	"github.com/gogpu/osl/ustring"
)

// Closure parameter records used across the package tests.
type (
	emissionParams struct{}

	diffuseParams struct {
		N f32.Vec3
	}

	microfacetParams struct {
		Dist                ustring.Ustring
		N, U                f32.Vec3
		XAlpha, YAlpha, Eta float32
		Refract             int32
	}
)

func describeEmission() (*ClosureDescriptor, error) {
	return DescribeClosure[emissionParams]("emission", 0).Build()
}

func describeDiffuse() (*ClosureDescriptor, error) {
	return DescribeClosure[diffuseParams]("diffuse", 1).
		Field("N", WithSemantics(typedesc.Normal)).
		Build()
}

func describeMicrofacet() (*ClosureDescriptor, error) {
	return DescribeClosure[microfacetParams]("microfacet", 2).
		Field("Dist").
		Field("N", WithSemantics(typedesc.Normal)).
		Field("U").
		Field("XAlpha").
		Field("YAlpha").
		Field("Eta").
		Field("Refract").
		Build()
}

// =============================================================================
// Layout
// =============================================================================

func TestDescribeClosure_Microfacet(t *testing.T) {
	desc, err := describeMicrofacet()
	require.NoError(t, err)

	assert.Equal(t, "microfacet", desc.Name)
	assert.Equal(t, int32(2), desc.ID)

	var rec microfacetParams
	want := []struct {
		name   string
		td     typedesc.TypeDesc
		offset uintptr
		size   uintptr
	}{
		{"Dist", typedesc.TypeString, unsafe.Offsetof(rec.Dist), 4},
		{"N", typedesc.TypeNormal, unsafe.Offsetof(rec.N), 12},
		{"U", typedesc.TypeVector, unsafe.Offsetof(rec.U), 12},
		{"XAlpha", typedesc.TypeFloat, unsafe.Offsetof(rec.XAlpha), 4},
		{"YAlpha", typedesc.TypeFloat, unsafe.Offsetof(rec.YAlpha), 4},
		{"Eta", typedesc.TypeFloat, unsafe.Offsetof(rec.Eta), 4},
		{"Refract", typedesc.TypeInt32, unsafe.Offsetof(rec.Refract), 4},
	}
	require.Len(t, desc.Fields, len(want))
	for i, w := range want {
		f := desc.Fields[i]
		if f.Name != w.name || f.Type != w.td || f.Offset != w.offset || f.Size != w.size {
			t.Errorf("field %d = %+v, want %s %s @%d size %d", i, f, w.name, w.td, w.offset, w.size)
		}
		if i > 0 && f.Offset < desc.Fields[i-1].Offset {
			t.Errorf("field %d offset %d decreases", i, f.Offset)
		}
	}
	assert.Equal(t, unsafe.Sizeof(rec), desc.Size)
	assert.Equal(t, unsafe.Alignof(rec), desc.Align)
}

func TestDescribeClosure_Wire(t *testing.T) {
	desc, err := describeMicrofacet()
	require.NoError(t, err)

	wire := desc.Wire()
	require.Len(t, wire, 8)
	for i, p := range wire[:7] {
		assert.False(t, p.IsSentinel(), "field %d", i)
		assert.Equal(t, int32(desc.Fields[i].Offset), p.Offset)
		assert.Equal(t, int32(desc.Fields[i].Size), p.FieldSize)
	}

	sentinel := wire[7]
	assert.True(t, sentinel.IsSentinel())
	assert.Equal(t, int32(unsafe.Sizeof(microfacetParams{})), sentinel.Offset)
	assert.Equal(t, int32(unsafe.Alignof(microfacetParams{})), sentinel.FieldSize)
	assert.True(t, sentinel.Key.Empty())
}

func TestDescribeClosure_NoFields(t *testing.T) {
	desc, err := describeEmission()
	require.NoError(t, err)

	assert.Empty(t, desc.Fields)
	wire := desc.Wire()
	require.Len(t, wire, 1)
	assert.True(t, wire[0].IsSentinel())
	assert.Equal(t, int32(0), wire[0].Offset)
	assert.Equal(t, int32(1), wire[0].FieldSize)
}

func TestDescribeClosure_Keys(t *testing.T) {
	desc, err := DescribeClosure[diffuseParams]("keyed_diffuse", 11).
		Field("N", WithSemantics(typedesc.Normal), WithKey("normal")).
		Build()
	require.NoError(t, err)

	require.Len(t, desc.Fields, 1)
	assert.Equal(t, "normal", desc.Fields[0].Key.String())
	assert.Equal(t, desc.Fields[0].Key, desc.Wire()[0].Key)

	again, err := DescribeClosure[diffuseParams]("keyed_diffuse_2", 12).
		Field("N", WithKey("normal")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, desc.Fields[0].Key, again.Fields[0].Key, "keys are interned")
}

func TestDescribeClosure_Semantics(t *testing.T) {
	type colored struct {
		C [3]float32
		P f32.Vec3
	}
	desc, err := DescribeClosure[colored]("colored", 20).
		Field("C", WithSemantics(typedesc.Color)).
		Field("P", WithSemantics(typedesc.Point)).
		Build()
	require.NoError(t, err)
	assert.Equal(t, typedesc.TypeColor, desc.Fields[0].Type)
	assert.Equal(t, typedesc.TypePoint, desc.Fields[1].Type)
}

func TestDescribeClosure_Cached(t *testing.T) {
	a, err := describeMicrofacet()
	require.NoError(t, err)
	b, err := describeMicrofacet()
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := DescribeClosure[microfacetParams]("microfacet", 3).
		Field("Dist").Field("N").Field("U").Field("XAlpha").Field("YAlpha").Field("Eta").Field("Refract").
		Build()
	require.NoError(t, err)
	assert.NotSame(t, a, other)
}

func TestDescribeClosure_Invalid(t *testing.T) {
	type unsupported struct {
		X float64
	}
	type embedded struct {
		diffuseParams
		Y float32
	}

	tests := []struct {
		name  string
		build func() (*ClosureDescriptor, error)
	}{
		{"unknown field", func() (*ClosureDescriptor, error) {
			return DescribeClosure[diffuseParams]("c", 1).Field("Nope").Build()
		}},
		{"duplicate field", func() (*ClosureDescriptor, error) {
			return DescribeClosure[diffuseParams]("c", 1).Field("N").Field("N").Build()
		}},
		{"semantics on scalar", func() (*ClosureDescriptor, error) {
			return DescribeClosure[microfacetParams]("c", 1).Field("Dist").Field("N").Field("U").
				Field("XAlpha", WithSemantics(typedesc.Normal)).Build()
		}},
		{"not a struct", func() (*ClosureDescriptor, error) {
			return DescribeClosure[float32]("c", 1).Build()
		}},
		{"out of order", func() (*ClosureDescriptor, error) {
			return DescribeClosure[microfacetParams]("c", 1).Field("N").Field("Dist").Build()
		}},
		{"unsupported type", func() (*ClosureDescriptor, error) {
			return DescribeClosure[unsupported]("c", 1).Field("X").Build()
		}},
		{"promoted field", func() (*ClosureDescriptor, error) {
			return DescribeClosure[embedded]("c", 1).Field("N").Build()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := tt.build()
			assert.Nil(t, desc)
			assert.ErrorIs(t, err, ErrInvalidLayout)
		})
	}
}

// =============================================================================
// ClosureParams
// =============================================================================

func TestClosureParams(t *testing.T) {
	params := engine.AlignedBytes(int(unsafe.Sizeof(diffuseParams{})))
	copy(params, engine.EncodeFloat32s(0, 0, 1))
	c := &engine.ClosureColor{Kind: engine.ClosureComponent, ID: 1, Params: params}

	p, ok := ClosureParams[diffuseParams](c)
	require.True(t, ok)
	assert.Equal(t, f32.Vec3{0, 0, 1}, p.N)

	_, ok = ClosureParams[microfacetParams](c)
	assert.False(t, ok, "size mismatch")

	_, ok = ClosureParams[diffuseParams](&engine.ClosureColor{Kind: engine.ClosureAdd, A: c, B: c})
	assert.False(t, ok, "add node")

	_, ok = ClosureParams[diffuseParams](nil)
	assert.False(t, ok)

	e, ok := ClosureParams[emissionParams](&engine.ClosureColor{Kind: engine.ClosureComponent})
	assert.True(t, ok)
	assert.NotNil(t, e)
}

// =============================================================================
// Registry
// =============================================================================

func TestRegisterClosure(t *testing.T) {
	ss := newTestSession(t)
	registerStockClosures(t, ss)

	got := ss.Closures()
	require.Len(t, got, 3)
	for i, name := range []string{"emission", "diffuse", "microfacet"} {
		assert.Equal(t, name, got[i].Name)
		assert.Equal(t, int32(i), got[i].ID)
	}

	d, ok := ss.Closure("diffuse")
	require.True(t, ok)
	assert.Len(t, d.Fields, 1)
	_, ok = ss.Closure("glass")
	assert.False(t, ok)
}

func TestRegisterClosure_Duplicates(t *testing.T) {
	ss, rec := newRecordingSession(t)
	registerStockClosures(t, ss)

	// Same name, id and layout: no-op.
	diffuse, err := describeDiffuse()
	require.NoError(t, err)
	assert.NoError(t, ss.RegisterClosure(diffuse))

	// Same name, different id.
	otherID, err := DescribeClosure[diffuseParams]("diffuse", 7).Field("N", WithSemantics(typedesc.Normal)).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, ss.RegisterClosure(otherID), ErrDuplicateClosureName)

	// Same name and id, different layout.
	otherLayout, err := DescribeClosure[diffuseParams]("diffuse", 1).Field("N").Build()
	require.NoError(t, err)
	assert.ErrorIs(t, ss.RegisterClosure(otherLayout), ErrDuplicateClosureName)

	// Different name, taken id.
	clash, err := DescribeClosure[diffuseParams]("translucent", 1).Field("N").Build()
	require.NoError(t, err)
	assert.ErrorIs(t, ss.RegisterClosure(clash), ErrDuplicateClosureID)

	assert.Len(t, ss.Closures(), 3, "registry unchanged")
	assert.Equal(t, 3, rec.count(SeverityError), "every rejection is reported")

	assert.ErrorIs(t, ss.RegisterClosure(nil), ErrInvalidLayout)
}

func TestRegisterClosure_AfterGroupBegin(t *testing.T) {
	ss := newTestSession(t)
	g, err := ss.ShaderGroupBegin("g")
	require.NoError(t, err)
	defer g.Release()

	desc, err := describeEmission()
	require.NoError(t, err)
	err = ss.RegisterClosure(desc)
	assert.True(t, errors.Is(err, ErrRegistrationClosed), "got %v", err)
}
