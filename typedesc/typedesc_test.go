package typedesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeDesc_Sizes(t *testing.T) {
	tests := []struct {
		name       string
		td         TypeDesc
		baseValues int
		size       int
	}{
		{"float", TypeFloat, 1, 4},
		{"int", TypeInt32, 1, 4},
		{"string", TypeString, 1, 4},
		{"color", TypeColor, 3, 12},
		{"matrix", TypeMatrix44, 16, 64},
		{"float[4]", TypeFloat.Array(4), 4, 16},
		{"normal[2]", TypeNormal.Array(2), 6, 24},
		{"unsized", TypeString.Array(-1), 1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.baseValues, tt.td.BaseValues())
			assert.Equal(t, tt.size, tt.td.Size())
		})
	}
}

func TestTypeDesc_String(t *testing.T) {
	assert.Equal(t, "color", TypeColor.String())
	assert.Equal(t, "normal", TypeNormal.String())
	assert.Equal(t, "float", TypeFloat.String())
	assert.Equal(t, "int[3]", TypeInt32.Array(3).String())
	assert.Equal(t, "string[]", TypeString.Array(-1).String())
	assert.Equal(t, "matrix", TypeMatrix44.String())
	assert.Equal(t, "float3", New(Float, Vec3, NoXform, 0).String())
}

func TestTypeDesc_Equivalent(t *testing.T) {
	assert.True(t, TypeColor.Equivalent(TypeNormal))
	assert.False(t, TypeColor.Equivalent(TypeFloat))
	assert.False(t, TypeFloat.Equivalent(TypeFloat.Array(2)))
	assert.True(t, TypeColor.IsTriple())
	assert.False(t, TypeColor.Array(2).IsTriple())
}

func TestTypeDesc_ElementType(t *testing.T) {
	arr := TypeInt32.Array(5)
	assert.True(t, arr.IsArray())
	assert.Equal(t, 5, arr.NumElements())
	assert.Equal(t, TypeInt32, arr.ElementType())
	assert.Equal(t, 4, arr.ElementSize())
}

func TestParseVecSemantics(t *testing.T) {
	for _, name := range []string{"color", "point", "vector", "normal"} {
		v, ok := ParseVecSemantics(name)
		assert.True(t, ok, name)
		assert.Equal(t, name, v.String())
	}
	_, ok := ParseVecSemantics("bogus")
	assert.False(t, ok)
}

func TestNew_ZeroAggregate(t *testing.T) {
	td := New(Float, 0, NoXform, 0)
	assert.Equal(t, Scalar, td.Aggregate)
	assert.Equal(t, TypeFloat, FromBaseType(Float))
}
