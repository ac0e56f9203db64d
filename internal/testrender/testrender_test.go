package testrender

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
)

func TestRenderer_Transforms(t *testing.T) {
	r := New(4, 4)
	shift := f32.Mat4{1, 0, 0, 5, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	r.SetTransform("object", shift)

	m, ok := r.GetMatrix(nil, "object")
	require.True(t, ok)
	assert.Equal(t, shift, m)

	_, ok = r.GetMatrix(nil, "world")
	assert.False(t, ok)
	_, ok = r.GetMatrix(nil, 42)
	assert.False(t, ok, "non-string transform ids are unknown")
}

func TestRenderer_Features(t *testing.T) {
	r := New(1, 1)
	assert.False(t, r.Supports("trace"))
	r.SetFeature("trace", true)
	assert.True(t, r.Supports("trace"))
}

func TestRenderer_UserData(t *testing.T) {
	r := New(1, 1)
	r.SetUserData("Kd", func(sg *engine.ShaderGlobals, td typedesc.TypeDesc, out []byte) bool {
		copy(out, engine.EncodeFloat32s(sg.U))
		return true
	})

	out := make([]byte, 4)
	require.True(t, r.GetUserData(&engine.ShaderGlobals{U: 0.25}, "Kd", typedesc.TypeFloat, out))
	assert.Equal(t, []float32{0.25}, engine.DecodeFloat32s(out))
	assert.False(t, r.GetUserData(&engine.ShaderGlobals{}, "Ks", typedesc.TypeFloat, out))
}

func TestRenderer_Outputs(t *testing.T) {
	r := New(8, 6)
	assert.Equal(t, 8, r.ROI().Width())
	assert.Equal(t, 6, r.ROI().Height())

	cout, err := r.AddOutput("Cout", "Cout", typedesc.TypeFloat, 3)
	require.NoError(t, err)
	_, err = r.AddOutput("alpha", "alpha.tif", typedesc.TypeFloat, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"Cout", "alpha"}, r.OutputVars())
	got, err := r.Output("Cout")
	require.NoError(t, err)
	assert.Same(t, cout, got)
	_, err = r.Output("missing")
	assert.ErrorIs(t, err, ErrUnknownOutput)

	_, err = r.AddOutput("bad", "bad.png", typedesc.TypeFloat, 0)
	assert.Error(t, err)

	dir := t.TempDir()
	paths, err := r.WriteOutputs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "Cout.png"), filepath.Join(dir, "alpha.tif")}, paths)
	for _, p := range paths {
		st, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, st.Size())
	}
}
