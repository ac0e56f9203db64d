package osl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/engine/soft"
	"github.com/gogpu/osl/imagebuf"
	"github.com/gogpu/osl/typedesc"
)

// uvcolorSource declares a shader whose color output echoes the surface
// parameters and the x position of the shading point.
const uvcolorSource = `
struct Outputs {
    @semantics(color) Cout: vec3<f32>,
}

@shader(surface)
fn uvcolor() -> Outputs {
    var out: Outputs;
    return out;
}
`

var uvcolorKernel = soft.Kernel{Name: "uvcolor", Eval: func(x *soft.Exec) error {
	sg := x.Globals()
	x.SetVec3("Cout", f32.Vec3{sg.U, sg.V, sg.P[0]})
	return nil
}}

// badPixelKernel fails at the pixel centered on (5.5, 5.5).
var badPixelKernel = soft.Kernel{Name: "uvcolor", Eval: func(x *soft.Exec) error {
	sg := x.Globals()
	if sg.P[0] == 5.5 && sg.P[1] == 5.5 {
		return x.Errorf("bad pixel")
	}
	x.SetVec3("Cout", f32.Vec3{1, 1, 1})
	return nil
}}

func newKernelSession(t *testing.T, k soft.Kernel, opts ...Option) *ShadingSystem {
	t.Helper()
	factory := func(rs engine.RendererServices, eh engine.ErrorHandler) (engine.Engine, error) {
		return soft.New(rs, eh, soft.WithShaderSource("uvcolor", uvcolorSource), soft.WithKernel(k)), nil
	}
	return newTestSession(t, append([]Option{WithEngineFactory(factory)}, opts...)...)
}

func newImage(t *testing.T, w, h, nchannels int) *imagebuf.ImageBuf {
	t.Helper()
	buf, err := imagebuf.New("out", imagebuf.NewSpec(w, h, nchannels, typedesc.TypeFloat))
	require.NoError(t, err)
	return buf
}

func TestShadeImage_NoiseTest(t *testing.T) {
	ss := newTestSession(t, WithThreads(4))
	g := buildGroup(t, ss, "noisetest", nil)
	buf := newImage(t, 512, 512, 3)

	require.NoError(t, ss.ShadeImage(g, nil, buf, []string{"Cout"}, ShadePixelCenters, buf.ROI()))

	zero := 0
	for _, v := range buf.Pixels() {
		if v <= 0 {
			zero++
		}
	}
	assert.Zero(t, zero, "every channel is at least minval")
	assert.Equal(t, int64(512*512), ss.Stats().ShadedPoints)
	assert.Equal(t, 1, g.Refs(), "ShadeImage drops its reference")
}

func TestShadeImage_Locations(t *testing.T) {
	tests := []struct {
		name string
		loc  ShadeLocation
		w, h int
		want func(x, y int) f32.Vec3
	}{
		{"centers", ShadePixelCenters, 4, 2, func(x, y int) f32.Vec3 {
			px, py := float32(x)+0.5, float32(y)+0.5
			return f32.Vec3{px / 4, py / 2, px}
		}},
		{"grid", ShadePixelGrid, 5, 3, func(x, y int) f32.Vec3 {
			return f32.Vec3{float32(x) / 4, float32(y) / 2, float32(x)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ss := newKernelSession(t, uvcolorKernel)
			g := buildGroup(t, ss, "uvcolor", nil)
			buf := newImage(t, tt.w, tt.h, 3)

			require.NoError(t, ss.ShadeImage(g, nil, buf, []string{"Cout"}, tt.loc, buf.ROI()))

			for y := range tt.h {
				for x := range tt.w {
					got := buf.Pixel(x, y, nil)
					want := tt.want(x, y)
					if got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
						t.Errorf("pixel (%d, %d) = %v, want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestShadeImage_DefaultGlobals(t *testing.T) {
	timeKernel := soft.Kernel{Name: "uvcolor", Eval: func(x *soft.Exec) error {
		sg := x.Globals()
		x.SetVec3("Cout", f32.Vec3{sg.Time, sg.N[2], sg.DUdx})
		return nil
	}}
	ss := newKernelSession(t, timeKernel)
	g := buildGroup(t, ss, "uvcolor", nil)
	buf := newImage(t, 2, 2, 3)

	def := &ShaderGlobals{Time: 0.75, U: 99}
	require.NoError(t, ss.ShadeImage(g, def, buf, []string{"Cout"}, ShadePixelCenters, buf.ROI()))

	assert.Equal(t, []float32{0.75, 1, 0.5}, buf.Pixel(1, 1, nil))
	assert.Equal(t, float32(0.75), def.Time)
	assert.Equal(t, float32(99), def.U, "the default globals are copied, not modified")
}

func TestShadeImage_TwoOutputs(t *testing.T) {
	ss := newTestSession(t)
	g := buildGroup(t, ss, "checker", map[string]Value{"scale": Float(2)})
	buf := newImage(t, 4, 4, 4)

	require.NoError(t, ss.ShadeImage(g, nil, buf, []string{"Cout", "index"}, ShadePixelCenters, buf.ROI()))

	for y := range 4 {
		for x := range 4 {
			index := (x/2 + y/2) & 1
			want := []float32{1, 1, 1, 0}
			if index == 1 {
				want = []float32{0.05, 0.05, 0.05, 1}
			}
			assert.Equal(t, want, buf.Pixel(x, y, nil), "pixel (%d, %d)", x, y)
		}
	}
}

func TestShadeImage_SubRegion(t *testing.T) {
	ss := newTestSession(t)
	g := buildGroup(t, ss, "noisetest", nil)
	buf := newImage(t, 8, 8, 3)
	buf.Fill(-1)

	roi := imagebuf.NewROI(2, 6, 1, 5)
	require.NoError(t, ss.ShadeImage(g, nil, buf, []string{"Cout"}, ShadePixelCenters, roi))

	for y := range 8 {
		for x := range 8 {
			v := buf.Pixel(x, y, nil)[0]
			if roi.Contains(x, y) {
				if v < 0.02 {
					t.Errorf("pixel (%d, %d) = %v inside the region, want shaded", x, y, v)
				}
			} else if v != -1 {
				t.Errorf("pixel (%d, %d) = %v outside the region, want untouched", x, y, v)
			}
		}
	}
	assert.Equal(t, int64(roi.NPixels()), ss.Stats().ShadedPoints)
}

func TestShadeImage_TileSize(t *testing.T) {
	ss := newKernelSession(t, uvcolorKernel, WithThreads(3))
	g := buildGroup(t, ss, "uvcolor", nil)
	buf := newImage(t, 10, 7, 3)

	require.NoError(t, ss.ShadeImage(g, nil, buf, []string{"Cout"}, ShadePixelCenters, buf.ROI(), WithTileSize(3, 5)))

	for y := range 7 {
		for x := range 10 {
			if got := buf.Pixel(x, y, nil)[2]; got != float32(x)+0.5 {
				t.Errorf("pixel (%d, %d) P.x = %v, want %v", x, y, got, float32(x)+0.5)
			}
		}
	}
	assert.Equal(t, int64(70), ss.Stats().ShadedPoints)
}

func TestShadeImage_AbortsOnFirstFailure(t *testing.T) {
	ss := newKernelSession(t, badPixelKernel, WithThreads(2))
	g := buildGroup(t, ss, "uvcolor", nil)
	buf := newImage(t, 16, 16, 3)

	err := ss.ShadeImage(g, nil, buf, []string{"Cout"}, ShadePixelCenters, buf.ROI(), WithTileSize(4, 4))
	var sre *ShadeRegionError
	require.ErrorAs(t, err, &sre)
	assert.Equal(t, 5, sre.X)
	assert.Equal(t, 5, sre.Y)
	assert.Less(t, sre.Shaded, int64(16*16))
	assert.ErrorIs(t, err, ErrShadeRegionFailed)
	assert.ErrorIs(t, err, ErrExecuteFailed)

	// The failing pixel is never written.
	assert.Equal(t, []float32{0, 0, 0}, buf.Pixel(5, 5, nil))
	assert.Equal(t, sre.Shaded, ss.Stats().ShadedPoints)
	assert.Equal(t, 1, g.Refs())
}

func TestShadeImage_EmptyRegion(t *testing.T) {
	ss := newTestSession(t)
	g := buildGroup(t, ss, "noisetest", nil)
	buf := newImage(t, 4, 4, 3)

	require.NoError(t, ss.ShadeImage(g, nil, buf, []string{"Cout"}, ShadePixelCenters, imagebuf.NewROI(2, 2, 0, 4)))
	assert.Zero(t, ss.Stats().ShadedPoints)
	for _, v := range buf.Pixels() {
		require.Zero(t, v)
	}
}

func TestShadeImage_Errors(t *testing.T) {
	ss := newTestSession(t)
	g := buildGroup(t, ss, "noisetest", nil)
	buf := newImage(t, 4, 4, 3)

	open, err := ss.ShaderGroupBegin("open")
	require.NoError(t, err)
	defer open.Release()

	tests := []struct {
		name    string
		group   *ShaderGroup
		buf     *imagebuf.ImageBuf
		outputs []string
		roi     imagebuf.ROI
		want    error
	}{
		{"begin after end", g, buf, []string{"Cout"}, imagebuf.NewROI(3, 1, 0, 4), ErrInvalidRegion},
		{"outside image", g, buf, []string{"Cout"}, imagebuf.NewROI(0, 5, 0, 4), ErrInvalidRegion},
		{"negative begin", g, buf, []string{"Cout"}, imagebuf.NewROI(-1, 2, 0, 4), ErrInvalidRegion},
		{"nil image", g, nil, []string{"Cout"}, imagebuf.NewROI(0, 4, 0, 4), ErrInvalidRegion},
		{"unknown output", g, buf, []string{"Nope"}, buf.ROI(), ErrSymbolNotFound},
		{"too many channels", g, buf, []string{"Cout", "scale"}, buf.ROI(), imagebuf.ErrChannelCount},
		{"string output", g, buf, []string{"noisetype"}, buf.ROI(), imagebuf.ErrUnsupportedFormat},
		{"open group", open, buf, []string{"Cout"}, buf.ROI(), ErrGroupNotClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ss.ShadeImage(tt.group, nil, tt.buf, tt.outputs, ShadePixelCenters, tt.roi)
			assert.ErrorIs(t, err, tt.want)
			var sre *ShadeRegionError
			assert.False(t, errors.As(err, &sre), "validation errors are returned before shading")
		})
	}
	assert.Zero(t, ss.Stats().ShadedPoints)
	for _, v := range buf.Pixels() {
		require.Zero(t, v)
	}
}

func TestShadeImage_ClosedSession(t *testing.T) {
	ss, err := New(nil, WithErrorHandler(func(Severity, string) {}))
	require.NoError(t, err)
	g := buildGroup(t, ss, "noisetest", nil)
	buf := newImage(t, 2, 2, 3)

	require.NoError(t, ss.ShadeImage(g, nil, buf, []string{"Cout"}, ShadePixelCenters, buf.ROI()))
	g.Release()
	require.NoError(t, ss.Close())

	err = ss.ShadeImage(g, nil, buf, []string{"Cout"}, ShadePixelCenters, buf.ROI())
	assert.ErrorIs(t, err, ErrSessionClosed)
}
