package main

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/osl"
	"github.com/gogpu/osl/typedesc"
)

func TestParseArgs_Defaults(t *testing.T) {
	cfg, err := parseArgs(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestParseArgs_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shade.yaml")
	require.NoError(t, os.WriteFile(path, []byte("width: 32\nheight: 16\nthreads: 2\n"), 0o600))

	cfg, err := parseArgs([]string{"-config", path, "-height", "8", "-searchpath", "a:b", "-v"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, []string{"a", "b"}, cfg.SearchPath)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "widht: 10\n"},
		{"zero size", "width: 0\n"},
		{"no layers", "layers: []\n"},
		{"no outputs", "outputs: []\n"},
		{"layer without shader", "layers:\n  - layer: a\n"},
		{"bad location", "location: corners\n"},
		{"bad connection", "connections:\n  - from: a\n    to: b.Cs\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, errConfig)
		})
	}
}

func TestToValue(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		triples bool
		want    typedesc.TypeDesc
	}{
		{"int", 3, false, typedesc.TypeInt32},
		{"float", 0.5, false, typedesc.TypeFloat},
		{"bool", true, false, typedesc.TypeInt32},
		{"string", "perlin", false, typedesc.TypeString},
		{"color", []any{1, 0.5, 0.25}, true, typedesc.TypeColor},
		{"float triple without color", []any{1, 0.5, 0.25}, false, typedesc.TypeFloat.Array(3)},
		{"ints", []any{1, 2}, false, typedesc.TypeInt32.Array(2)},
		{"strings", []any{"Cout", "index"}, false, typedesc.TypeString.Array(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := toValue(tt.in, tt.triples)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.TypeDesc())
		})
	}

	_, err := toValue([]any{"a", 1}, false)
	assert.ErrorIs(t, err, errConfig)
	_, err = toValue(map[string]any{}, false)
	assert.ErrorIs(t, err, errConfig)
}

func TestToValue_Color(t *testing.T) {
	v, err := toValue([]any{1, 0.5, 0.25}, true)
	require.NoError(t, err)
	fs, ok := v.AsFloats()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0.5, 0.25}, fs)
	assert.Equal(t, osl.Color(1, 0.5, 0.25).Bytes(), v.Bytes())
}

func TestRun_CheckerMatte(t *testing.T) {
	dir := t.TempDir()
	config := `
width: 16
height: 8
threads: 2
output: ` + dir + `
attributes:
  lockgeom: 1
layers:
  - shader: checker
    layer: tex
    params:
      scale: 4.0
      Ca: [1, 0, 0]
  - shader: matte
    layer: mat
connections:
  - from: tex.Cout
    to: mat.Cs
outputs:
  - var: mat.albedo
    file: albedo.png
  - var: tex.index
    file: index.tif
`
	cfg, err := loadConfig(strings.NewReader(config))
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(cfg, &stdout, &stderr), "stderr: %s", stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "Output mat.albedo to albedo.png (color)")
	assert.Contains(t, out, "Output tex.index to index.tif (int)")
	assert.Contains(t, out, "Wrote "+filepath.Join(dir, "albedo.png"))
	assert.Contains(t, out, "Wrote "+filepath.Join(dir, "index.tif"))

	f, err := os.Open(filepath.Join(dir, "albedo.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())

	// Pixel (0, 0) lies in the first checker cell: Ca scaled by Kd = 1.
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}

func TestRun_OnePassForAllOutputs(t *testing.T) {
	dir := t.TempDir()
	config := `
width: 8
height: 4
verbose: true
output: ` + dir + `
layers:
  - shader: checker
    params:
      scale: 2.0
outputs:
  - var: Cout
    file: Cout.rgba
  - var: index
    file: index.r8
`
	cfg, err := loadConfig(strings.NewReader(config))
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(cfg, &stdout, &stderr), "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "Shaded 32 points for 2 outputs")

	rgba, err := os.ReadFile(filepath.Join(dir, "Cout.rgba"))
	require.NoError(t, err)
	require.Len(t, rgba, 8*4*4)
	assert.Equal(t, []byte{255, 255, 255, 255}, rgba[:4], "first cell is Ca")

	index, err := os.ReadFile(filepath.Join(dir, "index.r8"))
	require.NoError(t, err)
	require.Len(t, index, 8*4)
	assert.Equal(t, byte(0), index[0])
	assert.Equal(t, byte(255), index[4], "pixel (4, 0) is in the second cell")
}

func TestRun_UnknownShader(t *testing.T) {
	cfg := defaultConfig()
	cfg.Output = t.TempDir()
	cfg.Width, cfg.Height = 4, 4
	cfg.Layers = []LayerConfig{{Shader: "no_such_shader"}}

	var stdout, stderr bytes.Buffer
	err := run(cfg, &stdout, &stderr)
	assert.ErrorIs(t, err, osl.ErrShaderFailed)
	assert.Contains(t, stderr.String(), "ERROR")
}

func TestRun_UnknownOutput(t *testing.T) {
	cfg := defaultConfig()
	cfg.Output = t.TempDir()
	cfg.Width, cfg.Height = 4, 4
	cfg.Outputs = []OutputConfig{{Var: "nope"}}

	err := run(cfg, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, osl.ErrSymbolNotFound)
}
