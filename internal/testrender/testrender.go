// Package testrender provides a minimal renderer for driving a shading
// session outside a real renderer: renderer services backed by named
// transforms and per-point user data, and one output image per shader
// output.
package testrender

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/imagebuf"
	"github.com/gogpu/osl/typedesc"
)

// ErrUnknownOutput is returned when an output variable was never added.
var ErrUnknownOutput = errors.New("testrender: unknown output")

// UserDataFunc supplies the value of an unlocked parameter at one point.
type UserDataFunc func(sg *engine.ShaderGlobals, td typedesc.TypeDesc, out []byte) bool

// Output is one shader output and the image it is written to.
type Output struct {
	Var string
	Buf *imagebuf.ImageBuf
}

// Renderer implements engine.RendererServices and engine.UserDataProvider.
//
// Transforms and user data are set up before shading and only read while
// shading; the renderer is safe for concurrent reads.
type Renderer struct {
	width, height int

	mu         sync.RWMutex
	features   map[string]bool
	transforms map[string]f32.Mat4
	userdata   map[string]UserDataFunc
	outputs    []Output
}

// Compile-time interface checks.
var (
	_ engine.RendererServices = (*Renderer)(nil)
	_ engine.UserDataProvider = (*Renderer)(nil)
)

// New returns a renderer for width x height images.
func New(width, height int) *Renderer {
	return &Renderer{
		width:      width,
		height:     height,
		features:   make(map[string]bool),
		transforms: make(map[string]f32.Mat4),
		userdata:   make(map[string]UserDataFunc),
	}
}

// Width returns the image width.
func (r *Renderer) Width() int { return r.width }

// Height returns the image height.
func (r *Renderer) Height() int { return r.height }

// ROI returns the full-image region.
func (r *Renderer) ROI() imagebuf.ROI { return imagebuf.NewROI(0, r.width, 0, r.height) }

// Supports reports whether feature was enabled with SetFeature.
func (r *Renderer) Supports(feature string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.features[feature]
}

// SetFeature enables or disables an optional feature.
func (r *Renderer) SetFeature(feature string, on bool) {
	r.mu.Lock()
	r.features[feature] = on
	r.mu.Unlock()
}

// SetTransform names a row-major matrix. Shader globals refer to it by
// storing the name in Object2Common or Shader2Common.
func (r *Renderer) SetTransform(name string, m f32.Mat4) {
	r.mu.Lock()
	r.transforms[name] = m
	r.mu.Unlock()
}

// GetMatrix resolves a transform stored by name. Unknown names and
// non-string identifiers report false.
func (r *Renderer) GetMatrix(_ *engine.ShaderGlobals, xform any) (f32.Mat4, bool) {
	name, ok := xform.(string)
	if !ok {
		return f32.Mat4{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.transforms[name]
	return m, ok
}

// SetUserData installs the provider of the unlocked parameter name.
func (r *Renderer) SetUserData(name string, fn UserDataFunc) {
	r.mu.Lock()
	r.userdata[name] = fn
	r.mu.Unlock()
}

// GetUserData calls the provider installed for name.
func (r *Renderer) GetUserData(sg *engine.ShaderGlobals, name string, td typedesc.TypeDesc, out []byte) bool {
	r.mu.RLock()
	fn, ok := r.userdata[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return fn(sg, td, out)
}

// AddOutput allocates a zeroed nchannels image for the shader output
// varname. filename becomes the image name used by WriteOutputs.
func (r *Renderer) AddOutput(varname, filename string, format typedesc.TypeDesc, nchannels int) (*imagebuf.ImageBuf, error) {
	buf, err := imagebuf.New(filename, imagebuf.NewSpec(r.width, r.height, nchannels, format))
	if err != nil {
		return nil, fmt.Errorf("testrender: output %q: %w", varname, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, Output{Var: varname, Buf: buf})
	return buf, nil
}

// Outputs returns the outputs in the order they were added.
func (r *Renderer) Outputs() []Output {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Output(nil), r.outputs...)
}

// OutputVars returns the output variable names in the order they were added.
func (r *Renderer) OutputVars() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vars := make([]string, len(r.outputs))
	for i, o := range r.outputs {
		vars[i] = o.Var
	}
	return vars
}

// Output returns the image of varname.
func (r *Renderer) Output(varname string) (*imagebuf.ImageBuf, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.outputs {
		if o.Var == varname {
			return o.Buf, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, varname)
}

// WriteOutputs writes every output image into dir under its name. Names
// without an extension get ".png". It returns the written paths.
func (r *Renderer) WriteOutputs(dir string) ([]string, error) {
	var paths []string
	for _, o := range r.Outputs() {
		name := o.Buf.Name()
		if filepath.Ext(name) == "" {
			name += ".png"
		}
		path := filepath.Join(dir, name)
		if err := o.Buf.Write(path); err != nil {
			return paths, fmt.Errorf("testrender: write %q: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
