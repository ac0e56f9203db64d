package soft

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/wgsl"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
)

//go:embed shaders/*.wgsl
var stockShaders embed.FS

// Param is one input or output of a shader master.
type Param struct {
	Name     string
	Type     typedesc.TypeDesc
	Default  []byte
	Required bool
	Output   bool
}

// Master is a parsed shader declaration.
type Master struct {
	// Name is the shader name (the declaring function's name).
	Name string
	// Usage is the shader type: surface, displacement, volume or shader.
	Usage string
	// Closures lists the closures the shader may build.
	Closures []string
	// Inputs and Outputs in declaration order.
	Inputs  []Param
	Outputs []Param
	// Origin tells where the declaration came from.
	Origin string
}

// Input returns the input parameter called name.
func (m *Master) Input(name string) (Param, int, bool) {
	for i, p := range m.Inputs {
		if p.Name == name {
			return p, i, true
		}
	}
	return Param{}, -1, false
}

// Output returns the output called name.
func (m *Master) Output(name string) (Param, int, bool) {
	for i, p := range m.Outputs {
		if p.Name == name {
			return p, i, true
		}
	}
	return Param{}, -1, false
}

// validUsages are the accepted @shader arguments.
var validUsages = map[string]bool{
	"surface":      true,
	"displacement": true,
	"volume":       true,
	"shader":       true,
}

// ParseMaster parses a WGSL master declaration. name selects the function
// when the source declares several @shader functions; an empty name
// requires exactly one.
func ParseMaster(name, source, origin string) (*Master, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMaster, origin, err)
	}
	mod, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMaster, origin, err)
	}

	fn, err := findShaderFunc(ast, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMaster, origin, err)
	}

	m := &Master{Name: fn.Name, Usage: "shader", Origin: origin}
	for _, attr := range fn.Attributes {
		switch attr.Name {
		case "shader":
			if len(attr.Args) == 1 {
				m.Usage = exprText(attr.Args[0])
			}
			if !validUsages[m.Usage] {
				return nil, fmt.Errorf("%w: %s: unknown shader usage %q", ErrInvalidMaster, origin, m.Usage)
			}
		case "closures":
			for _, arg := range attr.Args {
				m.Closures = append(m.Closures, exprText(arg))
			}
		}
	}

	irFn := findIRFunc(mod, fn.Name)
	if irFn == nil {
		return nil, fmt.Errorf("%w: %s: function %q was not lowered", ErrInvalidMaster, origin, fn.Name)
	}

	switch len(fn.Params) {
	case 0:
	case 1:
		decl := findStruct(ast, typeName(fn.Params[0].Type))
		if decl == nil {
			return nil, fmt.Errorf("%w: %s: parameter of %q must be a struct", ErrInvalidMaster, origin, fn.Name)
		}
		m.Inputs, err = structParams(mod, decl, irFn.Arguments[0].Type, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMaster, origin, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s: %q takes at most one parameter struct", ErrInvalidMaster, origin, fn.Name)
	}

	if fn.ReturnType != nil {
		decl := findStruct(ast, typeName(fn.ReturnType))
		if decl == nil || irFn.Result == nil {
			return nil, fmt.Errorf("%w: %s: result of %q must be a struct", ErrInvalidMaster, origin, fn.Name)
		}
		m.Outputs, err = structParams(mod, decl, irFn.Result.Type, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMaster, origin, err)
		}
	}

	for _, out := range m.Outputs {
		if _, _, dup := m.Input(out.Name); dup {
			return nil, fmt.Errorf("%w: %s: %q is both an input and an output", ErrInvalidMaster, origin, out.Name)
		}
	}
	return m, nil
}

func findShaderFunc(ast *wgsl.Module, name string) (*wgsl.FunctionDecl, error) {
	var found []*wgsl.FunctionDecl
	for _, fn := range ast.Functions {
		if hasAttr(fn.Attributes, "shader") {
			if fn.Name == name {
				return fn, nil
			}
			found = append(found, fn)
		}
	}
	switch {
	case len(found) == 1 && name == "":
		return found[0], nil
	case len(found) == 0:
		return nil, errors.New("no @shader function")
	case name == "":
		return nil, fmt.Errorf("%d @shader functions and no name to choose", len(found))
	default:
		return nil, fmt.Errorf("no @shader function named %q", name)
	}
}

func findIRFunc(mod *ir.Module, name string) *ir.Function {
	for i := range mod.Functions {
		if mod.Functions[i].Name == name {
			return &mod.Functions[i]
		}
	}
	return nil
}

func findStruct(ast *wgsl.Module, name string) *wgsl.StructDecl {
	for _, s := range ast.Structs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func typeName(t wgsl.Type) string {
	if nt, ok := t.(*wgsl.NamedType); ok {
		return nt.Name
	}
	return ""
}

func hasAttr(attrs []wgsl.Attribute, name string) bool {
	_, ok := findAttr(attrs, name)
	return ok
}

func findAttr(attrs []wgsl.Attribute, name string) (wgsl.Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return wgsl.Attribute{}, false
}

// structParams converts a struct declaration into parameters. Member names
// and attributes come from the syntax tree; member types come from the
// lowered module, where the struct is found through the function signature.
func structParams(mod *ir.Module, decl *wgsl.StructDecl, h ir.TypeHandle, output bool) ([]Param, error) {
	st, ok := mod.Types[h].Inner.(ir.StructType)
	if !ok || len(st.Members) != len(decl.Members) {
		return nil, fmt.Errorf("struct %s does not match its lowered form", decl.Name)
	}

	params := make([]Param, 0, len(decl.Members))
	seen := make(map[string]bool, len(decl.Members))
	for i, member := range decl.Members {
		if seen[member.Name] {
			return nil, fmt.Errorf("%s.%s declared twice", decl.Name, member.Name)
		}
		seen[member.Name] = true

		td, err := memberType(mod, st.Members[i].Type, member.Attributes)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", decl.Name, member.Name, err)
		}
		p := Param{
			Name:     member.Name,
			Type:     td,
			Required: hasAttr(member.Attributes, "required"),
			Output:   output,
		}
		if init, ok := findAttr(member.Attributes, "init"); ok {
			p.Default, err = defaultValue(td, init.Args)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", decl.Name, member.Name, err)
			}
		} else {
			p.Default = make([]byte, td.Size())
		}
		params = append(params, p)
	}
	return params, nil
}

// memberType maps a lowered WGSL type to a TypeDesc.
func memberType(mod *ir.Module, h ir.TypeHandle, attrs []wgsl.Attribute) (typedesc.TypeDesc, error) {
	switch t := mod.Types[h].Inner.(type) {
	case ir.ScalarType:
		return scalarType(t, hasAttr(attrs, "string"))

	case ir.VectorType:
		if t.Scalar.Kind != ir.ScalarFloat || t.Scalar.Width != 4 {
			return typedesc.TypeUnknown, errors.New("only f32 vectors are supported")
		}
		td := typedesc.New(typedesc.Float, typedesc.Aggregate(t.Size), typedesc.NoXform, 0)
		if t.Size == ir.Vec3 {
			td.VecSemantics = typedesc.Vector
		}
		if sem, ok := findAttr(attrs, "semantics"); ok {
			if t.Size != ir.Vec3 || len(sem.Args) != 1 {
				return typedesc.TypeUnknown, errors.New("@semantics needs one kind on a vec3<f32>")
			}
			v, ok := typedesc.ParseVecSemantics(exprText(sem.Args[0]))
			if !ok {
				return typedesc.TypeUnknown, fmt.Errorf("unknown semantics %q", exprText(sem.Args[0]))
			}
			td.VecSemantics = v
		}
		return td, nil

	case ir.MatrixType:
		if t.Columns != ir.Vec4 || t.Rows != ir.Vec4 || t.Scalar.Kind != ir.ScalarFloat {
			return typedesc.TypeUnknown, errors.New("only mat4x4<f32> matrices are supported")
		}
		return typedesc.TypeMatrix44, nil

	case ir.ArrayType:
		if t.Size.Constant == nil {
			return typedesc.TypeUnknown, errors.New("runtime-sized arrays are not supported")
		}
		elem, err := memberType(mod, t.Base, attrs)
		if err != nil {
			return typedesc.TypeUnknown, err
		}
		if elem.IsArray() {
			return typedesc.TypeUnknown, errors.New("nested arrays are not supported")
		}
		return elem.Array(int(*t.Size.Constant)), nil
	}
	return typedesc.TypeUnknown, errors.New("unsupported member type")
}

func scalarType(t ir.ScalarType, isString bool) (typedesc.TypeDesc, error) {
	if t.Width != 4 {
		return typedesc.TypeUnknown, errors.New("only 32-bit scalars are supported")
	}
	switch {
	case isString && t.Kind == ir.ScalarUint:
		return typedesc.TypeString, nil
	case isString:
		return typedesc.TypeUnknown, errors.New("@string needs a u32 member")
	case t.Kind == ir.ScalarFloat:
		return typedesc.TypeFloat, nil
	case t.Kind == ir.ScalarSint:
		return typedesc.TypeInt32, nil
	}
	return typedesc.TypeUnknown, errors.New("unsupported scalar type (use f32, i32 or @string u32)")
}

// defaultValue encodes @init arguments as td. A single argument is
// broadcast to every base value.
func defaultValue(td typedesc.TypeDesc, args []wgsl.Expr) ([]byte, error) {
	n := td.BaseValues()
	if len(args) != 1 && len(args) != n {
		return nil, fmt.Errorf("@init has %d values, type %s needs 1 or %d", len(args), td, n)
	}

	texts := make([]string, n)
	for i := range texts {
		texts[i] = exprText(args[min(i, len(args)-1)])
	}

	switch td.BaseType {
	case typedesc.String:
		return engine.EncodeStrings(texts...), nil
	case typedesc.Int32:
		vs := make([]int32, n)
		for i, s := range texts {
			v, err := strconv.ParseInt(strings.TrimSuffix(s, "i"), 0, 32)
			if err != nil {
				return nil, fmt.Errorf("@init value %q: %w", s, err)
			}
			vs[i] = int32(v)
		}
		return engine.EncodeInt32s(vs...), nil
	default:
		vs := make([]float32, n)
		for i, s := range texts {
			v, err := strconv.ParseFloat(strings.TrimRight(s, "fh"), 32)
			if err != nil {
				return nil, fmt.Errorf("@init value %q: %w", s, err)
			}
			vs[i] = float32(v)
		}
		return engine.EncodeFloat32s(vs...), nil
	}
}

// exprText renders the simple expressions allowed in attributes:
// identifiers, literals and negated literals.
func exprText(e wgsl.Expr) string {
	switch v := e.(type) {
	case *wgsl.Ident:
		return v.Name
	case *wgsl.Literal:
		return v.Value
	case *wgsl.UnaryExpr:
		if v.Op == wgsl.TokenMinus {
			return "-" + exprText(v.Operand)
		}
	}
	return ""
}

// loadMaster finds, parses and caches the master for shader.
func (e *Engine) loadMaster(shader string) (*Master, error) {
	e.stats.shadersRequested.Add(1)

	file := shader + ".wgsl"
	for _, dir := range searchDirs(e.attrs.string("searchpath:shader")) {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return e.cachedMaster("file:"+path, func() (*Master, error) {
			src, err := os.ReadFile(path) //nolint:gosec // search path is configured by the renderer
			if err != nil {
				return nil, err
			}
			return ParseMaster(shader, string(src), path)
		})
	}

	if src, ok := e.opts.sources[shader]; ok {
		return e.cachedMaster("source:"+shader, func() (*Master, error) {
			return ParseMaster(shader, src, "source:"+shader)
		})
	}

	path := "shaders/" + file
	if _, err := fs.Stat(stockShaders, path); err == nil {
		return e.cachedMaster("stock:"+shader, func() (*Master, error) {
			src, err := stockShaders.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return ParseMaster(shader, string(src), "stock:"+shader)
		})
	}

	return nil, fmt.Errorf("%w: %q", ErrShaderNotFound, shader)
}

func (e *Engine) cachedMaster(key string, load func() (*Master, error)) (*Master, error) {
	m, hit, err := e.masters.GetOrLoad(key, load)
	if err != nil {
		return nil, err
	}
	if !hit {
		e.stats.shadersLoaded.Add(1)
		slogger().Debug("soft: shader master loaded", "shader", m.Name, "origin", m.Origin)
	}
	return m, nil
}
