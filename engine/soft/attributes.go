package soft

import (
	"strings"
	"sync"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
)

// attrSpec declares a recognized attribute: its type and default value.
// String-array attributes accept any length.
type attrSpec struct {
	td  typedesc.TypeDesc
	def []byte
}

func intAttr(v int32) attrSpec {
	return attrSpec{td: typedesc.TypeInt32, def: engine.EncodeInt32s(v)}
}

func stringAttr(v string) attrSpec {
	return attrSpec{td: typedesc.TypeString, def: engine.EncodeStrings(v)}
}

func stringsAttr() attrSpec {
	return attrSpec{td: typedesc.TypeString.Array(-1)}
}

// sessionAttrs lists every attribute the engine accepts at session scope.
// Many exist for compatibility with renderers written against a compiling
// engine and are stored without further effect.
var sessionAttrs = map[string]attrSpec{
	"lockgeom":                 intAttr(1),
	"searchpath:shader":        stringAttr(""),
	"colorspace":               stringAttr("Rec709"),
	"statistics:level":         intAttr(0),
	"renderer_outputs":         stringsAttr(),
	"entry_layers":             stringsAttr(),
	"raytypes":                 stringsAttr(),
	"commonspace":              stringAttr("world"),
	"range_checking":           intAttr(1),
	"debug_nan":                intAttr(0),
	"debug_uninit":             intAttr(0),
	"compile_report":           intAttr(0),
	"max_warnings_per_thread":  intAttr(100),
	"buffer_printf":            intAttr(1),
	"profile":                  intAttr(0),
	"no_noise":                 intAttr(0),
	"no_pointcloud":            intAttr(0),
	"exec_repeat":              intAttr(1),
	"opt_warnings":             intAttr(0),
	"gpu_opt_error":            intAttr(0),
	"unknown_coordsys_error":   intAttr(1),
	"connection_error":         intAttr(1),
	"strict_messages":          intAttr(1),
	"error_repeats":            intAttr(1),
	"lazylayers":               intAttr(1),
	"lazyglobals":              intAttr(1),
	"lazyunconnected":          intAttr(1),
	"lazy_userdata":            intAttr(0),
	"userdata_isconnected":     intAttr(0),
	"greedyjit":                intAttr(0),
	"countlayerexecs":          intAttr(0),
	"allow_shader_replacement": intAttr(0),
	"archive_groupname":        stringAttr(""),
	"archive_filename":         stringAttr(""),
	"debug":                    intAttr(0),
	"clearmemory":              intAttr(0),
	"optimize":                 intAttr(2),
	"opt_passes":               intAttr(10),
	"llvm_optimize":            intAttr(0),
	"llvm_debug":               intAttr(0),
	"llvm_debug_layers":        intAttr(0),
	"llvm_debug_ops":           intAttr(0),
	"llvm_output_bitcode":      intAttr(0),
	"max_local_mem_KB":         intAttr(1024),
	"debug_groupname":          stringAttr(""),
	"debug_layername":          stringAttr(""),
	"optimize_nondebug":        intAttr(0),
	"opt_layername":            stringAttr(""),
	"only_groupname":           stringAttr(""),
	"force_derivs":             intAttr(0),
}

// optToggles are the "opt_*" optimizer switches, all integers defaulting
// to 1.
var optToggles = []string{
	"opt_simplify_param", "opt_constant_fold", "opt_stale_assign",
	"opt_elide_useless_ops", "opt_elide_unconnected_outputs",
	"opt_peephole", "opt_coalesce_temps", "opt_assign", "opt_mix",
	"opt_merge_instances", "opt_merge_instances_with_userdata",
	"opt_fold_getattribute", "opt_middleman", "opt_texture_handle",
	"opt_seed_bblock_aliases", "opt_useparam", "opt_batched_analysis",
}

// groupAttrs lists the attributes accepted at group scope.
var groupAttrs = map[string]attrSpec{
	"renderer_outputs": stringsAttr(),
	"entry_layers":     stringsAttr(),
	"groupname":        stringAttr(""),
	"exec_repeat":      intAttr(1),
}

func init() {
	for _, name := range optToggles {
		sessionAttrs[name] = intAttr(1)
	}
}

// accepts reports whether a value of type td can be stored in an attribute
// declared as spec.
func (spec attrSpec) accepts(td typedesc.TypeDesc, val []byte) bool {
	if spec.td.IsUnsizedArray() {
		if td.BaseType != spec.td.BaseType || td.Aggregate != spec.td.Aggregate {
			return false
		}
		// A scalar is accepted as a one-element array.
		n := td.NumElements()
		if td.IsUnsizedArray() {
			n = len(val) / max(td.ElementSize(), 1)
		}
		return len(val) == n*td.ElementSize()
	}
	return td.Equivalent(spec.td) && len(val) == td.Size()
}

// attrStore holds attribute values for one scope.
type attrStore struct {
	mu     sync.RWMutex
	specs  map[string]attrSpec
	values map[string][]byte
}

func newAttrStore(specs map[string]attrSpec) *attrStore {
	return &attrStore{specs: specs, values: make(map[string][]byte)}
}

// set validates and stores a copy of val. A rejected value leaves the store
// unchanged.
func (s *attrStore) set(name string, td typedesc.TypeDesc, val []byte) bool {
	spec, ok := s.specs[name]
	if !ok || !spec.accepts(td, val) {
		return false
	}
	s.mu.Lock()
	s.values[name] = append([]byte(nil), val...)
	s.mu.Unlock()
	return true
}

// get returns the stored value or the default, and whether name is
// recognized.
func (s *attrStore) get(name string) ([]byte, bool) {
	spec, ok := s.specs[name]
	if !ok {
		return nil, false
	}
	s.mu.RLock()
	v, set := s.values[name]
	s.mu.RUnlock()
	if set {
		return v, true
	}
	return spec.def, true
}

// isSet reports whether name was explicitly set.
func (s *attrStore) isSet(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

func (s *attrStore) int(name string) int32 {
	v, _ := s.get(name)
	if len(v) < engine.WordSize {
		return 0
	}
	return engine.DecodeInt32s(v[:engine.WordSize])[0]
}

func (s *attrStore) string(name string) string {
	v, _ := s.get(name)
	if len(v) < engine.WordSize {
		return ""
	}
	return engine.DecodeStrings(v[:engine.WordSize])[0]
}

func (s *attrStore) strings(name string) []string {
	v, _ := s.get(name)
	return engine.DecodeStrings(v)
}

// searchDirs splits the shader search path.
func searchDirs(path string) []string {
	var dirs []string
	for _, d := range strings.Split(path, ":") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Attribute sets a session attribute. Unknown names and mismatched types
// are rejected without changing any state.
func (e *Engine) Attribute(name string, td typedesc.TypeDesc, val []byte) bool {
	ok := e.attrs.set(name, td, val)
	if ok {
		slogger().Debug("soft: attribute set", "name", name, "type", td.String())
	}
	return ok
}

// GetAttribute reads a session attribute or a "stat:" statistic as td.
func (e *Engine) GetAttribute(name string, td typedesc.TypeDesc) ([]byte, bool) {
	if strings.HasPrefix(name, "stat:") {
		v, ok := e.stat(name)
		if !ok || !td.Equivalent(typedesc.TypeInt32) {
			return nil, false
		}
		return engine.EncodeInt32s(v), true
	}

	spec, ok := e.attrs.specs[name]
	if !ok {
		return nil, false
	}
	v, _ := e.attrs.get(name)
	if spec.td.IsUnsizedArray() {
		if td.BaseType != spec.td.BaseType || td.Aggregate != spec.td.Aggregate || !td.IsArray() {
			return nil, false
		}
	} else if !td.Equivalent(spec.td) {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// GroupAttribute sets an attribute on one group. Groups accept attributes
// while open and after they are closed; values read at compile time
// (renderer_outputs) only take effect before ShaderGroupEnd.
func (e *Engine) GroupAttribute(gh engine.GroupHandle, name string, td typedesc.TypeDesc, val []byte) bool {
	g := e.group(gh)
	if g == nil {
		e.report(engine.ErrCodeError, "GroupAttribute: invalid group handle")
		return false
	}
	if !g.attrs.set(name, td, val) {
		return false
	}
	if name == "groupname" {
		g.mu.Lock()
		g.name = g.attrs.string("groupname")
		g.mu.Unlock()
	}
	return true
}
