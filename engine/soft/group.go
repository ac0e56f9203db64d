package soft

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
)

type groupState uint8

const (
	groupOpen groupState = iota
	groupReady
	groupFailed
)

// pendingParam is a Parameter value waiting for the next Shader call.
type pendingParam struct {
	name     string
	td       typedesc.TypeDesc
	val      []byte
	lockgeom bool
}

// instanceValue is a parameter value bound to one layer.
type instanceValue struct {
	val      []byte
	lockgeom bool
}

// layer is one shader instance in a group.
type layer struct {
	name   string
	usage  string
	master *Master
	kernel Kernel
	values map[string]instanceValue

	// Set by compile.
	slotByName map[string]int
	inputSlots []int
}

// connection feeds an upstream output into a downstream input.
type connection struct {
	src, dst           int
	srcParam, dstParam string

	// Set by compile.
	srcSlot, dstSlot int
}

// symbolSlot is one parameter or output in the group's heap layout.
type symbolSlot struct {
	layer    int
	name     string
	td       typedesc.TypeDesc
	offset   int
	size     int
	output   bool
	init     []byte
	required bool
	// bound is true when the value was set on the instance or is connected.
	bound bool
	// userdata marks inputs the renderer may override per point.
	userdata bool
}

// group is a shader group under construction or compiled.
type group struct {
	handle engine.GroupHandle
	attrs  *attrStore

	mu          sync.Mutex
	name        string
	state       groupState
	layers      []*layer
	layerByName map[string]int
	pending     []pendingParam
	conns       []connection

	// Set by compile; read-only afterwards.
	slots      []symbolSlot
	heapSize   int
	connsInto  [][]int
	execRepeat int

	// bound is set by the first Execute.
	bound atomic.Bool

	// symbolHandles maps slot index (-1 for Ci) to its handle. Guarded by
	// Engine.mu.
	symbolHandles map[int]engine.SymbolHandle
}

// ShaderGroupBegin opens a new group.
func (e *Engine) ShaderGroupBegin(name string) engine.GroupHandle {
	g := &group{
		handle:        engine.GroupHandle(e.nextHandle.Add(1)),
		attrs:         newAttrStore(groupAttrs),
		name:          name,
		layerByName:   make(map[string]int),
		symbolHandles: make(map[int]engine.SymbolHandle),
	}

	e.mu.Lock()
	e.groups[g.handle] = g
	e.mu.Unlock()

	e.stats.groups.Add(1)
	slogger().Debug("soft: group begin", "group", name, "handle", uint64(g.handle))
	return g.handle
}

// openGroup returns the group if it exists and is still open, reporting
// the failure otherwise.
func (e *Engine) openGroup(gh engine.GroupHandle, op string) *group {
	g := e.group(gh)
	if g == nil {
		e.report(engine.ErrCodeError, op+": invalid group handle")
		return nil
	}
	g.mu.Lock()
	open := g.state == groupOpen
	g.mu.Unlock()
	if !open {
		e.report(engine.ErrCodeError, fmt.Sprintf("%s: group %q is already closed", op, g.name))
		return nil
	}
	return g
}

// Parameter records a value for the next Shader call on g.
func (e *Engine) Parameter(gh engine.GroupHandle, name string, td typedesc.TypeDesc, val []byte, lockgeom bool) bool {
	g := e.openGroup(gh, "Parameter")
	if g == nil {
		return false
	}
	if len(val) != td.Size() {
		e.report(engine.ErrCodeError, fmt.Sprintf("Parameter %q: %d bytes do not hold a %s", name, len(val), td))
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, pendingParam{
		name:     name,
		td:       td,
		val:      append([]byte(nil), val...),
		lockgeom: lockgeom,
	})
	return true
}

// Shader appends a layer running shader to g. Pending parameters are bound
// to the new layer whether or not it is created.
func (e *Engine) Shader(gh engine.GroupHandle, usage, shader, layerName string) bool {
	g := e.openGroup(gh, "Shader")
	if g == nil {
		return false
	}

	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	if !validUsages[usage] {
		e.report(engine.ErrCodeError, fmt.Sprintf("Shader %q: unknown shader usage %q", shader, usage))
		return false
	}

	m, err := e.loadMaster(shader)
	if err != nil {
		e.report(engine.ErrCodeError, fmt.Sprintf("Shader: could not load %q: %v", shader, err))
		return false
	}
	if m.Usage != "shader" && usage != "shader" && m.Usage != usage {
		e.report(engine.ErrCodeError, fmt.Sprintf("Shader %q is a %s shader, not %s", shader, m.Usage, usage))
		return false
	}
	k, ok := e.kernel(m.Name)
	if !ok {
		e.report(engine.ErrCodeError, fmt.Sprintf("Shader: %v %q", ErrNoKernel, m.Name))
		return false
	}

	l := &layer{
		usage:  usage,
		master: m,
		kernel: k,
		values: make(map[string]instanceValue, len(pending)),
	}
	for _, p := range pending {
		param, _, ok := m.Input(p.name)
		if !ok {
			e.report(engine.ErrCodeWarning, fmt.Sprintf("parameter %q not found in shader %q, ignored", p.name, shader))
			continue
		}
		val, ok := convertValue(p.td, p.val, param.Type)
		if !ok {
			e.report(engine.ErrCodeError, fmt.Sprintf("parameter %q of shader %q is %s, cannot assign %s",
				p.name, shader, param.Type, p.td))
			return false
		}
		l.values[p.name] = instanceValue{val: val, lockgeom: p.lockgeom}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != groupOpen {
		e.report(engine.ErrCodeError, fmt.Sprintf("Shader: group %q was closed concurrently", g.name))
		return false
	}
	l.name = layerName
	if l.name == "" {
		l.name = fmt.Sprintf("%s_%d", m.Name, len(g.layers))
	}
	if _, dup := g.layerByName[l.name]; dup {
		e.report(engine.ErrCodeError, fmt.Sprintf("Shader: group %q already has a layer %q", g.name, l.name))
		return false
	}
	g.layerByName[l.name] = len(g.layers)
	g.layers = append(g.layers, l)

	slogger().Debug("soft: layer added", "group", g.name, "layer", l.name, "shader", m.Name)
	return true
}

// ConnectShaders connects an output of an earlier layer to an input of a
// later one. When the "connection_error" attribute is 0 an invalid
// connection is only a warning and is dropped.
func (e *Engine) ConnectShaders(gh engine.GroupHandle, srcLayer, srcParam, dstLayer, dstParam string) bool {
	g := e.openGroup(gh, "ConnectShaders")
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fail := func(format string, args ...any) bool {
		msg := "ConnectShaders: " + fmt.Sprintf(format, args...)
		if e.attrs.int("connection_error") == 0 {
			e.report(engine.ErrCodeWarning, msg)
			return true
		}
		e.report(engine.ErrCodeError, msg)
		return false
	}

	src, ok := g.layerByName[srcLayer]
	if !ok {
		return fail("no layer %q", srcLayer)
	}
	dst, ok := g.layerByName[dstLayer]
	if !ok {
		return fail("no layer %q", dstLayer)
	}
	if src >= dst {
		return fail("layer %q must come before %q", srcLayer, dstLayer)
	}
	out, _, ok := g.layers[src].master.Output(srcParam)
	if !ok {
		return fail("%q has no output %q", srcLayer, srcParam)
	}
	in, _, ok := g.layers[dst].master.Input(dstParam)
	if !ok {
		return fail("%q has no input %q", dstLayer, dstParam)
	}
	if !connectable(out.Type, in.Type) {
		return fail("cannot connect %s %s.%s to %s %s.%s",
			out.Type, srcLayer, srcParam, in.Type, dstLayer, dstParam)
	}
	for _, c := range g.conns {
		if c.dst == dst && c.dstParam == dstParam {
			return fail("%s.%s is already connected", dstLayer, dstParam)
		}
	}

	g.conns = append(g.conns, connection{src: src, dst: dst, srcParam: srcParam, dstParam: dstParam})
	return true
}

// ShaderGroupEnd closes g and compiles it. A failed compile leaves the
// group closed and unusable.
func (e *Engine) ShaderGroupEnd(gh engine.GroupHandle) bool {
	g := e.openGroup(gh, "ShaderGroupEnd")
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) > 0 {
		e.report(engine.ErrCodeWarning, fmt.Sprintf("group %q: %d parameters set after the last shader are ignored",
			g.name, len(g.pending)))
		g.pending = nil
	}

	if err := e.compile(g); err != nil {
		g.state = groupFailed
		e.stats.groupsFailed.Add(1)
		e.report(engine.ErrCodeError, fmt.Sprintf("group %q failed to compile: %v", g.name, err))
		return false
	}
	g.state = groupReady
	e.stats.groupsCompiled.Add(1)
	return true
}

// compile checks closures, resolves connections and lays out the symbol
// heap. Caller holds g.mu.
func (e *Engine) compile(g *group) error {
	if len(g.layers) == 0 {
		return errors.New("group has no layers")
	}

	for _, l := range g.layers {
		for _, name := range l.master.Closures {
			decl := e.closure(name)
			if decl == nil {
				return fmt.Errorf("shader %q uses closure %q, which is not registered", l.master.Name, name)
			}
			for _, sig := range l.kernel.Closures {
				if sig.Name == name {
					if err := decl.checkSignature(sig); err != nil {
						return fmt.Errorf("shader %q: %w", l.master.Name, err)
					}
				}
			}
		}
		for _, sig := range l.kernel.Closures {
			if !slices.Contains(l.master.Closures, sig.Name) {
				return fmt.Errorf("shader %q builds closure %q without declaring it", l.master.Name, sig.Name)
			}
		}
	}

	type input struct {
		layer int
		name  string
	}
	connected := make(map[input]bool, len(g.conns))
	for _, c := range g.conns {
		connected[input{c.dst, c.dstParam}] = true
	}

	sessionLockgeom := e.attrs.int("lockgeom") != 0
	var slots []symbolSlot
	offset := 0
	add := func(s symbolSlot) int {
		s.offset = offset
		s.size = s.td.Size()
		offset += (s.size + 3) &^ 3
		slots = append(slots, s)
		return len(slots) - 1
	}

	for li, l := range g.layers {
		l.slotByName = make(map[string]int, len(l.master.Inputs)+len(l.master.Outputs))
		l.inputSlots = l.inputSlots[:0]
		for _, p := range l.master.Inputs {
			s := symbolSlot{layer: li, name: p.Name, td: p.Type, init: p.Default, required: p.Required}
			if v, ok := l.values[p.Name]; ok {
				s.init = v.val
				s.bound = true
				s.userdata = !v.lockgeom
			} else {
				s.userdata = !sessionLockgeom
			}
			if connected[input{li, p.Name}] {
				s.bound = true
				s.userdata = false
			}
			idx := add(s)
			l.slotByName[p.Name] = idx
			l.inputSlots = append(l.inputSlots, idx)
		}
		for _, p := range l.master.Outputs {
			l.slotByName[p.Name] = add(symbolSlot{layer: li, name: p.Name, td: p.Type, init: p.Default, output: true})
		}
	}

	connsInto := make([][]int, len(g.layers))
	for i := range g.conns {
		c := &g.conns[i]
		c.srcSlot = g.layers[c.src].slotByName[c.srcParam]
		c.dstSlot = g.layers[c.dst].slotByName[c.dstParam]
		connsInto[c.dst] = append(connsInto[c.dst], i)
	}

	g.slots = slots
	g.heapSize = offset
	g.connsInto = connsInto

	g.execRepeat = int(e.attrs.int("exec_repeat"))
	if g.attrs.isSet("exec_repeat") {
		g.execRepeat = int(g.attrs.int("exec_repeat"))
	}
	g.execRepeat = max(g.execRepeat, 1)

	outputs := e.attrs.strings("renderer_outputs")
	if g.attrs.isSet("renderer_outputs") {
		outputs = g.attrs.strings("renderer_outputs")
	}
	for _, name := range outputs {
		if g.findSlot(name, true) < 0 {
			e.report(engine.ErrCodeWarning, fmt.Sprintf("group %q: renderer output %q is not an output of any layer", g.name, name))
		}
	}

	if e.attrs.int("compile_report") != 0 {
		e.report(engine.ErrCodeInfo, fmt.Sprintf("group %q compiled: %d layers, %d symbols, %d bytes",
			g.name, len(g.layers), len(g.slots), g.heapSize))
	}
	slogger().Debug("soft: group compiled", "group", g.name, "layers", len(g.layers), "heap", g.heapSize)
	return nil
}

// findSlot resolves "sym" or "layer.sym". Unqualified names search layers
// from last to first, so group outputs shadow upstream ones. With
// outputsOnly, inputs are skipped.
func (g *group) findSlot(name string, outputsOnly bool) int {
	match := func(li int, sym string) int {
		idx, ok := g.layers[li].slotByName[sym]
		if !ok || (outputsOnly && !g.slots[idx].output) {
			return -1
		}
		return idx
	}

	for li := len(g.layers) - 1; li >= 0; li-- {
		if idx := match(li, name); idx >= 0 {
			return idx
		}
	}
	for i := len(name) - 1; i > 0; i-- {
		if name[i] != '.' {
			continue
		}
		if li, ok := g.layerByName[name[:i]]; ok {
			return match(li, name[i+1:])
		}
	}
	return -1
}

// DestroyGroup releases g and every symbol handle that refers to it.
func (e *Engine) DestroyGroup(gh engine.GroupHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[gh]
	if !ok {
		return
	}
	for _, sh := range g.symbolHandles {
		delete(e.symbols, sh)
	}
	delete(e.groups, gh)
	slogger().Debug("soft: group destroyed", "group", g.name, "handle", uint64(gh))
}

func (e *Engine) group(gh engine.GroupHandle) *group {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.groups[gh]
}

// connectable reports whether an output of type src may feed an input of
// type dst. A float may feed any float triple.
func connectable(src, dst typedesc.TypeDesc) bool {
	return src.Equivalent(dst) || (src.Equivalent(typedesc.TypeFloat) && dst.IsTriple())
}

// convertValue converts a Parameter value to a parameter's type. Ints
// convert to floats of the same shape and a single float broadcasts to a
// triple.
func convertValue(td typedesc.TypeDesc, val []byte, to typedesc.TypeDesc) ([]byte, bool) {
	switch {
	case td.Equivalent(to):
		return val, true
	case td.BaseType == typedesc.Int32 && to.BaseType == typedesc.Float &&
		td.Aggregate == to.Aggregate && td.ArrayLen == to.ArrayLen:
		ints := engine.DecodeInt32s(val)
		fs := make([]float32, len(ints))
		for i, v := range ints {
			fs[i] = float32(v)
		}
		return engine.EncodeFloat32s(fs...), true
	case td.Equivalent(typedesc.TypeFloat) && to.IsTriple():
		v := engine.DecodeFloat32s(val)[0]
		return engine.EncodeFloat32s(v, v, v), true
	case td.Equivalent(typedesc.TypeInt32) && to.IsTriple():
		v := float32(engine.DecodeInt32s(val)[0])
		return engine.EncodeFloat32s(v, v, v), true
	}
	return nil, false
}

// copyConnected copies an upstream value into a downstream slot,
// broadcasting a float into a triple.
func copyConnected(dst, src []byte, dstTD, srcTD typedesc.TypeDesc) {
	if srcTD.Equivalent(dstTD) {
		copy(dst, src)
		return
	}
	w := src[:engine.WordSize]
	for i := 0; i+engine.WordSize <= len(dst); i += engine.WordSize {
		copy(dst[i:], w)
	}
}
