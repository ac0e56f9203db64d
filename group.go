package osl

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gogpu/osl/engine"
)

// GroupState is the build state of a ShaderGroup.
type GroupState uint8

// Group states.
const (
	// GroupOpen accepts Parameter, Shader and ConnectShaders calls.
	GroupOpen GroupState = iota
	// GroupClosed is compiled, immutable and executable.
	GroupClosed
	// GroupUnusable failed to build or has been released.
	GroupUnusable
)

// String returns the state name.
func (s GroupState) String() string {
	switch s {
	case GroupOpen:
		return "open"
	case GroupClosed:
		return "closed"
	case GroupUnusable:
		return "unusable"
	}
	return fmt.Sprintf("GroupState(%d)", uint8(s))
}

// ShaderGroup is a shader group: one or more layers, optionally connected,
// compiled into a unit of execution.
//
// A group is shared by reference count. ShaderGroupBegin returns it with one
// reference held by the caller; every additional owner calls Retain, and
// every owner calls Release when done. The engine group is destroyed when the
// last reference is released.
//
// Once closed, a group is immutable and may be executed from any number of
// threads.
type ShaderGroup struct {
	id     uuid.UUID
	handle engine.GroupHandle
	eng    engine.Engine

	// onDestroy updates the session's bookkeeping.
	onDestroy func()

	mu     sync.Mutex
	name   string
	state  GroupState
	layers []string

	refs atomic.Int32
	// bound is set by the first successful Execute.
	bound atomic.Bool
}

// Name returns the group name.
func (g *ShaderGroup) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.name
}

// ID returns the group's identity, used to correlate log records.
func (g *ShaderGroup) ID() uuid.UUID { return g.id }

// State returns the build state.
func (g *ShaderGroup) State() GroupState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Layers returns the layer names in evaluation order.
func (g *ShaderGroup) Layers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.layers)
}

// Refs returns the current number of references.
func (g *ShaderGroup) Refs() int { return int(g.refs.Load()) }

// Retain adds a reference. Retaining a group whose last reference was
// released panics.
func (g *ShaderGroup) Retain() {
	for {
		n := g.refs.Load()
		if n <= 0 {
			panic(fmt.Sprintf("osl: Retain on released group %q", g.Name()))
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// Release drops a reference and destroys the engine group when it was the
// last one. Releasing more references than were held panics.
func (g *ShaderGroup) Release() {
	n := g.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("osl: Release on released group %q", g.Name()))
	}
	if n > 0 {
		return
	}

	g.mu.Lock()
	g.state = GroupUnusable
	g.mu.Unlock()

	g.eng.DestroyGroup(g.handle)
	if g.onDestroy != nil {
		g.onDestroy()
	}
	Logger().Debug("osl: group destroyed", "group", g.Name(), "id", g.id)
}

// engineHandle returns the engine handle while the group is alive.
func (g *ShaderGroup) engineHandle() (engine.GroupHandle, error) {
	if g.refs.Load() <= 0 {
		return 0, fmt.Errorf("%w: group %q was released", ErrGroupUnusable, g.Name())
	}
	return g.handle, nil
}

// openHandle returns the engine handle of an open group.
func (g *ShaderGroup) openHandle() (engine.GroupHandle, error) {
	h, err := g.engineHandle()
	if err != nil {
		return 0, err
	}
	switch g.State() {
	case GroupOpen:
		return h, nil
	case GroupUnusable:
		return 0, fmt.Errorf("%w: group %q", ErrGroupUnusable, g.Name())
	}
	return 0, fmt.Errorf("%w: group %q", ErrGroupClosed, g.Name())
}

// closedHandle returns the engine handle of an executable group.
func (g *ShaderGroup) closedHandle() (engine.GroupHandle, error) {
	h, err := g.engineHandle()
	if err != nil {
		return 0, err
	}
	switch g.State() {
	case GroupClosed:
		return h, nil
	case GroupOpen:
		return 0, fmt.Errorf("%w: group %q", ErrGroupNotClosed, g.Name())
	}
	return 0, fmt.Errorf("%w: group %q", ErrGroupUnusable, g.Name())
}

func (g *ShaderGroup) setName(name string) {
	g.mu.Lock()
	g.name = name
	g.mu.Unlock()
}

func (g *ShaderGroup) markUnusable() {
	g.mu.Lock()
	g.state = GroupUnusable
	g.mu.Unlock()
}

// ParamOption configures one Parameter call.
type ParamOption func(*paramOptions)

type paramOptions struct {
	lockgeom bool
}

// WithLockGeom sets whether the value is locked to the geometry. An
// unlocked value may be replaced per point by renderer user data.
// Values are locked by default.
func WithLockGeom(lock bool) ParamOption {
	return func(o *paramOptions) {
		o.lockgeom = lock
	}
}

// ShaderGroupBegin opens a new shader group. The first call ends the
// closure registration phase.
func (ss *ShadingSystem) ShaderGroupBegin(name string) (*ShaderGroup, error) {
	if err := ss.enter("ShaderGroupBegin"); err != nil {
		return nil, err
	}
	ss.closures.closed.Store(true)

	h := ss.eng.ShaderGroupBegin(name)
	if h == 0 {
		return nil, fmt.Errorf("%w: engine refused group %q", ErrGroupCompileFailed, name)
	}

	g := &ShaderGroup{
		id:     uuid.New(),
		handle: h,
		eng:    ss.eng,
		name:   name,
		state:  GroupOpen,
	}
	g.refs.Store(1)
	ss.groupsLive.Add(1)
	g.onDestroy = func() { ss.groupsLive.Add(-1) }

	Logger().Info("osl: group begin", "group", name, "id", g.id)
	return g, nil
}

// Parameter sets a value for the next Shader call on g.
func (ss *ShadingSystem) Parameter(g *ShaderGroup, name string, v Value, opts ...ParamOption) error {
	if err := ss.enter("Parameter"); err != nil {
		return err
	}
	h, err := g.openHandle()
	if err != nil {
		return ss.fail(err)
	}

	po := paramOptions{lockgeom: true}
	for _, opt := range opts {
		opt(&po)
	}
	if !ss.eng.Parameter(h, name, v.td, v.raw, po.lockgeom) {
		return fmt.Errorf("%w: %q (%s) on group %q", ErrParameterFailed, name, v.td, g.Name())
	}
	return nil
}

// Shader appends a layer to g. usage is "surface", "displacement",
// "volume", "light" or "shader". Parameters set since the previous Shader
// call apply to this layer. A failure leaves g unusable.
func (ss *ShadingSystem) Shader(g *ShaderGroup, usage, shader, layer string) error {
	if err := ss.enter("Shader"); err != nil {
		return err
	}
	h, err := g.openHandle()
	if err != nil {
		return ss.fail(err)
	}

	if !ss.eng.Shader(h, usage, shader, layer) {
		g.markUnusable()
		return &ShaderError{Group: g.Name(), Usage: usage, Shader: shader, Layer: layer}
	}

	g.mu.Lock()
	g.layers = append(g.layers, layer)
	g.mu.Unlock()
	return nil
}

// ConnectShaders feeds output srcParam of srcLayer into input dstParam of
// dstLayer. srcLayer must precede dstLayer. A failure leaves g unusable.
func (ss *ShadingSystem) ConnectShaders(g *ShaderGroup, srcLayer, srcParam, dstLayer, dstParam string) error {
	if err := ss.enter("ConnectShaders"); err != nil {
		return err
	}
	h, err := g.openHandle()
	if err != nil {
		return ss.fail(err)
	}

	if !ss.eng.ConnectShaders(h, srcLayer, srcParam, dstLayer, dstParam) {
		g.markUnusable()
		return fmt.Errorf("%w: %s.%s -> %s.%s in group %q",
			ErrConnectFailed, srcLayer, srcParam, dstLayer, dstParam, g.Name())
	}
	return nil
}

// ShaderGroupEnd closes and compiles g. Afterwards g is immutable. A
// failure leaves g unusable.
func (ss *ShadingSystem) ShaderGroupEnd(g *ShaderGroup) error {
	if err := ss.enter("ShaderGroupEnd"); err != nil {
		return err
	}
	h, err := g.openHandle()
	if err != nil {
		return ss.fail(err)
	}

	if !ss.eng.ShaderGroupEnd(h) {
		g.markUnusable()
		return fmt.Errorf("%w: group %q", ErrGroupCompileFailed, g.Name())
	}

	g.mu.Lock()
	g.state = GroupClosed
	g.mu.Unlock()

	Logger().Info("osl: group closed", "group", g.Name(), "id", g.id, "layers", len(g.Layers()))
	return nil
}
