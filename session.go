package osl

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"

	"github.com/gogpu/osl/engine"
	// Registers the soft engine as the default.
	_ "github.com/gogpu/osl/engine/soft"
	"github.com/gogpu/osl/internal/parallel"
	"github.com/gogpu/osl/typedesc"
)

// ShadingSystem is a shading session: one engine instance with its error
// handler, registered closures, shader groups, per-thread contexts and the
// worker pool behind ShadeImage.
//
// Closures are registered first, on one goroutine. Groups are then built
// and executed; closed groups may be executed from any number of threads,
// each with its own ThreadInfo and contexts.
type ShadingSystem struct {
	id       uuid.UUID
	renderer engine.RendererServices
	eng      engine.Engine
	opts     options
	errs     *errorSink
	closures *closureRegistry
	threads  threadInfos

	poolMu sync.Mutex
	pool   *parallel.WorkerPool[*shadeWorker]

	closeOnce sync.Once
	closed    atomic.Bool

	threadInfosLive atomic.Int64
	contextsLive    atomic.Int64
	groupsLive      atomic.Int64
	executions      atomic.Int64
	shadedPoints    atomic.Int64
}

// Stats is a snapshot of session bookkeeping.
type Stats struct {
	// Live resources.
	ThreadInfos int64
	Contexts    int64
	Groups      int64

	// Executions counts Execute calls that reached the engine.
	Executions int64
	// ShadedPoints counts points shaded by ShadeImage.
	ShadedPoints int64
	// Diagnostics counts messages delivered to the ErrorHandler.
	Diagnostics int64
}

// New creates a shading session calling back into renderer.
//
// The engine comes from WithEngineFactory if given, else the registered
// engine named by WithEngine, else the registry default (the soft engine).
func New(renderer engine.RendererServices, opts ...Option) (*ShadingSystem, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ss := &ShadingSystem{
		id:       uuid.New(),
		renderer: renderer,
		opts:     o,
		errs:     newErrorSink(o.handler, o.verbosity),
		closures: newClosureRegistry(),
	}

	var (
		eng engine.Engine
		err error
	)
	switch {
	case o.factory != nil:
		eng, err = o.factory(renderer, ss.errs.engineHandler())
	case o.engineName != "":
		eng, err = engine.Get(o.engineName, renderer, ss.errs.engineHandler())
	default:
		eng, err = engine.Default(renderer, ss.errs.engineHandler())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	if eng == nil {
		return nil, ErrEngineUnavailable
	}
	ss.eng = eng
	trackEngine(ss)

	Logger().Info("osl: session created", "id", ss.id, "engine", o.engineName)
	return ss, nil
}

// enter guards every public operation.
func (ss *ShadingSystem) enter(op string) error {
	ss.errs.guard(op)
	if ss.closed.Load() {
		return ss.fail(fmt.Errorf("%w: %s", ErrSessionClosed, op))
	}
	return nil
}

// fail delivers err to the ErrorHandler and returns it. Failures detected
// by the engine are reported by the engine itself.
func (ss *ShadingSystem) fail(err error) error {
	ss.errs.report(SeverityError, err.Error())
	return err
}

// ID returns the session identity, used to correlate log records.
func (ss *ShadingSystem) ID() uuid.UUID { return ss.id }

// Renderer returns the renderer services the session was created with.
func (ss *ShadingSystem) Renderer() engine.RendererServices { return ss.renderer }

// Stats returns a snapshot of session bookkeeping.
func (ss *ShadingSystem) Stats() Stats {
	return Stats{
		ThreadInfos:  ss.threadInfosLive.Load(),
		Contexts:     ss.contextsLive.Load(),
		Groups:       ss.groupsLive.Load(),
		Executions:   ss.executions.Load(),
		ShadedPoints: ss.shadedPoints.Load(),
		Diagnostics:  ss.errs.reported.Load(),
	}
}

// Execute binds g to sg in ctx and, when run is true, evaluates it. A bind
// without run initializes the group's symbols so FindSymbol can resolve
// them. ctx must be used on the thread that created it.
func (ss *ShadingSystem) Execute(ctx *ShadingContext, g *ShaderGroup, sg *ShaderGlobals, run bool) error {
	if err := ss.enter("Execute"); err != nil {
		return err
	}
	if err := ctx.check(); err != nil {
		return ss.fail(err)
	}
	h, err := g.closedHandle()
	if err != nil {
		return ss.fail(err)
	}
	g.Retain()
	defer g.Release()

	ss.executions.Add(1)
	if !ss.eng.Execute(ctx.handle, h, sg, run) {
		return fmt.Errorf("%w: group %q", ErrExecuteFailed, g.Name())
	}
	ctx.group = g
	g.bound.Store(true)
	return nil
}

// ShaderSymbol is a named symbol of a shader group, resolved by FindSymbol.
// It is meaningless once the group is destroyed.
type ShaderSymbol struct {
	handle engine.SymbolHandle
	name   string
	group  *ShaderGroup
	td     typedesc.TypeDesc
}

// Name returns the name the symbol was looked up with.
func (s *ShaderSymbol) Name() string { return s.name }

// TypeDesc returns the symbol type. The output closure Ci reports
// typedesc.TypeUnknown.
func (s *ShaderSymbol) TypeDesc() typedesc.TypeDesc { return s.td }

// FindSymbol resolves "symbol" or "layer.symbol" in g. g must have been
// executed at least once, with or without run.
func (ss *ShadingSystem) FindSymbol(g *ShaderGroup, name string) (*ShaderSymbol, error) {
	if err := ss.enter("FindSymbol"); err != nil {
		return nil, err
	}
	h, err := g.closedHandle()
	if err != nil {
		return nil, ss.fail(err)
	}
	if !g.bound.Load() {
		return nil, ss.fail(fmt.Errorf("%w: %q: group %q not yet bound", ErrSymbolNotFound, name, g.Name()))
	}

	sh := ss.eng.FindSymbol(h, name)
	if sh == 0 {
		return nil, ss.fail(fmt.Errorf("%w: %q in group %q", ErrSymbolNotFound, name, g.Name()))
	}
	return &ShaderSymbol{handle: sh, name: name, group: g, td: ss.eng.SymbolTypeDesc(sh)}, nil
}

// SymbolTypeDesc returns the type of sym as reported by the engine.
func (ss *ShadingSystem) SymbolTypeDesc(sym *ShaderSymbol) typedesc.TypeDesc {
	return ss.eng.SymbolTypeDesc(sym.handle)
}

// SymbolAddress returns where the value of sym lives for the most recent
// execution in ctx, or nil. For the output closure it points at the
// *ClosureColor.
func (ss *ShadingSystem) SymbolAddress(ctx *ShadingContext, sym *ShaderSymbol) unsafe.Pointer {
	if ctx.check() != nil {
		return nil
	}
	return ss.eng.SymbolAddress(ctx.handle, sym.handle)
}

// SymbolFloats copies the float values of sym from the most recent
// execution in ctx. It returns nil when that execution ran a different
// group or sym is not a float type.
func (ss *ShadingSystem) SymbolFloats(ctx *ShadingContext, sym *ShaderSymbol) []float32 {
	if ctx.check() != nil || ctx.group != sym.group || sym.td.BaseType != typedesc.Float {
		return nil
	}
	p := ss.eng.SymbolAddress(ctx.handle, sym.handle)
	if p == nil {
		return nil
	}
	return append([]float32(nil), unsafe.Slice((*float32)(p), sym.td.BaseValues())...)
}

// Close shuts down the ShadeImage workers, warns about leaked thread infos,
// contexts and groups, and closes the engine. Further calls on the session
// return ErrSessionClosed. Close is idempotent and always returns nil.
func (ss *ShadingSystem) Close() error {
	ss.errs.guard("Close")
	ss.closeOnce.Do(func() {
		ss.closed.Store(true)

		ss.poolMu.Lock()
		if ss.pool != nil {
			ss.pool.Close()
			ss.pool = nil
		}
		ss.poolMu.Unlock()

		st := ss.Stats()
		if st.ThreadInfos > 0 || st.Contexts > 0 || st.Groups > 0 {
			ss.errs.reportf(SeverityWarning, "session closed with %d thread infos, %d contexts and %d groups still live",
				st.ThreadInfos, st.Contexts, st.Groups)
		}

		untrackEngine(ss)
		ss.eng.Close()
		Logger().Info("osl: session closed", "id", ss.id,
			"executions", st.Executions, "shaded_points", st.ShadedPoints)
	})
	return nil
}
