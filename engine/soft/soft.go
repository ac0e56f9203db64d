package soft

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/internal/cache"
	"github.com/gogpu/osl/typedesc"
)

// Engine is the soft implementation of engine.Engine.
type Engine struct {
	rs   engine.RendererServices
	eh   engine.ErrorHandler
	opts options

	attrs *attrStore

	closureMu    sync.RWMutex
	closures     map[string]*closureDecl
	closuresByID map[int32]*closureDecl

	masters *cache.Cache[string, *Master]

	// mu guards groups, threadInfos, contexts and symbols.
	mu          sync.RWMutex
	groups      map[engine.GroupHandle]*group
	threadInfos map[engine.ThreadInfoHandle]*threadInfo
	contexts    map[engine.ContextHandle]*shadingContext
	symbols     map[engine.SymbolHandle]symbolRef

	nextHandle atomic.Uint64
	stats      stats

	reportMu sync.Mutex
	reported map[string]struct{}

	closed atomic.Bool
}

// Compile-time interface check.
var _ engine.Engine = (*Engine)(nil)

func init() {
	engine.Register(engine.NameSoft, Factory())
}

// New creates an engine that calls back into rs and sends diagnostics to
// eh. A nil eh logs through the package logger.
func New(rs engine.RendererServices, eh engine.ErrorHandler, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		rs:           rs,
		eh:           eh,
		opts:         o,
		attrs:        newAttrStore(sessionAttrs),
		closures:     make(map[string]*closureDecl),
		closuresByID: make(map[int32]*closureDecl),
		masters:      cache.New[string, *Master](o.cacheSize),
		groups:       make(map[engine.GroupHandle]*group),
		threadInfos:  make(map[engine.ThreadInfoHandle]*threadInfo),
		contexts:     make(map[engine.ContextHandle]*shadingContext),
		symbols:      make(map[engine.SymbolHandle]symbolRef),
		reported:     make(map[string]struct{}),
	}
	if o.searchPath != "" {
		e.attrs.set("searchpath:shader", typedesc.TypeString, engine.EncodeStrings(o.searchPath))
	}

	slogger().Debug("soft: engine created", "kernels", len(stockKernels)+len(o.kernels))
	return e
}

// Factory returns an engine.Factory creating soft engines with opts.
func Factory(opts ...Option) engine.Factory {
	return func(rs engine.RendererServices, eh engine.ErrorHandler) (engine.Engine, error) {
		return New(rs, eh, opts...), nil
	}
}

// report sends a diagnostic to the error handler. With "error_repeats" set
// to 0, an error or warning identical to an earlier one is dropped.
func (e *Engine) report(code engine.ErrCode, msg string) {
	switch code {
	case engine.ErrCodeError, engine.ErrCodeSevere:
		e.stats.errors.Add(1)
	case engine.ErrCodeWarning:
		e.stats.warnings.Add(1)
	}

	if (code == engine.ErrCodeError || code == engine.ErrCodeWarning) && e.attrs.int("error_repeats") == 0 {
		key := code.String() + msg
		e.reportMu.Lock()
		_, seen := e.reported[key]
		e.reported[key] = struct{}{}
		e.reportMu.Unlock()
		if seen {
			return
		}
	}

	if e.eh != nil {
		e.eh(code, msg)
		return
	}
	switch code {
	case engine.ErrCodeError, engine.ErrCodeSevere:
		slogger().Error(msg)
	case engine.ErrCodeWarning:
		slogger().Warn(msg)
	case engine.ErrCodeDebug:
		slogger().Debug(msg)
	default:
		slogger().Info(msg)
	}
}

// kernel returns the kernel for a master, preferring ones added with
// WithKernel.
func (e *Engine) kernel(name string) (Kernel, bool) {
	if k, ok := e.opts.kernels[name]; ok {
		return k, true
	}
	k, ok := stockKernels[name]
	return k, ok
}

func (e *Engine) noNoise() bool {
	return e.attrs.int("no_noise") != 0
}

// Close releases the engine. Statistics are reported when
// "statistics:level" is above 0, and leaked objects are warned about.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}

	if e.attrs.int("statistics:level") > 0 {
		e.report(engine.ErrCodeMessage, e.statsReport())
	}

	e.mu.Lock()
	groups, threads, contexts := len(e.groups), len(e.threadInfos), len(e.contexts)
	clear(e.groups)
	clear(e.threadInfos)
	clear(e.contexts)
	clear(e.symbols)
	e.mu.Unlock()

	if groups+threads+contexts > 0 {
		e.report(engine.ErrCodeWarning, fmt.Sprintf(
			"engine closed with %d groups, %d thread infos and %d contexts still live", groups, threads, contexts))
	}
	e.masters.Clear()
	slogger().Debug("soft: engine closed")
}
