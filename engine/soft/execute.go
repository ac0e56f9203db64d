package soft

import (
	"fmt"

	"github.com/gogpu/osl/engine"
)

// Execute binds g to ctx and, when run is true, evaluates its layers in
// order for the point described by sg.
func (e *Engine) Execute(ch engine.ContextHandle, gh engine.GroupHandle, sg *engine.ShaderGlobals, run bool) bool {
	ctx := e.context(ch)
	if ctx == nil {
		e.report(engine.ErrCodeError, "Execute: invalid context")
		return false
	}
	g := e.group(gh)
	if g == nil {
		e.report(engine.ErrCodeError, "Execute: invalid group handle")
		return false
	}
	g.mu.Lock()
	state := g.state
	g.mu.Unlock()
	if state != groupReady {
		e.report(engine.ErrCodeError, fmt.Sprintf("Execute: group %q is not compiled", g.name))
		return false
	}

	clearAll := e.attrs.int("clearmemory") != 0
	ctx.bind(g, clearAll)
	g.bound.Store(true)
	e.stats.binds.Add(1)
	if !run {
		return true
	}
	if sg == nil {
		e.report(engine.ErrCodeError, "Execute: nil shader globals")
		return false
	}

	sg.Context = ch
	sg.Ci = nil
	for r := range g.execRepeat {
		if r > 0 {
			ctx.bind(g, clearAll)
			sg.Ci = nil
		}
		if err := e.run(ctx, g, sg); err != nil {
			e.report(engine.ErrCodeError, fmt.Sprintf("group %q: %v", g.name, err))
			return false
		}
	}
	ctx.ci = sg.Ci

	e.stats.executions.Add(1)
	if e.attrs.int("debug") != 0 {
		slogger().Debug("soft: executed", "group", g.name, "P", sg.P, "repeat", g.execRepeat)
	}
	return true
}

// run evaluates every layer once.
func (e *Engine) run(ctx *shadingContext, g *group, sg *engine.ShaderGlobals) error {
	userdata, _ := sg.Renderer.(engine.UserDataProvider)

	for li, l := range g.layers {
		for _, ci := range g.connsInto[li] {
			c := &g.conns[ci]
			src, dst := &g.slots[c.srcSlot], &g.slots[c.dstSlot]
			copyConnected(ctx.bytes(dst), ctx.bytes(src), dst.td, src.td)
		}

		for _, idx := range l.inputSlots {
			s := &g.slots[idx]
			provided := false
			if s.userdata && userdata != nil {
				provided = userdata.GetUserData(sg, s.name, s.td, ctx.bytes(s))
			}
			if s.required && !s.bound && !provided {
				return fmt.Errorf("%w: %s.%s", ErrRequiredParam, l.name, s.name)
			}
		}

		x := &Exec{e: e, g: g, layer: l, ctx: ctx, sg: sg}
		if err := l.kernel.Eval(x); err != nil {
			return fmt.Errorf("layer %s: %w", l.name, err)
		}
	}
	return nil
}
