package soft

import (
	"unsafe"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/typedesc"
)

// ciSlot is the pseudo-slot of the output closure.
const ciSlot = -1

// symbolRef locates a symbol within a group.
type symbolRef struct {
	g    *group
	slot int
}

// FindSymbol resolves "sym", "layer.sym" or "Ci" in a group that has been
// executed at least once. It returns the null handle otherwise.
func (e *Engine) FindSymbol(gh engine.GroupHandle, name string) engine.SymbolHandle {
	g := e.group(gh)
	if g == nil || !g.bound.Load() {
		return 0
	}

	slot := ciSlot
	if name != "Ci" {
		if slot = g.findSlot(name, false); slot < 0 {
			return 0
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := g.symbolHandles[slot]; ok {
		return h
	}
	h := engine.SymbolHandle(e.nextHandle.Add(1))
	g.symbolHandles[slot] = h
	e.symbols[h] = symbolRef{g: g, slot: slot}
	return h
}

// SymbolTypeDesc returns the symbol's type. The output closure and unknown
// handles report typedesc.TypeUnknown.
func (e *Engine) SymbolTypeDesc(sh engine.SymbolHandle) typedesc.TypeDesc {
	e.mu.RLock()
	ref, ok := e.symbols[sh]
	e.mu.RUnlock()
	if !ok || ref.slot == ciSlot {
		return typedesc.TypeUnknown
	}
	return ref.g.slots[ref.slot].td
}

// SymbolAddress returns the address of the symbol's value in ctx, or nil
// when ctx last executed a different group. The output closure's address
// holds a *engine.ClosureColor.
func (e *Engine) SymbolAddress(ch engine.ContextHandle, sh engine.SymbolHandle) unsafe.Pointer {
	e.mu.RLock()
	ref, ok := e.symbols[sh]
	ctx := e.contexts[ch]
	e.mu.RUnlock()
	if !ok || ctx == nil || ctx.group != ref.g {
		return nil
	}
	if ref.slot == ciSlot {
		return unsafe.Pointer(&ctx.ci)
	}
	b := ctx.bytes(&ref.g.slots[ref.slot])
	return unsafe.Pointer(&b[0])
}
