package soft

import (
	"fmt"

	"github.com/gogpu/osl/engine"
)

// threadInfo is per-thread engine state. Its contexts count is guarded by
// Engine.mu.
type threadInfo struct {
	handle   engine.ThreadInfoHandle
	contexts int
}

// shadingContext holds the symbol heap of the group it last executed. A
// context is used by one thread at a time.
type shadingContext struct {
	handle engine.ContextHandle
	ti     *threadInfo

	heap  []byte
	group *group
	ci    *engine.ClosureColor
}

// bind lays g's initial values into the heap, reusing the allocation when
// it is large enough.
func (c *shadingContext) bind(g *group, clearAll bool) {
	if cap(c.heap) < g.heapSize {
		c.heap = engine.AlignedBytes(g.heapSize)
	} else {
		c.heap = c.heap[:g.heapSize]
		if clearAll {
			clear(c.heap)
		}
	}
	for i := range g.slots {
		s := &g.slots[i]
		copy(c.heap[s.offset:s.offset+s.size], s.init)
	}
	c.group = g
	c.ci = nil
}

// bytes returns the heap bytes of slot s.
func (c *shadingContext) bytes(s *symbolSlot) []byte {
	return c.heap[s.offset : s.offset+s.size : s.offset+s.size]
}

// CreateThreadInfo allocates per-thread state.
func (e *Engine) CreateThreadInfo() engine.ThreadInfoHandle {
	ti := &threadInfo{handle: engine.ThreadInfoHandle(e.nextHandle.Add(1))}

	e.mu.Lock()
	e.threadInfos[ti.handle] = ti
	e.mu.Unlock()

	e.stats.threadInfosLive.Add(1)
	slogger().Debug("soft: thread info created", "handle", uint64(ti.handle))
	return ti.handle
}

// DestroyThreadInfo releases per-thread state and any contexts still
// checked out from it.
func (e *Engine) DestroyThreadInfo(th engine.ThreadInfoHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ti, ok := e.threadInfos[th]
	if !ok {
		return
	}
	for h, c := range e.contexts {
		if c.ti == ti {
			delete(e.contexts, h)
			e.stats.contextsLive.Add(-1)
		}
	}
	delete(e.threadInfos, th)
	e.stats.threadInfosLive.Add(-1)
	slogger().Debug("soft: thread info destroyed", "handle", uint64(th))
}

// GetContext checks out a context bound to th. It returns the null handle
// when th is invalid or already has the maximum number of contexts.
func (e *Engine) GetContext(th engine.ThreadInfoHandle) engine.ContextHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	ti, ok := e.threadInfos[th]
	if !ok {
		e.report(engine.ErrCodeError, "GetContext: invalid thread info")
		return 0
	}
	if ti.contexts >= e.opts.maxContexts {
		e.report(engine.ErrCodeError, fmt.Sprintf("GetContext: thread info already has %d contexts", ti.contexts))
		return 0
	}

	c := &shadingContext{handle: engine.ContextHandle(e.nextHandle.Add(1)), ti: ti}
	e.contexts[c.handle] = c
	ti.contexts++
	e.stats.contextsLive.Add(1)
	return c.handle
}

// ReleaseContext returns a context. The handle is invalid afterwards.
func (e *Engine) ReleaseContext(ch engine.ContextHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.contexts[ch]
	if !ok {
		return
	}
	c.ti.contexts--
	delete(e.contexts, ch)
	e.stats.contextsLive.Add(-1)
}

func (e *Engine) context(ch engine.ContextHandle) *shadingContext {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.contexts[ch]
}
