package osl

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/gogpu/osl/engine"
	"github.com/gogpu/osl/internal/thread"
)

// noCopy may be embedded in structs that must not be copied after first
// use. See go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ThreadInfo is the per-thread engine state of one worker thread.
//
// CreateThreadInfo locks the calling goroutine to its OS thread until
// DestroyThreadInfo. A ThreadInfo and the contexts checked out from it
// must only be used from that thread; using them anywhere else panics.
type ThreadInfo struct {
	noCopy noCopy

	handle    engine.ThreadInfoHandle
	thread    thread.ID
	contexts  int
	destroyed bool
}

// ShadingContext is the execution state for running shader groups on one
// thread. Check one out with GetContext and return it with ReleaseContext.
type ShadingContext struct {
	noCopy noCopy

	handle   engine.ContextHandle
	ti       *ThreadInfo
	released bool

	// group is the group most recently executed in this context.
	group *ShaderGroup
}

func checkThread(owner thread.ID, what string) {
	if thread.Supported() && thread.Current() != owner {
		panic(fmt.Sprintf("osl: %s used from a thread other than its creator", what))
	}
}

// check validates a context for use on the calling thread.
func (c *ShadingContext) check() error {
	if c == nil {
		return fmt.Errorf("%w: nil context", ErrContextUnavailable)
	}
	if c.released {
		return ErrContextReleased
	}
	checkThread(c.ti.thread, "ShadingContext")
	return nil
}

// threadInfos maps OS threads to the live ThreadInfo created on them.
type threadInfos struct {
	mu   sync.Mutex
	byID map[thread.ID]*ThreadInfo
}

// lookup returns the live ThreadInfo of thread id, or nil.
func (t *threadInfos) lookup(id thread.ID) *ThreadInfo {
	if !thread.Supported() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

func (t *threadInfos) add(ti *ThreadInfo) {
	if !thread.Supported() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byID == nil {
		t.byID = make(map[thread.ID]*ThreadInfo)
	}
	t.byID[ti.thread] = ti
}

func (t *threadInfos) remove(ti *ThreadInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byID[ti.thread] == ti {
		delete(t.byID, ti.thread)
	}
}

// CreateThreadInfo allocates per-thread state for the calling goroutine and
// locks it to its current OS thread. A thread has at most one ThreadInfo
// per session; creating a second one before destroying the first panics.
func (ss *ShadingSystem) CreateThreadInfo() (*ThreadInfo, error) {
	if err := ss.enter("CreateThreadInfo"); err != nil {
		return nil, err
	}
	return ss.newThreadInfo()
}

func (ss *ShadingSystem) newThreadInfo() (*ThreadInfo, error) {
	runtime.LockOSThread()
	id := thread.Current()
	if ss.threads.lookup(id) != nil {
		runtime.UnlockOSThread()
		panic("osl: CreateThreadInfo called twice on one thread")
	}

	h := ss.eng.CreateThreadInfo()
	if h == 0 {
		runtime.UnlockOSThread()
		return nil, ss.fail(ErrThreadInfoCreationFailed)
	}
	ti := &ThreadInfo{handle: h, thread: id}
	ss.threads.add(ti)
	ss.threadInfosLive.Add(1)
	return ti, nil
}

// DestroyThreadInfo releases ti and unlocks the OS thread. Every context
// checked out from ti must have been released.
func (ss *ShadingSystem) DestroyThreadInfo(ti *ThreadInfo) error {
	if err := ss.enter("DestroyThreadInfo"); err != nil {
		return err
	}
	return ss.destroyThreadInfo(ti)
}

func (ss *ShadingSystem) destroyThreadInfo(ti *ThreadInfo) error {
	if ti == nil || ti.destroyed {
		return ss.fail(ErrThreadInfoDestroyed)
	}
	checkThread(ti.thread, "ThreadInfo")
	if ti.contexts > 0 {
		return ss.fail(fmt.Errorf("%w: %d", ErrContextsOutstanding, ti.contexts))
	}

	ss.eng.DestroyThreadInfo(ti.handle)
	ss.threads.remove(ti)
	ti.destroyed = true
	ss.threadInfosLive.Add(-1)
	runtime.UnlockOSThread()
	return nil
}

// GetContext checks out a shading context bound to ti.
func (ss *ShadingSystem) GetContext(ti *ThreadInfo) (*ShadingContext, error) {
	if err := ss.enter("GetContext"); err != nil {
		return nil, err
	}
	return ss.getContext(ti)
}

func (ss *ShadingSystem) getContext(ti *ThreadInfo) (*ShadingContext, error) {
	if ti == nil || ti.destroyed {
		return nil, ss.fail(fmt.Errorf("%w: %w", ErrContextUnavailable, ErrThreadInfoDestroyed))
	}
	checkThread(ti.thread, "ThreadInfo")

	h := ss.eng.GetContext(ti.handle)
	if h == 0 {
		return nil, ErrContextUnavailable
	}
	ti.contexts++
	ss.contextsLive.Add(1)
	return &ShadingContext{handle: h, ti: ti}, nil
}

// ReleaseContext returns ctx to the engine. Any later use of ctx fails with
// ErrContextReleased.
func (ss *ShadingSystem) ReleaseContext(ctx *ShadingContext) error {
	if err := ss.enter("ReleaseContext"); err != nil {
		return err
	}
	return ss.releaseContext(ctx)
}

func (ss *ShadingSystem) releaseContext(ctx *ShadingContext) error {
	if err := ctx.check(); err != nil {
		return ss.fail(err)
	}
	ss.eng.ReleaseContext(ctx.handle)
	ctx.released = true
	ctx.group = nil
	ctx.ti.contexts--
	ss.contextsLive.Add(-1)
	return nil
}

// WithContext checks out a context for the calling goroutine, runs fn, and
// releases the context whatever fn returns. It uses the ThreadInfo the
// calling thread already holds, or creates one for the duration of the
// call.
func (ss *ShadingSystem) WithContext(fn func(ctx *ShadingContext) error) (err error) {
	if err := ss.enter("WithContext"); err != nil {
		return err
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ti := ss.threads.lookup(thread.Current())
	if ti == nil {
		if ti, err = ss.newThreadInfo(); err != nil {
			return err
		}
		defer func() {
			if !ti.destroyed {
				err = errors.Join(err, ss.destroyThreadInfo(ti))
			}
		}()
	}

	ctx, err := ss.getContext(ti)
	if err != nil {
		return err
	}
	defer func() {
		if !ctx.released {
			err = errors.Join(err, ss.releaseContext(ctx))
		}
	}()

	return fn(ctx)
}
