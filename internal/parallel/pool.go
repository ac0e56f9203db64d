package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Run after Close.
var ErrPoolClosed = errors.New("parallel: pool closed")

// WorkerPool is a fixed set of goroutines, each locked to its own OS thread
// for its whole life and each owning a worker state of type S.
//
// The state is created by the setup function on the worker's thread before
// the worker accepts any work, and destroyed by the teardown function on the
// same thread when the pool closes. This makes the pool suitable for
// thread-affine resources such as per-thread shading state.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool[S any] struct {
	// workers is the number of worker goroutines.
	workers int

	// workQueues holds per-worker job queues. Every job is delivered to
	// every worker; workers then pull task indices from the shared job.
	workQueues []chan *job[S]

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// mu keeps Close from racing with an in-flight Run.
	mu sync.RWMutex

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// job is one Run call shared by all workers.
type job[S any] struct {
	tasks int
	next  atomic.Int64
	fn    func(s S, next func() (int, bool)) error

	abort   atomic.Bool
	errOnce sync.Once
	err     error
	wg      sync.WaitGroup
}

// pull returns the next task index, or false when tasks are exhausted or the
// job was aborted.
func (j *job[S]) pull() (int, bool) {
	if j.abort.Load() {
		return 0, false
	}
	i := int(j.next.Add(1) - 1)
	if i >= j.tasks {
		return 0, false
	}
	return i, true
}

func (j *job[S]) fail(err error) {
	j.errOnce.Do(func() { j.err = err })
	j.abort.Store(true)
}

// NewWorkerPool starts a pool with the given number of workers. If workers
// is 0 or negative, GOMAXPROCS is used. setup runs once per worker on that
// worker's locked OS thread; if any setup fails, the workers that did start
// are torn down and the first setup error is returned.
func NewWorkerPool[S any](
	workers int,
	setup func(id int) (S, error),
	teardown func(id int, s S),
) (*WorkerPool[S], error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool[S]{
		workers:    workers,
		workQueues: make([]chan *job[S], workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan *job[S], 4)
	}

	ready := make(chan error, workers)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i, setup, teardown, ready)
	}

	var firstErr error
	for range workers {
		if err := <-ready; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.running.Store(true)
	if firstErr != nil {
		p.Close()
		return nil, firstErr
	}
	return p, nil
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool[S]) worker(
	id int,
	setup func(int) (S, error),
	teardown func(int, S),
	ready chan<- error,
) {
	defer p.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	state, err := setup(id)
	ready <- err
	if err != nil {
		return
	}
	if teardown != nil {
		defer teardown(id, state)
	}

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			return
		case j := <-myQueue:
			p.runJob(j, state)
		}
	}
}

func (p *WorkerPool[S]) runJob(j *job[S], state S) {
	defer j.wg.Done()
	if err := j.fn(state, j.pull); err != nil {
		j.fail(err)
	}
}

// Run hands fn to every worker and waits until all of them return. Each
// worker calls next to obtain task indices in [0, tasks) until next reports
// false. The first error returned by any worker aborts the job: next then
// reports false everywhere, and Run returns that error.
func (p *WorkerPool[S]) Run(tasks int, fn func(s S, next func() (int, bool)) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return ErrPoolClosed
	}
	if tasks <= 0 {
		return nil
	}

	j := &job[S]{tasks: tasks, fn: fn}
	j.wg.Add(p.workers)
	for _, q := range p.workQueues {
		q <- j
	}
	j.wg.Wait()
	return j.err
}

// Close stops the workers, running teardown on each worker's thread, and
// waits for them to exit. In-flight Run calls complete first.
// Close is safe to call multiple times.
func (p *WorkerPool[S]) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool[S]) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool[S]) IsRunning() bool {
	return p.running.Load()
}
