package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/osl/internal/thread"
)

func nopSetup(id int) (int, error) { return id, nil }

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool, err := NewWorkerPool(4, nopSetup, nil)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool, err := NewWorkerPool(0, nopSetup, nil)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

func TestWorkerPool_SetupFailure(t *testing.T) {
	errSetup := errors.New("no state")
	var torn atomic.Int32

	pool, err := NewWorkerPool(4,
		func(id int) (int, error) {
			if id == 2 {
				return 0, errSetup
			}
			return id, nil
		},
		func(int, int) { torn.Add(1) },
	)
	if !errors.Is(err, errSetup) {
		t.Fatalf("err = %v, want %v", err, errSetup)
	}
	if pool != nil {
		t.Error("pool should be nil on setup failure")
	}
	if torn.Load() != 3 {
		t.Errorf("teardown ran %d times, want 3", torn.Load())
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestWorkerPool_RunAllTasks(t *testing.T) {
	pool, err := NewWorkerPool(4, nopSetup, nil)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	defer pool.Close()

	const numTasks = 1000
	seen := make([]atomic.Int32, numTasks)

	err = pool.Run(numTasks, func(_ int, next func() (int, bool)) error {
		for i, ok := next(); ok; i, ok = next() {
			seen[i].Add(1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range seen {
		if seen[i].Load() != 1 {
			t.Fatalf("task %d ran %d times", i, seen[i].Load())
		}
	}
}

func TestWorkerPool_RunZeroTasks(t *testing.T) {
	pool, err := NewWorkerPool(2, nopSetup, nil)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	defer pool.Close()

	called := false
	err = pool.Run(0, func(int, func() (int, bool)) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Errorf("Run(0) err=%v called=%v", err, called)
	}
}

func TestWorkerPool_RunAbortsOnError(t *testing.T) {
	pool, err := NewWorkerPool(4, nopSetup, nil)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	defer pool.Close()

	errTask := errors.New("task failed")
	var ran atomic.Int64

	err = pool.Run(100000, func(_ int, next func() (int, bool)) error {
		for i, ok := next(); ok; i, ok = next() {
			ran.Add(1)
			if i == 10 {
				return errTask
			}
		}
		return nil
	})
	if !errors.Is(err, errTask) {
		t.Fatalf("Run err = %v, want %v", err, errTask)
	}
	if ran.Load() >= 100000 {
		t.Errorf("all %d tasks ran despite abort", ran.Load())
	}
}

func TestWorkerPool_StateIsThreadAffine(t *testing.T) {
	if !thread.Supported() {
		t.Skip("thread ids unavailable on this platform")
	}

	type state struct{ tid thread.ID }
	pool, err := NewWorkerPool(3,
		func(int) (*state, error) { return &state{tid: thread.Current()}, nil },
		func(_ int, s *state) {
			if thread.Current() != s.tid {
				panic("teardown on wrong thread")
			}
		},
	)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	var mismatches atomic.Int32
	for range 5 {
		err = pool.Run(64, func(s *state, next func() (int, bool)) error {
			for _, ok := next(); ok; _, ok = next() {
				if thread.Current() != s.tid {
					mismatches.Add(1)
				}
				runtime.Gosched()
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	pool.Close()

	if mismatches.Load() != 0 {
		t.Errorf("%d tasks ran off their worker's thread", mismatches.Load())
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseRunsTeardown(t *testing.T) {
	var torn atomic.Int32
	pool, err := NewWorkerPool(3, nopSetup, func(int, int) { torn.Add(1) })
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	pool.Close()
	pool.Close() // idempotent

	if torn.Load() != 3 {
		t.Errorf("teardown ran %d times, want 3", torn.Load())
	}
	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
	if err := pool.Run(1, func(int, func() (int, bool)) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Run after Close err = %v, want ErrPoolClosed", err)
	}
}

func TestWorkerPool_ConcurrentRuns(t *testing.T) {
	pool, err := NewWorkerPool(2, nopSetup, nil)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	defer pool.Close()

	var total atomic.Int64
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Run(50, func(_ int, next func() (int, bool)) error {
				for _, ok := next(); ok; _, ok = next() {
					total.Add(1)
				}
				return nil
			})
		}()
	}
	wg.Wait()

	if total.Load() != 200 {
		t.Errorf("total = %d, want 200", total.Load())
	}
}
