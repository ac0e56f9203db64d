package thread

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent_StableWhileLocked(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	a := Current()
	runtime.Gosched()
	b := Current()
	assert.Equal(t, a, b)
	if Supported() {
		assert.NotZero(t, a)
	}
}

func TestCurrent_DistinctLockedThreads(t *testing.T) {
	if !Supported() {
		t.Skip("thread ids not available on this platform")
	}

	ids := make(chan ID, 2)
	release := make(chan struct{})
	for range 2 {
		go func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			ids <- Current()
			<-release
		}()
	}
	a, b := <-ids, <-ids
	close(release)
	assert.NotEqual(t, a, b)
}
