package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string, int](4)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a") // b is now oldest
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_Unlimited(t *testing.T) {
	c := New[int, int](0)
	for i := range 1000 {
		c.Set(i, i)
	}
	assert.Equal(t, 1000, c.Len())
	assert.Equal(t, 0, c.Capacity())
}

func TestCache_DeleteClear(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Set("b", 2)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	c.Set("z", 26)
	assert.Equal(t, 1, c.Len())
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string, int](4)
	loads := 0
	load := func() (int, error) {
		loads++
		return 42, nil
	}

	v, hit, err := c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, loads)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestCache_GetOrLoadErrorNotCached(t *testing.T) {
	c := New[string, int](4)
	errLoad := errors.New("parse failed")

	_, _, err := c.GetOrLoad("bad", func() (int, error) { return 0, errLoad })
	assert.ErrorIs(t, err, errLoad)
	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentGetOrLoad(t *testing.T) {
	c := New[int, int](8)
	var loads atomic.Int32

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range 4 {
				_, _, _ = c.GetOrLoad(k, func() (int, error) {
					loads.Add(1)
					return k * k, nil
				})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(4), loads.Load())
	v, ok := c.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 9, v)
}
