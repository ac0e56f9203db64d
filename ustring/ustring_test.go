package ustring

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Interns(t *testing.T) {
	a := New("microfacet")
	b := New("microfacet")
	c := New("diffuse")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "microfacet", a.String())
	assert.Equal(t, "diffuse", c.String())
}

func TestEmpty(t *testing.T) {
	var u Ustring
	assert.True(t, u.Empty())
	assert.Equal(t, "", u.String())
	assert.Equal(t, Ustring(0), New(""))
}

func TestLookup(t *testing.T) {
	_, ok := Lookup("never-interned-by-anyone")
	assert.False(t, ok)

	u := New("searchpath:shader")
	got, ok := Lookup("searchpath:shader")
	require.True(t, ok)
	assert.Equal(t, u, got)
}

func TestUnknownHandle(t *testing.T) {
	assert.Equal(t, "", Ustring(1<<31).String())
}

func TestNew_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	results := make([][]Ustring, 8)
	for w := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				results[w] = append(results[w], New(fmt.Sprintf("concurrent-%d", i)))
			}
		}()
	}
	wg.Wait()

	for w := 1; w < len(results); w++ {
		assert.Equal(t, results[0], results[w])
	}
	before := Len()
	New("concurrent-0")
	assert.Equal(t, before, Len())
}
