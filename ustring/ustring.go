// Package ustring provides process-lifetime interned strings.
//
// A Ustring is a 4-byte handle into an append-only table, so it can be stored
// inside plain byte buffers (closure parameter records, attribute payloads,
// symbol heaps) without hiding pointers from the garbage collector. Interned
// strings are never freed; equal strings always yield equal handles.
package ustring

import "sync"

// Ustring is an interned string handle. The zero value is the empty string.
type Ustring uint32

var (
	mu      sync.RWMutex
	strs    = []string{""}
	handles = map[string]Ustring{"": 0}
)

// New interns s and returns its handle.
func New(s string) Ustring {
	mu.RLock()
	u, ok := handles[s]
	mu.RUnlock()
	if ok {
		return u
	}

	mu.Lock()
	defer mu.Unlock()
	if u, ok := handles[s]; ok {
		return u
	}
	u = Ustring(len(strs))
	strs = append(strs, s)
	handles[s] = u
	return u
}

// Lookup returns the handle of s if it has been interned.
func Lookup(s string) (Ustring, bool) {
	mu.RLock()
	defer mu.RUnlock()
	u, ok := handles[s]
	return u, ok
}

// String returns the interned string. Unknown handles yield "".
func (u Ustring) String() string {
	mu.RLock()
	defer mu.RUnlock()
	if int(u) < len(strs) {
		return strs[u]
	}
	return ""
}

// Empty reports whether u is the empty string.
func (u Ustring) Empty() bool { return u == 0 }

// Len returns the number of interned strings, including the empty string.
func Len() int {
	mu.RLock()
	defer mu.RUnlock()
	return len(strs)
}
