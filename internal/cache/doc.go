// Package cache provides a generic, thread-safe LRU cache.
//
// The soft engine keeps parsed shader masters in a Cache keyed by shader
// name, so building many groups from the same few masters parses each
// declaration once:
//
//	masters := cache.New[string, *Master](64)
//	m, hit, err := masters.GetOrLoad("noisetest", load)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
