package soft

import (
	"log/slog"
	"strings"
)

// Defaults.
const (
	// DefaultMaxContexts is the number of contexts one thread info may have
	// checked out at once.
	DefaultMaxContexts = 64

	// DefaultMasterCacheSize is the number of parsed masters kept in memory.
	DefaultMasterCacheSize = 64
)

// options configures an Engine.
type options struct {
	searchPath  string
	kernels     map[string]Kernel
	sources     map[string]string
	maxContexts int
	cacheSize   int
}

// Option configures an Engine.
type Option func(*options)

func defaultOptions() options {
	return options{
		kernels:     make(map[string]Kernel),
		sources:     make(map[string]string),
		maxContexts: DefaultMaxContexts,
		cacheSize:   DefaultMasterCacheSize,
	}
}

// WithSearchPath sets the initial value of the "searchpath:shader"
// attribute.
func WithSearchPath(dirs ...string) Option {
	return func(o *options) {
		o.searchPath = strings.Join(dirs, ":")
	}
}

// WithKernel adds a kernel, replacing any stock kernel of the same name.
func WithKernel(k Kernel) Option {
	return func(o *options) {
		o.kernels[k.Name] = k
	}
}

// WithShaderSource registers the WGSL master declaration for a shader name.
// Registered sources are consulted after the search path and before the
// stock library.
func WithShaderSource(name, wgsl string) Option {
	return func(o *options) {
		o.sources[name] = wgsl
	}
}

// WithMaxContexts limits how many contexts one thread info may have
// checked out at once. Values below 1 keep the default.
func WithMaxContexts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxContexts = n
		}
	}
}

// WithMasterCacheSize sets the number of parsed masters kept in memory.
// 0 means unlimited.
func WithMasterCacheSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.cacheSize = n
		}
	}
}

// WithLogger sets the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(*options) {
		setLogger(l)
	}
}
