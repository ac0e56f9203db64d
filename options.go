package osl

import (
	"log/slog"

	"github.com/gogpu/osl/engine"
)

// Option configures a ShadingSystem during creation.
//
// Example:
//
//	// Default engine, diagnostics to the package logger
//	ss, err := osl.New(renderer)
//
//	// Named engine, custom error handler
//	ss, err := osl.New(renderer,
//	    osl.WithEngine(engine.NameSoft),
//	    osl.WithErrorHandler(myHandler),
//	)
type Option func(*options)

// options holds optional configuration for ShadingSystem creation.
type options struct {
	engineName string
	factory    engine.Factory
	handler    ErrorHandler
	verbosity  Verbosity
	threads    int
}

// defaultOptions returns the default session options.
func defaultOptions() options {
	return options{
		handler:   nil, // Will be set to the logging handler if nil
		verbosity: VerbosityNormal,
		threads:   0, // GOMAXPROCS
	}
}

// WithEngine selects a registered engine by name. Without WithEngine or
// WithEngineFactory the engine registry's default is used.
func WithEngine(name string) Option {
	return func(o *options) {
		o.engineName = name
	}
}

// WithEngineFactory injects the engine factory directly, bypassing the
// registry. It takes precedence over WithEngine.
func WithEngineFactory(f engine.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithErrorHandler sets the callback that receives engine and session
// diagnostics.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithVerbosity sets which severities reach the error handler.
func WithVerbosity(v Verbosity) Option {
	return func(o *options) {
		o.verbosity = v
	}
}

// WithThreads sets the number of ShadeImage workers. Values below 1 mean
// GOMAXPROCS.
func WithThreads(n int) Option {
	return func(o *options) {
		o.threads = max(n, 0)
	}
}

// WithLogger is shorthand for calling SetLogger before New.
func WithLogger(l *slog.Logger) Option {
	return func(*options) {
		SetLogger(l)
	}
}
