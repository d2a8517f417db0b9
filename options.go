package keel

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Option configures an Application.
type Option func(*appOptions)

type appOptions struct {
	catalog       *Catalog
	logger        *zap.Logger
	console       *Console
	metrics       *Metrics
	router        chi.Router
	systemModules []string
	programName   string
}

// WithCatalog sets the catalog used to resolve module and factory references.
// The base module is registered into it when missing.
func WithCatalog(catalog *Catalog) Option {
	return func(o *appOptions) {
		o.catalog = catalog
	}
}

// WithLogger sets the logger instead of building one from the config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// WithConsole sets the console used for command output.
func WithConsole(console *Console) Option {
	return func(o *appOptions) {
		o.console = console
	}
}

// WithMetrics sets the metrics collector. When unset, one is created if
// metrics_enabled is true in the config.
func WithMetrics(metrics *Metrics) Option {
	return func(o *appOptions) {
		o.metrics = metrics
	}
}

// WithRouter sets the router handed to module build hooks.
func WithRouter(router chi.Router) Option {
	return func(o *appOptions) {
		o.router = router
	}
}

// WithSystemModules replaces the module references loaded before the
// caller-supplied ones. The default is the base module only.
func WithSystemModules(refs ...string) Option {
	return func(o *appOptions) {
		o.systemModules = append([]string(nil), refs...)
	}
}

// WithProgramName sets the program name shown in usage lines.
func WithProgramName(name string) Option {
	return func(o *appOptions) {
		o.programName = name
	}
}
