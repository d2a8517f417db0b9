package keel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Application composes the container, modules, services and events and
// hands control to the CLI dispatcher or an HTTP server.
//
// The build sequence runs once: factories, module loading, service map
// aggregation, event registration and finally every module build hook.
// Any failure aborts the build; a partially built application must not be
// used.
//
// Example:
//
//	catalog := keel.NewCatalog()
//	catalog.MustRegisterModule("billing", billing.New)
//
//	app, err := keel.New(cfg, keel.WithCatalog(catalog))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	if err := app.Build([]string{"billing"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	code, err := app.Run(ctx, os.Args[1:])
type Application struct {
	id            string
	program       string
	container     *Container
	config        *Config
	catalog       *Catalog
	logger        *zap.Logger
	console       *Console
	metrics       *Metrics
	signals       *SignalManager
	router        chi.Router
	systemModules []string

	mu       sync.Mutex
	built    bool
	closed   bool
	registry *Registry
	services *ServiceLocator
	events   *EventManager

	initMu      sync.Mutex
	initPending bool
	initErr     error
}

// New creates an Application around cfg and populates the container with
// the config, console, logger, metrics, signal manager and router.
func New(cfg *Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = NewConfig(nil)
	}

	o := &appOptions{
		systemModules: []string{BaseModuleRef},
		programName:   filepath.Base(os.Args[0]),
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = NewLogger(cfg)
		if err != nil {
			return nil, err
		}
	}

	catalog := o.catalog
	if catalog == nil {
		catalog = NewCatalog()
	}
	if _, ok := catalog.Module(BaseModuleRef); !ok {
		if err := catalog.RegisterModule(BaseModuleRef, NewBaseModule); err != nil {
			return nil, err
		}
	}

	console := o.console
	if console == nil {
		console = NewTerminalConsole()
	}

	metrics := o.metrics
	if metrics == nil && cfg.Bool(CfgMetricsEnabled, false) {
		metrics = NewMetrics("")
	}

	router := o.router
	if router == nil {
		router = chi.NewRouter()
	}

	app := &Application{
		id:            uuid.NewString(),
		program:       o.programName,
		container:     NewContainer(),
		config:        cfg,
		catalog:       catalog,
		logger:        logger,
		console:       console,
		metrics:       metrics,
		router:        router,
		systemModules: o.systemModules,
	}
	app.signals = NewSignalManager(app.container)

	c := app.container
	c.Add(KeyConfig, cfg)
	c.Add(KeyApp, app)
	c.Add(KeyConsole, console)
	c.Add(KeyLogger, logger)
	c.Add(KeySignals, app.signals)
	c.Add(KeyRouter, router)
	if metrics != nil {
		c.Add(KeyMetrics, metrics)
	}

	return app, nil
}

// Build runs the factories, loads modules and wires services and events,
// then runs every module build hook. When modules or factories are empty,
// the "modules" and "factories" config lists are used.
func (a *Application) Build(modules []string, factories ...any) error {
	if err := a.wire(modules, factories); err != nil {
		return err
	}
	if err := a.Init(); err != nil {
		return BuildError{Phase: "init", Cause: err}
	}
	return nil
}

func (a *Application) wire(modules []string, factories []any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAppClosed
	}
	if a.built {
		return ErrAlreadyBuilt
	}

	if len(modules) == 0 {
		modules = a.config.Strings(CfgModules)
	}
	if len(factories) == 0 {
		for _, ref := range a.config.Strings(CfgFactories) {
			factories = append(factories, ref)
		}
	}

	if err := RunFactories(a.container, a.catalog, factories); err != nil {
		return BuildError{Phase: "factories", Cause: err}
	}

	registry := NewRegistry(a.container, a.catalog, a.systemModules...)
	if err := registry.Load(modules); err != nil {
		return BuildError{Phase: "modules", Cause: err}
	}
	a.container.Add(KeyModules, registry)

	serviceMap, err := registry.ServiceMap()
	if err != nil {
		return BuildError{Phase: "services", Cause: err}
	}
	services := NewServiceLocator(a.container, serviceMap)
	a.container.Add(KeyServices, services)

	events := NewEventManager(a.container)
	if err := registry.RegisterEvents(events); err != nil {
		return BuildError{Phase: "events", Cause: err}
	}
	a.container.Add(KeyEvents, events)

	a.registry = registry
	a.services = services
	a.events = events
	a.built = true

	a.initMu.Lock()
	a.initPending = true
	a.initMu.Unlock()

	a.logger.Info("application wired",
		zap.String("app", a.id),
		zap.Strings("modules", registry.Refs()),
		zap.Int("services", len(serviceMap)),
		zap.Strings("events", events.Events()),
	)
	return nil
}

// Init runs every module build hook exactly once for the lifetime of the
// application. Later calls return the result of the first one. It is safe
// to call from concurrent request handlers.
func (a *Application) Init() error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if !a.initPending {
		if a.registry == nil {
			return ErrNotBuilt
		}
		return a.initErr
	}
	a.initPending = false

	for _, module := range a.registry.Modules() {
		if err := module.Build(a); err != nil {
			a.initErr = fmt.Errorf("module %q: %w", module.Name(), err)
			return a.initErr
		}
		a.logger.Debug("module built", zap.String("module", module.Name()))
	}
	return nil
}

// Run dispatches argv to the matching command.
// See Dispatcher.Dispatch for the meaning of the results.
func (a *Application) Run(ctx context.Context, argv []string) (int, error) {
	a.mu.Lock()
	registry := a.registry
	a.mu.Unlock()

	if registry == nil {
		return ExitFailure, ErrNotBuilt
	}
	if err := a.Init(); err != nil {
		return ExitFailure, err
	}

	return NewDispatcher(a.container, registry, a.program).Dispatch(ctx, argv)
}

// Close stops signal delivery, disposes constructed services most recent
// first, then disposes Disposable container entries in reverse order.
func (a *Application) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.signals.Stop()

	var errs []error
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	lm := newLifecycleManager()
	for _, e := range a.container.entriesInOrder() {
		switch e.key {
		case KeyApp, KeyContainer, KeyServices:
			continue
		}
		lm.track(e.value)
	}
	if err := lm.dispose(); err != nil {
		errs = append(errs, err)
	}

	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// ID returns the unique identifier of the application.
func (a *Application) ID() string { return a.id }

// ProgramName returns the program name shown in usage lines.
func (a *Application) ProgramName() string { return a.program }

func (a *Application) Container() *Container { return a.container }

func (a *Application) Config() *Config { return a.config }

func (a *Application) Catalog() *Catalog { return a.catalog }

func (a *Application) Logger() *zap.Logger { return a.logger }

func (a *Application) Console() *Console { return a.console }

func (a *Application) Metrics() *Metrics { return a.metrics }

func (a *Application) Signals() *SignalManager { return a.signals }

// Router returns the router modules register their routes on.
func (a *Application) Router() chi.Router { return a.router }

// Registry returns the module registry, or nil before Build.
func (a *Application) Registry() *Registry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry
}

// Services returns the service locator, or nil before Build.
func (a *Application) Services() *ServiceLocator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.services
}

// Events returns the event manager, or nil before Build.
func (a *Application) Events() *EventManager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events
}

// Modules returns the loaded modules in load order.
func (a *Application) Modules() []Module {
	registry := a.Registry()
	if registry == nil {
		return nil
	}
	return registry.Modules()
}
