package testutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/junioryono/keel"
)

// ModuleBuilder provides a fluent interface for building test modules
type ModuleBuilder struct {
	module *keel.BaseModule
}

// NewModuleBuilder creates a new ModuleBuilder for a module named name
func NewModuleBuilder(name string) *ModuleBuilder {
	return &ModuleBuilder{module: &keel.BaseModule{
		ModuleName:        name,
		ModuleDescription: name + " test module",
		ServiceMap:        keel.ServiceMap{},
		CommandMap:        keel.CommandMap{},
		EventMap:          keel.EventMap{},
	}}
}

// WithService binds a service constructor
func (b *ModuleBuilder) WithService(name string, constructor keel.ServiceConstructor) *ModuleBuilder {
	b.module.ServiceMap[name] = constructor
	return b
}

// WithCommand binds a command factory
func (b *ModuleBuilder) WithCommand(name string, factory keel.CommandFactory) *ModuleBuilder {
	b.module.CommandMap[name] = factory
	return b
}

// WithHandler appends an event handler at priority
func (b *ModuleBuilder) WithHandler(event string, priority int, factory keel.EventHandlerFactory) *ModuleBuilder {
	if b.module.EventMap[event] == nil {
		b.module.EventMap[event] = map[int][]keel.EventHandlerFactory{}
	}
	b.module.EventMap[event][priority] = append(b.module.EventMap[event][priority], factory)
	return b
}

// WithJob appends a job
func (b *ModuleBuilder) WithJob(spec keel.JobSpec) *ModuleBuilder {
	b.module.JobList = append(b.module.JobList, spec)
	return b
}

// WithFixture appends a fixture
func (b *ModuleBuilder) WithFixture(spec keel.FixtureSpec) *ModuleBuilder {
	b.module.FixtureList = append(b.module.FixtureList, spec)
	return b
}

// WithBuild sets the build hook
func (b *ModuleBuilder) WithBuild(fn func(parent *keel.Application) error) *ModuleBuilder {
	b.module.OnBuild = fn
	return b
}

// Build returns the module
func (b *ModuleBuilder) Build() *keel.BaseModule {
	return b.module
}

// Factory returns a ModuleFactory yielding the module
func (b *ModuleBuilder) Factory() keel.ModuleFactory {
	return keel.StaticModule(b.module)
}

// AppBuilder assembles an Application with captured console output
type AppBuilder struct {
	t       *testing.T
	cfg     *keel.Config
	catalog *keel.Catalog
	opts    []keel.Option

	Out *bytes.Buffer
	Err *bytes.Buffer
}

// NewAppBuilder creates a new AppBuilder
func NewAppBuilder(t *testing.T) *AppBuilder {
	return &AppBuilder{
		t:       t,
		cfg:     keel.NewConfig(nil),
		catalog: keel.NewCatalog(),
		Out:     &bytes.Buffer{},
		Err:     &bytes.Buffer{},
	}
}

// WithConfig sets the configuration values
func (b *AppBuilder) WithConfig(values map[string]any) *AppBuilder {
	b.cfg = keel.NewConfig(values)
	return b
}

// WithModule registers a module factory under ref
func (b *AppBuilder) WithModule(ref string, factory keel.ModuleFactory) *AppBuilder {
	require.NoError(b.t, b.catalog.RegisterModule(ref, factory))
	return b
}

// WithFactory registers a bootstrap factory under ref
func (b *AppBuilder) WithFactory(ref string, factory keel.Factory) *AppBuilder {
	require.NoError(b.t, b.catalog.RegisterFactory(ref, factory))
	return b
}

// WithOption adds an application option
func (b *AppBuilder) WithOption(opt keel.Option) *AppBuilder {
	b.opts = append(b.opts, opt)
	return b
}

// New returns the unbuilt application; it is closed on test cleanup
func (b *AppBuilder) New() *keel.Application {
	opts := append([]keel.Option{
		keel.WithCatalog(b.catalog),
		keel.WithLogger(zap.NewNop()),
		keel.WithConsole(keel.NewConsole(b.Out, b.Err)),
		keel.WithProgramName("keel-test"),
	}, b.opts...)

	app, err := keel.New(b.cfg, opts...)
	require.NoError(b.t, err, "failed to create application")

	b.t.Cleanup(func() {
		_ = app.Close()
	})
	return app
}

// Build returns an application built with modules and factories
func (b *AppBuilder) Build(modules []string, factories ...any) *keel.Application {
	app := b.New()
	require.NoError(b.t, app.Build(modules, factories...), "failed to build application")
	return app
}
