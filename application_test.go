package keel_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/junioryono/keel"
	"github.com/junioryono/keel/internal/testutil"
)

func TestNew(t *testing.T) {
	t.Run("populates the container", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).New()
		c := app.Container()

		for _, key := range []string{
			keel.KeyConfig, keel.KeyApp, keel.KeyContainer, keel.KeyConsole,
			keel.KeyLogger, keel.KeySignals, keel.KeyRouter,
		} {
			assert.True(t, c.Has(key), key)
		}
		assert.False(t, c.Has(keel.KeyMetrics))
		assert.Same(t, app, keel.MustGet[*keel.Application](c, keel.KeyApp))
		assert.Equal(t, "keel-test", app.ProgramName())
		assert.NotEmpty(t, app.ID())
	})

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		app, err := keel.New(nil, keel.WithLogger(zap.NewNop()))
		require.NoError(t, err)
		defer app.Close()

		assert.NotNil(t, app.Config())
		_, ok := app.Catalog().Module(keel.BaseModuleRef)
		assert.True(t, ok)
	})

	t.Run("metrics enabled by config", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).WithConfig(map[string]any{keel.CfgMetricsEnabled: true}).New()

		require.NotNil(t, app.Metrics())
		assert.True(t, app.Container().Has(keel.KeyMetrics))
	})

	t.Run("logger from config", func(t *testing.T) {
		t.Parallel()

		app, err := keel.New(keel.NewConfig(map[string]any{
			keel.CfgLogLevel:  "warn",
			keel.CfgLogFormat: "json",
		}))
		require.NoError(t, err)
		defer app.Close()

		require.NotNil(t, app.Logger())
		assert.False(t, app.Logger().Core().Enabled(zap.InfoLevel))
		assert.True(t, app.Logger().Core().Enabled(zap.WarnLevel))
	})
}

func TestApplication_Build(t *testing.T) {
	t.Run("wires registry services and events", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).
			WithModule("auth", testutil.NewModuleBuilder("auth").
				WithService("auth.users", testutil.ServiceConstructor(nil)).
				WithHandler("user.created", 0, testutil.AppendHandler("auth", nil)).
				Factory()).
			Build([]string{"auth"})

		assert.Equal(t, []string{keel.BaseModuleRef, "auth"}, app.Registry().Refs())
		assert.Len(t, app.Modules(), 2)
		testutil.AssertServiceResolvable[*testutil.TestService](t, app.Services(), "auth.users")
		assert.Equal(t, []string{"user.created"}, app.Events().Events())

		c := app.Container()
		assert.Same(t, app.Registry(), keel.MustGet[*keel.Registry](c, keel.KeyModules))
		assert.Same(t, app.Services(), keel.MustGet[*keel.ServiceLocator](c, keel.KeyServices))
		assert.Same(t, app.Events(), keel.MustGet[*keel.EventManager](c, keel.KeyEvents))
	})

	t.Run("factories run before modules", func(t *testing.T) {
		t.Parallel()

		rec := testutil.NewRecorder()
		app := testutil.NewAppBuilder(t).
			WithFactory("db", func(c *keel.Container) error {
				rec.Record("factory")
				c.Add("db", "conn")
				return nil
			}).
			WithModule("auth", func(c *keel.Container) (keel.Module, error) {
				rec.Record("module")
				assert.True(t, c.Has("db"))
				return testutil.NewModuleBuilder("auth").Build(), nil
			}).
			Build([]string{"auth"}, "db")

		assert.Equal(t, []string{"factory", "module"}, rec.Calls())
		assert.Equal(t, "conn", app.Container().MustGet("db"))
	})

	t.Run("lists default to config", func(t *testing.T) {
		t.Parallel()

		var ran atomic.Bool
		app := testutil.NewAppBuilder(t).
			WithConfig(map[string]any{
				keel.CfgModules:   []any{"auth"},
				keel.CfgFactories: "db",
			}).
			WithFactory("db", func(*keel.Container) error { ran.Store(true); return nil }).
			WithModule("auth", testutil.NewModuleBuilder("auth").Factory()).
			Build(nil)

		assert.True(t, ran.Load())
		_, ok := app.Registry().ByName("auth")
		assert.True(t, ok)
	})

	t.Run("build hooks run in load order and see wired state", func(t *testing.T) {
		t.Parallel()

		rec := testutil.NewRecorder()
		hook := func(name string) func(*keel.Application) error {
			return func(app *keel.Application) error {
				require.NotNil(t, app.Services())
				require.NotNil(t, app.Events())
				rec.Record("build:" + name)
				return nil
			}
		}

		testutil.NewAppBuilder(t).
			WithModule("a", testutil.NewModuleBuilder("a").WithBuild(hook("a")).Factory()).
			WithModule("b", testutil.NewModuleBuilder("b").WithBuild(hook("b")).Factory()).
			Build([]string{"a", "b"})

		assert.Equal(t, []string{"build:a", "build:b"}, rec.Calls())
	})

	t.Run("phase errors", func(t *testing.T) {
		tests := []struct {
			name      string
			modules   []string
			factories []any
			phase     string
			is        error
		}{
			{"factories", []string{"ok"}, []any{"missing"}, "factories", keel.ErrFactoryNotFound},
			{"modules", []string{"missing"}, nil, "modules", keel.ErrModuleNotFound},
			{"services", []string{"bad-service"}, nil, "services", keel.ErrNilConstructor},
			{"init", []string{"bad-build"}, nil, "init", testutil.ErrIntentional},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				app := testutil.NewAppBuilder(t).
					WithModule("ok", testutil.NewModuleBuilder("ok").Factory()).
					WithModule("bad-service", testutil.NewModuleBuilder("bad").WithService("svc", nil).Factory()).
					WithModule("bad-build", testutil.NewModuleBuilder("bad").WithBuild(func(*keel.Application) error {
						return testutil.ErrIntentional
					}).Factory()).
					New()

				err := app.Build(tt.modules, tt.factories...)

				var buildErr keel.BuildError
				require.ErrorAs(t, err, &buildErr)
				assert.Equal(t, tt.phase, buildErr.Phase)
				assert.ErrorIs(t, err, tt.is)
			})
		}
	})

	t.Run("second build fails", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).Build(nil)
		assert.ErrorIs(t, app.Build(nil), keel.ErrAlreadyBuilt)
	})

	t.Run("build after close fails", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).New()
		require.NoError(t, app.Close())
		assert.ErrorIs(t, app.Build(nil), keel.ErrAppClosed)
	})

	t.Run("custom system modules", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).
			WithModule("sys", testutil.NewModuleBuilder("sys").Factory()).
			WithOption(keel.WithSystemModules("sys")).
			Build(nil)

		assert.Equal(t, []string{"sys"}, app.Registry().Refs())
	})
}

func TestApplication_Init(t *testing.T) {
	t.Run("before build", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).New()
		assert.ErrorIs(t, app.Init(), keel.ErrNotBuilt)

		code, err := app.Run(t.Context(), []string{"version"})
		assert.Equal(t, keel.ExitFailure, code)
		assert.ErrorIs(t, err, keel.ErrNotBuilt)
	})

	t.Run("hooks run exactly once", func(t *testing.T) {
		t.Parallel()

		var builds atomic.Int32
		app := testutil.NewAppBuilder(t).
			WithModule("a", testutil.NewModuleBuilder("a").WithBuild(func(*keel.Application) error {
				builds.Add(1)
				return nil
			}).Factory()).
			Build([]string{"a"})

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, app.Init())
			}()
		}
		wg.Wait()

		require.NoError(t, app.Init())
		assert.Equal(t, int32(1), builds.Load())
	})

	t.Run("first error is kept", func(t *testing.T) {
		t.Parallel()

		var builds atomic.Int32
		app := testutil.NewAppBuilder(t).
			WithModule("a", testutil.NewModuleBuilder("a").WithBuild(func(*keel.Application) error {
				builds.Add(1)
				return testutil.ErrIntentional
			}).Factory()).
			New()

		require.Error(t, app.Build([]string{"a"}))
		assert.ErrorIs(t, app.Init(), testutil.ErrIntentional)
		assert.Equal(t, int32(1), builds.Load())

		_, err := app.Run(t.Context(), []string{"version"})
		assert.ErrorIs(t, err, testutil.ErrIntentional)
	})
}

func TestApplication_Close(t *testing.T) {
	t.Run("disposes services then container entries", func(t *testing.T) {
		t.Parallel()

		rec := testutil.NewRecorder()
		app := testutil.NewAppBuilder(t).
			WithFactory("pool", func(c *keel.Container) error {
				c.Add("pool", testutil.NewTestDisposable("pool", rec))
				c.Add("queue", testutil.NewTestDisposable("queue", rec))
				return nil
			}).
			WithModule("a", testutil.NewModuleBuilder("a").
				WithService("svc", func(*keel.Container) (any, error) {
					return testutil.NewTestDisposable("svc", rec), nil
				}).
				Factory()).
			Build([]string{"a"}, "pool")

		app.Services().MustGet("svc")

		require.NoError(t, app.Close())
		assert.Equal(t, []string{"close:svc", "close:queue", "close:pool"}, rec.Calls())
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		rec := testutil.NewRecorder()
		app := testutil.NewAppBuilder(t).New()
		app.Container().Add("res", testutil.NewTestDisposable("res", rec))

		require.NoError(t, app.Close())
		require.NoError(t, app.Close())
		assert.Equal(t, 1, rec.Count("close:res"))
	})

	t.Run("reports disposal errors", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).New()
		app.Container().Add("res", testutil.NewTestDisposableWithError("res", nil, testutil.ErrDisposal))

		assert.ErrorIs(t, app.Close(), testutil.ErrDisposal)
	})
}
