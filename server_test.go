package keel_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junioryono/keel"
	"github.com/junioryono/keel/internal/testutil"
)

func TestInitMiddleware(t *testing.T) {
	t.Run("runs init once before handlers", func(t *testing.T) {
		t.Parallel()

		var builds atomic.Int32
		app := testutil.NewAppBuilder(t).
			WithModule("api", testutil.NewModuleBuilder("api").WithBuild(func(*keel.Application) error {
				builds.Add(1)
				return nil
			}).Factory()).
			Build([]string{"api"})

		r := chi.NewRouter()
		r.Use(keel.InitMiddleware(app))
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
		assert.Equal(t, int32(1), builds.Load())
	})

	t.Run("init failure uses the error handler", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).New()

		var handled error
		mw := keel.InitMiddleware(app, keel.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			handled = err
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		rec := httptest.NewRecorder()
		mw(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.ErrorIs(t, handled, keel.ErrNotBuilt)
	})

	t.Run("default error handler", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).New()

		rec := httptest.NewRecorder()
		keel.InitMiddleware(app)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestContainerMiddleware(t *testing.T) {
	t.Parallel()

	c := keel.NewContainer()

	var got *keel.Container
	handler := keel.ContainerMiddleware(c)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		var err error
		got, err = keel.FromContext(r.Context())
		assert.NoError(t, err)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Same(t, c, got)

	_, err := keel.FromContext(context.Background())
	assert.ErrorIs(t, err, keel.ErrContainerNotInContext)
}

func TestServer_Handler(t *testing.T) {
	t.Run("serves module routes with the container", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).
			WithModule("api", testutil.NewModuleBuilder("api").
				WithService("greeting", func(*keel.Container) (any, error) { return "hello", nil }).
				WithBuild(func(app *keel.Application) error {
					app.Router().Get("/hello", func(w http.ResponseWriter, r *http.Request) {
						c, err := keel.FromContext(r.Context())
						if err != nil {
							http.Error(w, err.Error(), http.StatusInternalServerError)
							return
						}
						locator := keel.MustGet[*keel.ServiceLocator](c, keel.KeyServices)
						_, _ = io.WriteString(w, keel.MustResolve[string](locator, "greeting"))
					})
					return nil
				}).
				Factory()).
			Build([]string{"api"})

		srv := httptest.NewServer(keel.NewServer(app, "").Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/hello")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("exposes metrics when enabled", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).
			WithConfig(map[string]any{keel.CfgMetricsEnabled: true}).
			Build(nil)

		testutil.AssertDispatch(t, app, keel.ExitSuccess, "version")

		rec := httptest.NewRecorder()
		keel.NewServer(app, "").Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `keel_cli_exits_total{code="0",command="version"} 1`)
	})

	t.Run("address falls back to config", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).WithConfig(map[string]any{keel.CfgServerAddress: ":9090"}).Build(nil)

		assert.Equal(t, ":9090", keel.NewServer(app, "").Addr())
		assert.Equal(t, ":7070", keel.NewServer(app, ":7070").Addr())
	})
}

func TestServer_Serve(t *testing.T) {
	t.Parallel()

	app := testutil.NewAppBuilder(t).
		WithModule("api", testutil.NewModuleBuilder("api").WithBuild(func(app *keel.Application) error {
			app.Router().Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "pong")
			})
			return nil
		}).Factory()).
		Build([]string{"api"})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- keel.NewServer(app, ln.Addr().String()).Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
