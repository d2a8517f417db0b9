package keel

import (
	"context"
	"net/http"
)

// MiddlewareConfig holds the configuration for the HTTP middlewares.
type MiddlewareConfig struct {
	// ErrorHandler is called when the application cannot be initialized.
	// If nil, a default handler returning 500 Internal Server Error is used.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the HTTP middlewares.
type MiddlewareOption func(*MiddlewareConfig)

// WithErrorHandler sets the handler for initialization failures.
func WithErrorHandler(h func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.ErrorHandler = h
	}
}

func defaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
	}
}

// InitMiddleware makes sure every module build hook has run before the
// request reaches next. Init runs once; later requests pay only for the
// check.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(keel.InitMiddleware(app))
func InitMiddleware(app *Application, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := defaultMiddlewareConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := app.Init(); err != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContainerMiddleware attaches c to every request context.
// Handlers retrieve it with FromContext.
func ContainerMiddleware(c *Container) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithContainer(r.Context(), c)))
		})
	}
}

// containerContextKey is the key for storing the container in context.
type containerContextKey struct{}

// ContextWithContainer returns a context carrying c.
func ContextWithContainer(ctx context.Context, c *Container) context.Context {
	return context.WithValue(ctx, containerContextKey{}, c)
}

// FromContext gets the container from context.
//
// Example:
//
//	func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
//	    c, err := keel.FromContext(r.Context())
//	    if err != nil {
//	        http.Error(w, err.Error(), http.StatusInternalServerError)
//	        return
//	    }
//	    users := keel.MustResolve[*UserService](keel.MustGet[*keel.ServiceLocator](c, keel.KeyServices), "auth.users")
//	    ...
//	}
func FromContext(ctx context.Context) (*Container, error) {
	c, ok := ctx.Value(containerContextKey{}).(*Container)
	if !ok || c == nil {
		return nil, ErrContainerNotInContext
	}
	return c, nil
}
