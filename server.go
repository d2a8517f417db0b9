package keel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server serves the application router over HTTP.
type Server struct {
	app    *Application
	addr   string
	logger *zap.Logger
	http   *http.Server
}

// NewServer creates a server for app listening on addr. An empty addr falls
// back to the server_address config value.
func NewServer(app *Application, addr string) *Server {
	if addr == "" {
		addr = app.Config().String(CfgServerAddress, defaultServerAddress)
	}

	s := &Server{
		app:    app,
		addr:   addr,
		logger: app.Logger().With(zap.String("addr", addr)),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the root handler: module build hooks are guaranteed to have
// run and the container is attached to every request. The metrics endpoint is
// mounted when metrics are enabled.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(InitMiddleware(s.app, WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Error("application init failed", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})))
	r.Use(ContainerMiddleware(s.app.Container()))

	if m := s.app.Metrics(); m != nil {
		r.Handle("/metrics", m.Handler())
	}
	r.Mount("/", s.app.Router())
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("listen", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
