// package server contains middleware & handlers for the playlist submission web service
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own their route definitions.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Opts configures a [Server].
type Opts struct {
	Service services.PlaylistService
	Logger  *log.Logger
	// Gatherer backs /metrics. The route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// Server is the route layer: it translates HTTP requests into client operations.
type Server struct {
	service   services.PlaylistService
	logger    *log.Logger
	templates *Templates
	router    *BasicRouter
}

// New builds a Server with every route registered.
func New(opts Opts) (*Server, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("%w: server requires a playlist service", shared.ErrMissingArgument)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	templates, err := NewTemplates(templateFS)
	if err != nil {
		return nil, err
	}

	s := &Server{
		service:   opts.Service,
		logger:    shared.WithLogger(logger, "component", "server"),
		templates: templates,
		router:    NewBasicRouter(),
	}

	s.router.Use(Recover(s.logger), Logging(s.logger))
	s.router.HandleFunc(http.MethodGet, "/{$}", s.handleIndex)
	s.router.HandleFunc(http.MethodGet, "/search", s.handleSearch)
	s.router.HandleFunc(http.MethodPost, "/search", s.handleSearch)
	s.router.HandleFunc(http.MethodPost, "/submit", s.handleSubmit)
	s.router.HandleFunc(http.MethodPost, "/setup", s.handleSetup)
	s.router.HandleFunc(http.MethodGet, "/healthz", s.handleHealth)
	s.router.Handler(NewAuthorizeHandler(s.service, s.logger))
	if opts.Gatherer != nil {
		s.router.Handle(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return s, nil
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
