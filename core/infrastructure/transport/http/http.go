package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmiddleware "github.com/hyperterse/queryengine/core/infrastructure/transport/http/middleware"
	"github.com/hyperterse/queryengine/core/logger"
)

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	listener net.Listener
	addr     string
	shutdown context.CancelFunc
	log      *logger.Logger
}

// NewServer creates a new HTTP server listening on addr. A bare port is
// accepted for addr.
func NewServer(addr string) *Server {
	if addr == "" {
		addr = "127.0.0.1:4466"
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = ":" + addr
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-transaction-id", "traceparent", "tracestate"},
		MaxAge:         300,
	}))

	r.Use(httpmiddleware.Metrics)
	r.Use(httpmiddleware.Tracing)

	return &Server{
		router: r,
		addr:   addr,
		log:    logger.New("http"),
	}
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Use appends middleware to the router. It must be called before any
// route is registered.
func (s *Server) Use(mw ...func(http.Handler) http.Handler) {
	s.router.Use(mw...)
}

// Addr returns the bound address once the server is listening
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// StartAsync binds the listener and serves in the background
func (s *Server) StartAsync() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return s.log.Fail("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = lis

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.log.Successf("HTTP server listening on http://%s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.log.Infof("Shutting down HTTP server")

	if s.shutdown != nil {
		s.shutdown()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Errorf("Error shutting down HTTP server: %v", err)
		if closeErr := s.server.Close(); closeErr != nil {
			s.log.Errorf("Error force closing HTTP server: %v", closeErr)
		}
		return err
	}

	s.log.Infof("HTTP server stopped")
	return nil
}

// SetShutdownFunc sets the shutdown function to be called on stop
func (s *Server) SetShutdownFunc(fn context.CancelFunc) {
	s.shutdown = fn
}
