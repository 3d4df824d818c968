package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultHTTPAddr is the default API listen address.
	DefaultHTTPAddr = ":8080"

	// Classification of a full inbox can take several LLM round trips.
	defaultWriteTimeout      = 5 * time.Minute
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 2 * time.Minute
)

// HTTPServerConfig wires an HTTPServer.
type HTTPServerConfig struct {
	Addr   string
	API    *API
	Health *HealthChecker
	Logger *slog.Logger
}

// HTTPServer serves the API and the health probes on one listener.
type HTTPServer struct {
	httpServer *http.Server
	health     *HealthChecker
	logger     *slog.Logger
}

// NewHTTPServer creates the API server.
func NewHTTPServer(cfg HTTPServerConfig) (*HTTPServer, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("API is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultHTTPAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	cfg.API.Register(mux)
	if cfg.Health != nil {
		cfg.Health.RegisterHealthEndpoints(mux)
	}

	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           cfg.API.Wrap(mux),
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			WriteTimeout:      defaultWriteTimeout,
			IdleTimeout:       defaultIdleTimeout,
		},
		health: cfg.Health,
		logger: cfg.Logger,
	}, nil
}

// Handler returns the root handler, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve serves requests on ln until Shutdown.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.logger.Info("starting API server", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address and blocks until Shutdown.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown marks the server not ready, then drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.health != nil {
		s.health.SetReady(false)
	}
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
