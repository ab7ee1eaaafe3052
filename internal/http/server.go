package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	eventlogHTTP "github.com/shakamirtskhulava/eventlog/internal/eventlog/http"
)

// Server represents the operator HTTP server exposing the failed-message
// chain API and health endpoints.
type Server struct {
	server       *http.Server
	logger       *slog.Logger
	chainHandler *eventlogHTTP.ChainHandler
	middlewares  []Middleware
}

// NewServer creates a new HTTP server. Extra middlewares, such as request
// metrics, are applied after recovery and logging.
func NewServer(
	host string,
	port int,
	logger *slog.Logger,
	chainHandler *eventlogHTTP.ChainHandler,
	extra ...Middleware,
) *Server {
	middlewares := []Middleware{
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	}
	middlewares = append(middlewares, extra...)

	return &Server{
		logger:       logger,
		chainHandler: chainHandler,
		middlewares:  middlewares,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/health", HealthHandler())
	mux.Handle("/ready", ReadinessHandler(ctx))

	if s.chainHandler != nil {
		mux.HandleFunc("GET /v1/chains", s.chainHandler.ListChains)
		mux.HandleFunc("PATCH /v1/chains/{entityID}", s.chainHandler.UpdateChain)
		mux.HandleFunc("PATCH /v1/messages/{messageID}", s.chainHandler.UpdateMessage)
	}

	s.server.Handler = ChainMiddleware(s.middlewares...)(mux)

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
