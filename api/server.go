// Package api exposes the support agent over HTTP.
//
// Endpoints:
//
//	POST   /api/chat                          → generate a reply
//	GET    /api/conversations/{id}/history    → recent turns
//	DELETE /api/conversations/{id}            → clear a conversation
//	PUT    /api/conversations/{id}/persona    → switch persona
//	GET    /api/personas                      → list personas
//	GET    /health                            → liveness probe
//	GET    /ready                             → readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - chat.go: chat endpoint
//   - conversation.go: conversation management endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ormelin/croupier/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation can take a while, so this is generous.
	WriteTimeout = 90 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the support agent.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health       *HealthHandler
	chat         *ChatHandler
	conversation *ConversationHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(generator Generator, conversations Conversations, pool *pgxpool.Pool, logger log.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:          mux,
		logger:       logger,
		health:       NewHealthHandler(pool, logger),
		chat:         NewChatHandler(generator, conversations, logger),
		conversation: NewConversationHandler(conversations, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.conversation.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
