package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arbflow/arbflow/internal/auth"
	"github.com/arbflow/arbflow/internal/domain"
	"github.com/arbflow/arbflow/internal/server/handler"
	"github.com/arbflow/arbflow/internal/server/middleware"
	"github.com/arbflow/arbflow/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// RateLimit requests per client per RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunityHandler
}

// Server is the HTTP + WebSocket API for the arbitrage scanner.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. The verifier guards
// the bookmark endpoints; the limiter, when non-nil, throttles the whole API.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, verifier auth.TokenVerifier, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(verifier)

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Opportunity read endpoints.
	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListActive)
	mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunities.GetByID)

	// Bookmark endpoints require an authenticated user.
	mux.Handle("POST /api/opportunities/{id}/save", requireAuth(http.HandlerFunc(handlers.Opportunities.Save)))
	mux.Handle("GET /api/opportunities/saved", requireAuth(http.HandlerFunc(handlers.Opportunities.ListSaved)))

	// WebSocket endpoint; the hub does its own token handling.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
