package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gridkeep/internal/game"
	"gridkeep/internal/logging"
)

// Server is the HTTP API server with WebSocket support.
type Server struct {
	manager     *game.RoomManager
	router      *chi.Mux
	gateway     *WSGateway
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server with default production configuration.
//
// IMPORTANT: Nothing listens until Start() is called. This enables testing
// by allowing the server to be constructed without opening network
// listeners. For HTTP-only tests, use NewRouter() directly.
func NewServer(manager *game.RoomManager) *Server {
	s := &Server{
		manager: manager,
		gateway: NewWSGateway(manager),
	}

	// Create rate limiter (we track it for cleanup on shutdown)
	s.rateLimiter = NewIPRateLimiter(DefaultRateLimitConfig)

	s.router = NewRouter(RouterConfig{
		Manager:     manager,
		Gateway:     s.gateway,
		RateLimiter: s.rateLimiter,
	})

	return s
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.L().Infof("🌐 API server starting on %s", addr)
	logging.L().Infof("🎮 WebSocket endpoint: ws://localhost%s/ws", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops the listener and background workers gracefully. Room
// disposal is the caller's job; the server only owns the transport.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
