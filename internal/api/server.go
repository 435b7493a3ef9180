package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lanternfall/internal/config"
	"lanternfall/internal/world"
)

// Server is the HTTP server with the WebSocket session entry point.
type Server struct {
	world       *world.World
	router      *chi.Mux
	wsHandler   *WSHandler
	rateLimiter *IPRateLimiter
}

// NewServer creates the API server. No goroutines or listeners start until
// Start is called, so tests can construct one and use Router() with
// httptest.
func NewServer(w *world.World, cfg config.AppConfig) *Server {
	s := &Server{
		world: w,
		wsHandler: NewWSHandler(w,
			cfg.Server.MaxConnsPerIP,
			float64(cfg.Limits.InboundPerSecond),
			cfg.Limits.InboundBurst,
		),
	}

	s.rateLimiter = NewIPRateLimiter(DefaultRateLimitConfig)
	s.router = NewRouter(RouterConfig{
		World:       w,
		RateLimiter: s.rateLimiter,
	})

	// The WebSocket route needs the handler instance, so it sits outside
	// the pure router factory.
	s.router.Get("/ws", s.wsHandler.HandleWS)

	return s
}

// Start begins serving. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🏮 World gate: ws://localhost%s/ws?id=<identity>&realm=<realm>", addr)

	return http.ListenAndServe(addr, s.router)
}

// Router returns the HTTP handler for httptest-based integration tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop shuts down background workers.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
