// Package httpapi serves the runtime's admin control-plane and stats
// WebSocket hub — the read-only + control-plane surface the core exposes
// at its interface boundary, never a business HTTP request/response codec.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sukryu/stellane/internal/config"
	"github.com/sukryu/stellane/internal/events"
	"github.com/sukryu/stellane/internal/httpapi/handlers"
	apimiddleware "github.com/sukryu/stellane/internal/httpapi/middleware"
	"github.com/sukryu/stellane/internal/httpapi/websocket"
	"github.com/sukryu/stellane/internal/runtime"
)

// Server is the admin HTTP server: chi router, admin handlers, and the
// stats WebSocket hub, wired against a running Runtime and its event bus.
type Server struct {
	router       *chi.Mux
	cfg          *config.Config
	rt           *runtime.Runtime
	bus          *events.LocalBus
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
}

// NewServer creates a new admin HTTP server.
func NewServer(cfg *config.Config, rt *runtime.Runtime, bus *events.LocalBus) *Server {
	wsHub := websocket.NewHub(bus)

	s := &Server{
		router:       chi.NewRouter(),
		cfg:          cfg,
		rt:           rt,
		bus:          bus,
		adminHandler: handlers.NewAdminHandler(rt),
		wsHub:        wsHub,
		wsHandler:    websocket.NewHandler(wsHub),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(apimiddleware.RequestLogger())
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Heartbeat("/health"))

	if s.cfg.Auth.Enabled {
		keys := make(map[string]bool, len(s.cfg.Auth.APIKeys))
		for _, k := range s.cfg.Auth.APIKeys {
			keys[k] = true
		}
		s.router.Use(apimiddleware.Auth(&apimiddleware.AuthConfig{
			Enabled:   s.cfg.Auth.Enabled,
			JWTSecret: s.cfg.Auth.JWTSecret,
			APIKeys:   keys,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(chimiddleware.AllowContentType("application/json"))
		r.Use(apimiddleware.ClientRateLimit(100))

		r.Get("/health", s.adminHandler.HealthCheck)

		r.Get("/workers", s.adminHandler.ListWorkers)
		r.Get("/workers/{workerID}", s.adminHandler.GetWorker)
		r.Post("/workers/{workerID}/pause", s.adminHandler.PauseWorker)
		r.Post("/workers/{workerID}/resume", s.adminHandler.ResumeWorker)

		r.Get("/queues", s.adminHandler.GetQueues)

		r.Get("/journal/recoverable", s.adminHandler.ListRecoverable)
		r.Get("/journal/dead-letter", s.adminHandler.ListDeadLettered)
		r.Post("/journal/retry", s.adminHandler.RetryEntry)
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)

	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub.
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// EventBus returns the in-process event bus backing the stats hub.
func (s *Server) EventBus() *events.LocalBus {
	return s.bus
}
