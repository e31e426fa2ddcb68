package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Routing
	r.Post("/select", s.selectAgent)
	r.Post("/plan", s.planAgent)

	// Agents
	r.Route("/agent", func(r chi.Router) {
		r.Get("/", s.listAgents)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getAgent)
			r.Get("/instructions", s.getInstructions)
		})
	})

	// Registry snapshot
	r.Get("/registry", s.getRegistry)
	r.Post("/registry/reload", s.reloadRegistry)

	// Event streaming (SSE)
	if s.bus != nil {
		r.Get("/event", s.allEvents)
	}

	// Prometheus
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get("/health", s.health)
}
