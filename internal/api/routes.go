package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Fixtures
		r.Route("/fixtures", func(r chi.Router) {
			r.Get("/", s.HandleListFixtures)
			r.Post("/", s.HandleRegisterFixture)
			r.Post("/all-off", s.HandleAllOff)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetFixture)
				r.Delete("/", s.HandleUnregisterFixture)
				r.Post("/intensity", s.HandleSetIntensity)
				r.Post("/color", s.HandleSetColor)
				r.Post("/channel", s.HandleSetChannel)
				r.Post("/fade", s.HandleStartFade)
				r.Delete("/fade", s.HandleCancelFade)
			})
		})

		// RDM discovery
		r.Route("/rdm", func(r chi.Router) {
			r.Get("/fixtures", s.HandleListDiscovered)
			r.Post("/discover", s.HandleDiscover)
			r.Post("/fixtures/{uid}/register", s.HandleAutoRegister)
		})

		// Art-Net nodes
		r.Get("/nodes", s.HandleListNodes)
	})
}
