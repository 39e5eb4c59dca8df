package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// Dump intake and import log
		r.Route("/dumps", func(r chi.Router) {
			r.Post("/", h.UploadDump)
			r.Get("/", h.ListDumps)
		})

		// Bulletin inventory and classification
		r.Route("/bulletins", func(r chi.Router) {
			r.Get("/", h.ListBulletins)
			r.Post("/classify", h.ClassifyBulletin)
			r.Get("/status", h.GetParseStatus)
		})

		// Parse cycles
		r.Route("/parse", func(r chi.Router) {
			r.Post("/", h.TriggerParse)
			r.Get("/status", h.GetParseStatus)
		})

		// Extracted output
		r.Get("/births", h.ListBirths)
		r.Get("/events", h.ListEvents)
	})

	return r
}
