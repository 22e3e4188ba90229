package harvester

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a chi router with all harvester endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	// middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// basic cors
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS", "DELETE", "PUT"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// health check
	r.Get("/health", handler.Health)

	// api v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// harvest endpoints
		r.Post("/harvest", handler.StartHarvest)
		r.Delete("/harvest/current", handler.CancelHarvest)
		r.Get("/harvest/status", handler.HarvestStatus)

		// users endpoints
		r.Get("/users/search", handler.SearchUsers)
		r.Get("/users/stats", handler.UserStats)
		r.Get("/users/export", handler.ExportUsers)
	})

	return r
}
