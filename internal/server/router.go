package server

import (
	"net/http"

	"github.com/cloo-solutions/vectorgate/internal/api"
	"github.com/cloo-solutions/vectorgate/internal/api/handlers"
	"github.com/cloo-solutions/vectorgate/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	AuthValidator  middleware.AuthValidator
	IngestHandler  *handlers.IngestHandler
	QueryHandler   *handlers.QueryHandler
	AccessHandler  *handlers.AccessHandler
	VectorsHandler *handlers.VectorsHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Post("/ingest", cfg.IngestHandler.Ingest)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.IngestHandler.Enqueue)
			r.Get("/{id}", cfg.IngestHandler.GetDocument)
		})

		r.Post("/query", cfg.QueryHandler.Query)
		r.Post("/access/check", cfg.AccessHandler.Check)
		r.Delete("/vectors", cfg.VectorsHandler.Delete)
	})

	return r
}
