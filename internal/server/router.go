package server

import (
	"log/slog"
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api/handlers"
	"github.com/cloo-solutions/groundwork/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

const defaultMaxBodyBytes int64 = 1 << 20

type RouterConfig struct {
	Logger        *slog.Logger
	MaxBodyBytes  int64
	EntryHandler  *handlers.EntryHandler
	AskHandler    *handlers.AskHandler
	HealthHandler *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", cfg.HealthHandler.Live)
		r.Get("/embedding", cfg.HealthHandler.Embedding)
		r.Get("/vector-store", cfg.HealthHandler.VectorStore)
		r.Get("/system", cfg.HealthHandler.System)
	})

	r.Route("/entries", func(r chi.Router) {
		r.Post("/", cfg.EntryHandler.Create)
		r.Get("/", cfg.EntryHandler.List)
		r.Get("/{id}", cfg.EntryHandler.Get)
		r.Put("/{id}", cfg.EntryHandler.Update)
		r.Delete("/{id}", cfg.EntryHandler.Delete)
		r.Post("/{id}/reindex", cfg.EntryHandler.Reindex)
	})

	r.Post("/ask", cfg.AskHandler.Ask)
	r.Post("/ask/stream", cfg.AskHandler.AskStream)

	return r
}
