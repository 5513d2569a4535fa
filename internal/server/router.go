package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lvhr/airea/internal/api/handlers"
	"github.com/lvhr/airea/internal/api/middleware"
)

type RouterConfig struct {
	APIKey              string
	ChatHandler         *handlers.ChatHandler
	HealthHandler       *handlers.HealthHandler
	ConversationHandler *handlers.ConversationHandler
	SnapshotHandler     *handlers.SnapshotHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", cfg.HealthHandler.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))

		r.Post("/chat", cfg.ChatHandler.Chat)
		r.Get("/conversations/{id}", cfg.ConversationHandler.ListRecent)

		r.Get("/snapshot", cfg.SnapshotHandler.Get)
		r.Post("/snapshot/refresh", cfg.SnapshotHandler.Refresh)
	})

	return r
}
