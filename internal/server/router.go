package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doctalk-ai/doctalk/internal/api"
	"github.com/doctalk-ai/doctalk/internal/api/handlers"
	"github.com/doctalk-ai/doctalk/internal/api/middleware"
	"github.com/doctalk-ai/doctalk/internal/realtime"
)

type RouterConfig struct {
	AuthValidator   middleware.AuthValidator
	DocumentHandler *handlers.DocumentHandler
	ChatHandler     *handlers.ChatHandler
	WSHandler       *realtime.WSHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 25 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.AuthValidator))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Upload)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
			r.Post("/{id}/reingest", cfg.DocumentHandler.Reingest)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", cfg.ChatHandler.CreateSession)
			r.Get("/", cfg.ChatHandler.ListSessions)
			r.Get("/{id}/messages", cfg.ChatHandler.ListMessages)
			r.Post("/{id}/messages", cfg.ChatHandler.SendMessage)
		})
	})

	// Websocket auth happens in-band with close codes, not via the
	// bearer middleware: browsers cannot set headers on ws dials.
	r.Get("/ws/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		cfg.WSHandler.ServeSession(w, r, chi.URLParam(r, "id"))
	})

	return r
}
