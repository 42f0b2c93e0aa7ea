package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Delete("/", h.DeleteAll)
		r.Post("/generate", h.Generate)
		r.Get("/{id}", h.GetNote)
		r.Put("/{id}", h.PutNote)
		r.Delete("/{id}", h.DeleteNote)
	})

	// Live filter: the input applies at once, results follow.
	r.Put("/filter", h.SetFilter)
	r.Get("/filter", h.GetFilter)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
