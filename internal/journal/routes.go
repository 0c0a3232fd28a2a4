package journal

import "github.com/go-chi/chi/v5"

// MountRoutes registers the journal entry endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/journal-entries", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/post", h.HandlePost)
		r.Post("/{id}/void", h.HandleVoid)
	})
}
