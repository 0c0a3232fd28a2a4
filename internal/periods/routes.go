package periods

import "github.com/go-chi/chi/v5"

// MountRoutes registers the fiscal period endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/fiscal-periods", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/close", h.HandleClose)
		r.Post("/{id}/reopen", h.HandleReopen)
		r.Post("/{id}/lock", h.HandleLock)
	})
}
