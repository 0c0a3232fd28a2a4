package accounts

import "github.com/go-chi/chi/v5"

// MountRoutes registers the chart of accounts endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Post("/{id}/deactivate", h.HandleDeactivate)
		r.Delete("/{id}", h.HandleDelete)
	})
}
