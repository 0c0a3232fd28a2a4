package recon

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the reconciliation endpoints. Statement imports are
// rate limited per client since they carry bulk payloads.
func (h *Handler) MountRoutes(r chi.Router, importRateLimit int) {
	r.Route("/bank-accounts", func(r chi.Router) {
		r.Post("/", h.HandleCreateBankAccount)
		r.Get("/", h.HandleListBankAccounts)
	})
	r.Route("/reconciliations", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.With(httprate.LimitByIP(importRateLimit, time.Minute)).Post("/{id}/import-statement", h.HandleImport)
		r.Post("/{id}/match", h.HandleMatch)
		r.Post("/{id}/auto-match", h.HandleAutoMatch)
		r.Post("/{id}/items", h.HandleAddItem)
		r.Post("/{id}/calculate", h.HandleCalculate)
		r.Post("/{id}/complete", h.HandleComplete)
		r.Post("/{id}/approve", h.HandleApprove)
	})
}
