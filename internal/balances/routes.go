package balances

import "github.com/go-chi/chi/v5"

// MountRoutes registers the balance aggregation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/account-balances/calculate", h.HandleCalculate)
	r.Get("/account-balances/{accountId}", h.HandleGetAccountBalance)
	r.Get("/reports/trial-balance", h.HandleTrialBalance)
	r.Get("/reports/trial-balance/export.csv", h.HandleTrialBalanceCSV)
}
