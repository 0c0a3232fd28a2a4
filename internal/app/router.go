package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian-books/internal/accounts"
	"github.com/meridian-books/meridian-books/internal/balances"
	"github.com/meridian-books/meridian-books/internal/journal"
	"github.com/meridian-books/meridian-books/internal/observability"
	"github.com/meridian-books/meridian-books/internal/periods"
	"github.com/meridian-books/meridian-books/internal/recon"
	"github.com/meridian-books/meridian-books/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	JournalHandler  *journal.Handler
	PeriodsHandler  *periods.Handler
	BalancesHandler *balances.Handler
	ReconHandler    *recon.Handler
	JobHandler      *jobs.Handler
	Pool            *pgxpool.Pool
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	importRateLimit := 30
	if params.Config != nil && params.Config.ImportRateLimit > 0 {
		importRateLimit = params.Config.ImportRateLimit
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.AccountsHandler != nil {
			params.AccountsHandler.MountRoutes(r)
		}
		if params.JournalHandler != nil {
			params.JournalHandler.MountRoutes(r)
		}
		if params.PeriodsHandler != nil {
			params.PeriodsHandler.MountRoutes(r)
		}
		if params.BalancesHandler != nil {
			params.BalancesHandler.MountRoutes(r)
		}
		if params.ReconHandler != nil {
			params.ReconHandler.MountRoutes(r, importRateLimit)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
