package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-books/meridian-books/internal/balances"
	"github.com/meridian-books/meridian-books/internal/observability"
)

// NewBalancesRefreshHandler builds the handler for TaskBalancesRefresh.
// It recomputes the snapshot for the requested period, defaulting to the
// current calendar month. Recomputation is idempotent, so retries are safe.
func NewBalancesRefreshHandler(service *balances.Service, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload BalancesRefreshPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		year, month := payload.FiscalYear, payload.FiscalMonth
		if year == 0 || month == 0 {
			now := time.Now().UTC()
			year, month = now.Year(), int(now.Month())
		}
		summary, err := service.Recalculate(ctx, year, month)
		if err != nil {
			// A period that was never opened is not a job failure.
			if errors.Is(err, balances.ErrPeriodNotFound) {
				logger.Info("balances refresh skipped, period missing",
					slog.Int("fiscalYear", year), slog.Int("fiscalMonth", month))
				metrics.ObserveJob(TaskBalancesRefresh, "skipped")
				return nil
			}
			metrics.ObserveJob(TaskBalancesRefresh, "error")
			return err
		}
		metrics.ObserveJob(TaskBalancesRefresh, "ok")
		logger.Info("balances refreshed",
			slog.Int("fiscalYear", year),
			slog.Int("fiscalMonth", month),
			slog.Int("accounts", summary.AccountsProcessed),
			slog.Bool("balanced", summary.IsBalanced))
		return nil
	}
}
