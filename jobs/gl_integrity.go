package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian-books/internal/observability"
)

// NewGLIntegrityHandler builds the handler for TaskGLIntegrity. It sweeps
// every fiscal period and reports any whose posted debits and credits have
// drifted apart. Drift here means direct store corruption or a bug in the
// posting path, so the job logs loudly and fails for alerting.
func NewGLIntegrityHandler(pool *pgxpool.Pool, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		rows, err := pool.Query(ctx, `SELECT p.id, p.fiscal_year, p.fiscal_month,
COALESCE(SUM(l.amount) FILTER (WHERE l.direction='DEBIT'), 0) AS debits,
COALESCE(SUM(l.amount) FILTER (WHERE l.direction='CREDIT'), 0) AS credits
FROM fiscal_periods p
LEFT JOIN journal_entries e ON e.period_id = p.id AND e.status = 'POSTED'
LEFT JOIN journal_lines l ON l.entry_id = e.id
GROUP BY p.id, p.fiscal_year, p.fiscal_month
HAVING COALESCE(SUM(l.amount) FILTER (WHERE l.direction='DEBIT'), 0)
    <> COALESCE(SUM(l.amount) FILTER (WHERE l.direction='CREDIT'), 0)`)
		if err != nil {
			metrics.ObserveJob(TaskGLIntegrity, "error")
			return err
		}
		defer rows.Close()
		drifted := 0
		for rows.Next() {
			var periodID int64
			var year, month int
			var debits, credits int64
			if err := rows.Scan(&periodID, &year, &month, &debits, &credits); err != nil {
				metrics.ObserveJob(TaskGLIntegrity, "error")
				return err
			}
			drifted++
			logger.Error("ledger integrity violation",
				slog.Int64("periodId", periodID),
				slog.Int("fiscalYear", year),
				slog.Int("fiscalMonth", month),
				slog.Int64("debits", debits),
				slog.Int64("credits", credits))
		}
		if err := rows.Err(); err != nil {
			metrics.ObserveJob(TaskGLIntegrity, "error")
			return err
		}
		if drifted > 0 {
			metrics.ObserveJob(TaskGLIntegrity, "drift")
			return &IntegrityError{Periods: drifted}
		}
		metrics.ObserveJob(TaskGLIntegrity, "ok")
		return nil
	}
}

// IntegrityError reports how many periods failed the debit/credit sweep.
type IntegrityError struct {
	Periods int
}

func (e *IntegrityError) Error() string {
	return "gl integrity: unbalanced periods detected"
}
