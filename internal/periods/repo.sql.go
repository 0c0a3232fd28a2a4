package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian-books/internal/shared"
)

// TxRepository exposes the transactional slice used by Close, Reopen, and Lock.
type TxRepository interface {
	GetForUpdate(ctx context.Context, periodID int64) (Period, error)
	PostedTotals(ctx context.Context, periodID int64) (debits, credits int64, err error)
	SetClosed(ctx context.Context, periodID int64, closedBy string, at time.Time) error
	SetReopened(ctx context.Context, periodID int64) error
	SetLocked(ctx context.Context, periodID int64) error
}

// Repository persists fiscal periods.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("periods repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const periodColumns = `id, fiscal_year, fiscal_month, start_date, end_date, status, closed_by, closed_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.FiscalYear, &p.FiscalMonth, &p.StartDate, &p.EndDate, &p.Status,
		&p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

// Insert creates a period in OPEN status. The unique index on
// (fiscal_year, fiscal_month) rejects duplicates.
func (r *Repository) Insert(ctx context.Context, in CreateInput) (Period, error) {
	start, end := in.Bounds()
	row := r.pool.QueryRow(ctx, `INSERT INTO fiscal_periods (fiscal_year, fiscal_month, start_date, end_date, status)
VALUES ($1,$2,$3,$4,'OPEN') RETURNING `+periodColumns, in.FiscalYear, in.FiscalMonth, start, end)
	period, err := scanPeriod(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Period{}, ErrDuplicatePeriod
		}
		return Period{}, err
	}
	return period, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Get loads a period by identifier.
func (r *Repository) Get(ctx context.Context, periodID int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, periodID))
}

// GetByMonth loads a period by its (year, month) key.
func (r *Repository) GetByMonth(ctx context.Context, year, month int) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2`, year, month))
}

// List returns periods newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Period, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
ORDER BY fiscal_year DESC, fiscal_month DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.FiscalYear, &p.FiscalMonth, &p.StartDate, &p.EndDate, &p.Status,
			&p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// Count returns the total number of periods.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fiscal_periods`).Scan(&total)
	return total, err
}

// GetForUpdate locks the period row for the rest of the transaction so a
// concurrent Post either finishes before the close's balance check or fails
// its own period-status re-check.
func (r *txRepository) GetForUpdate(ctx context.Context, periodID int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1 FOR UPDATE`, periodID))
}

// PostedTotals sums debit and credit amounts over all posted lines in the period.
func (r *txRepository) PostedTotals(ctx context.Context, periodID int64) (int64, int64, error) {
	var debits, credits int64
	err := r.tx.QueryRow(ctx, `SELECT
COALESCE(SUM(l.amount) FILTER (WHERE l.direction='DEBIT'), 0),
COALESCE(SUM(l.amount) FILTER (WHERE l.direction='CREDIT'), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.period_id = $1 AND e.status = 'POSTED'`, periodID).Scan(&debits, &credits)
	return debits, credits, err
}

func (r *txRepository) SetClosed(ctx context.Context, periodID int64, closedBy string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, closed_by=$3, closed_at=$4, updated_at=NOW()
WHERE id=$1 AND status=$5`, periodID, shared.PeriodStatusClosed, closedBy, at, shared.PeriodStatusOpen)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *txRepository) SetReopened(ctx context.Context, periodID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, closed_by='', closed_at=NULL, updated_at=NOW()
WHERE id=$1 AND status=$3`, periodID, shared.PeriodStatusOpen, shared.PeriodStatusClosed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *txRepository) SetLocked(ctx context.Context, periodID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, updated_at=NOW()
WHERE id=$1 AND status=$3`, periodID, shared.PeriodStatusLocked, shared.PeriodStatusClosed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}
