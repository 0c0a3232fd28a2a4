package balances

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian-books/internal/accounts"
)

// AccountInfo is the slice of an account the aggregator needs.
type AccountInfo struct {
	ID            int64
	Code          string
	Name          string
	Type          accounts.AccountType
	NormalBalance accounts.NormalBalance
}

// LineTotals groups posted line sums for one account within a period.
type LineTotals struct {
	DebitTotal  int64
	CreditTotal int64
}

// TxRepository exposes the transactional slice used by Recalculate.
type TxRepository interface {
	PeriodID(ctx context.Context, year, month int) (int64, error)
	ListAccounts(ctx context.Context) ([]AccountInfo, error)
	PostedTotalsByAccount(ctx context.Context, periodID int64) (map[int64]LineTotals, error)
	ClosingBalances(ctx context.Context, year, month int) (map[int64]int64, error)
	ReplaceBalance(ctx context.Context, b AccountBalance) error
}

// Repository persists account balance snapshots.
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
		return errors.New("balances repository not initialised")
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

func (r *txRepository) PeriodID(ctx context.Context, year, month int) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2`, year, month).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPeriodNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]AccountInfo, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, type, normal_balance FROM accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var infos []AccountInfo
	for rows.Next() {
		var info AccountInfo
		if err := rows.Scan(&info.ID, &info.Code, &info.Name, &info.Type, &info.NormalBalance); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (r *txRepository) PostedTotalsByAccount(ctx context.Context, periodID int64) (map[int64]LineTotals, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.account_id,
COALESCE(SUM(l.amount) FILTER (WHERE l.direction='DEBIT'), 0),
COALESCE(SUM(l.amount) FILTER (WHERE l.direction='CREDIT'), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.period_id = $1 AND e.status = 'POSTED'
GROUP BY l.account_id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := map[int64]LineTotals{}
	for rows.Next() {
		var accountID int64
		var t LineTotals
		if err := rows.Scan(&accountID, &t.DebitTotal, &t.CreditTotal); err != nil {
			return nil, err
		}
		totals[accountID] = t
	}
	return totals, rows.Err()
}

func (r *txRepository) ClosingBalances(ctx context.Context, year, month int) (map[int64]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT account_id, closing_balance FROM account_balances
WHERE fiscal_year=$1 AND fiscal_month=$2`, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	closings := map[int64]int64{}
	for rows.Next() {
		var accountID, closing int64
		if err := rows.Scan(&accountID, &closing); err != nil {
			return nil, err
		}
		closings[accountID] = closing
	}
	return closings, rows.Err()
}

// ReplaceBalance writes the whole snapshot row, overwriting any prior run.
func (r *txRepository) ReplaceBalance(ctx context.Context, b AccountBalance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO account_balances
(account_id, fiscal_year, fiscal_month, opening_balance, debit_total, credit_total, closing_balance, calculated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (account_id, fiscal_year, fiscal_month) DO UPDATE SET
opening_balance=EXCLUDED.opening_balance,
debit_total=EXCLUDED.debit_total,
credit_total=EXCLUDED.credit_total,
closing_balance=EXCLUDED.closing_balance,
calculated_at=EXCLUDED.calculated_at`,
		b.AccountID, b.FiscalYear, b.FiscalMonth, b.OpeningBalance, b.DebitTotal, b.CreditTotal, b.ClosingBalance, b.CalculatedAt)
	return err
}

// GetBalance loads one snapshot row.
func (r *Repository) GetBalance(ctx context.Context, accountID int64, year, month int) (AccountBalance, error) {
	var b AccountBalance
	err := r.pool.QueryRow(ctx, `SELECT account_id, fiscal_year, fiscal_month, opening_balance, debit_total, credit_total, closing_balance, calculated_at
FROM account_balances WHERE account_id=$1 AND fiscal_year=$2 AND fiscal_month=$3`, accountID, year, month).
		Scan(&b.AccountID, &b.FiscalYear, &b.FiscalMonth, &b.OpeningBalance, &b.DebitTotal, &b.CreditTotal, &b.ClosingBalance, &b.CalculatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountBalance{}, ErrBalanceNotFound
		}
		return AccountBalance{}, err
	}
	return b, nil
}

// ListRows loads the trial balance rows joined with account metadata.
func (r *Repository) ListRows(ctx context.Context, year, month int) ([]TrialBalanceRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.account_id, a.code, a.name, a.type, a.normal_balance,
b.opening_balance, b.debit_total, b.credit_total, b.closing_balance
FROM account_balances b
JOIN accounts a ON a.id = b.account_id
WHERE b.fiscal_year=$1 AND b.fiscal_month=$2
ORDER BY a.code ASC`, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountID, &row.AccountCode, &row.AccountName, &row.AccountType, &row.NormalBalance,
			&row.OpeningBalance, &row.DebitTotal, &row.CreditTotal, &row.ClosingBalance); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PeriodExists reports whether a fiscal period row exists outside a transaction.
func (r *Repository) PeriodExists(ctx context.Context, year, month int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2)`, year, month).Scan(&exists)
	return exists, err
}
