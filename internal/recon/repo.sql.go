package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepository exposes the transactional slice of reconciliation persistence.
type TxRepository interface {
	GetReconForUpdate(ctx context.Context, reconID int64) (Reconciliation, error)
	TransactionExists(ctx context.Context, reconID int64, date time.Time, amount int64, reference string) (bool, error)
	InsertTransaction(ctx context.Context, reconID int64, in TransactionInput) (BankTransaction, error)
	MarkInProgress(ctx context.Context, reconID int64) error
	JournalLineMatched(ctx context.Context, lineID int64) (bool, error)
	GetBankAccount(ctx context.Context, id int64) (BankAccount, error)
	MatchTransaction(ctx context.Context, reconID, txnID, lineID int64) error
	ListUnmatchedTransactions(ctx context.Context, reconID int64) ([]BankTransaction, error)
	CandidateLines(ctx context.Context, accountID int64, year, month int) ([]JournalLineRef, error)
	InsertItem(ctx context.Context, in ItemInput) (ReconcilingItem, error)
	ListItems(ctx context.Context, reconID int64) ([]ReconcilingItem, error)
	CountUnmatched(ctx context.Context, reconID int64) (int, error)
	SetCompleted(ctx context.Context, reconID int64, completedBy string, at time.Time) error
	SetApproved(ctx context.Context, reconID int64, approvedBy string, at time.Time) error
}

// Repository persists reconciliation entities.
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
		return errors.New("recon repository not initialised")
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

const reconColumns = `id, bank_account_id, fiscal_year, fiscal_month, statement_ending_balance, book_ending_balance, status, completed_by, completed_at, approved_by, approved_at, created_at, updated_at`

func scanRecon(row pgx.Row) (Reconciliation, error) {
	var rec Reconciliation
	err := row.Scan(&rec.ID, &rec.BankAccountID, &rec.FiscalYear, &rec.FiscalMonth,
		&rec.StatementEndingBalance, &rec.BookEndingBalance, &rec.Status,
		&rec.CompletedBy, &rec.CompletedAt, &rec.ApprovedBy, &rec.ApprovedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reconciliation{}, ErrReconNotFound
		}
		return Reconciliation{}, err
	}
	return rec, nil
}

// InsertBankAccount registers a bank account linked to a GL cash account.
func (r *Repository) InsertBankAccount(ctx context.Context, linkedAccountID int64, bankName, accountNumber string) (BankAccount, error) {
	var b BankAccount
	err := r.pool.QueryRow(ctx, `INSERT INTO bank_accounts (linked_account_id, bank_name, account_number, status)
VALUES ($1,$2,$3,'ACTIVE') RETURNING id, linked_account_id, bank_name, account_number, status, created_at, updated_at`,
		linkedAccountID, bankName, accountNumber).
		Scan(&b.ID, &b.LinkedAccountID, &b.BankName, &b.AccountNumber, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// GetBankAccount loads one bank account.
func (r *Repository) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	return getBankAccount(ctx, r.pool, id)
}

type rowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getBankAccount(ctx context.Context, q rowQueryer, id int64) (BankAccount, error) {
	var b BankAccount
	err := q.QueryRow(ctx, `SELECT id, linked_account_id, bank_name, account_number, status, created_at, updated_at
FROM bank_accounts WHERE id=$1`, id).
		Scan(&b.ID, &b.LinkedAccountID, &b.BankName, &b.AccountNumber, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, ErrBankAccountMissing
		}
		return BankAccount{}, err
	}
	return b, nil
}

// ListBankAccounts returns bank accounts ordered by id.
func (r *Repository) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, linked_account_id, bank_name, account_number, status, created_at, updated_at
FROM bank_accounts ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankAccount
	for rows.Next() {
		var b BankAccount
		if err := rows.Scan(&b.ID, &b.LinkedAccountID, &b.BankName, &b.AccountNumber, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertRecon opens a reconciliation in draft status.
func (r *Repository) InsertRecon(ctx context.Context, in CreateInput) (Reconciliation, error) {
	return scanRecon(r.pool.QueryRow(ctx, `INSERT INTO reconciliations
(bank_account_id, fiscal_year, fiscal_month, statement_ending_balance, book_ending_balance, status)
VALUES ($1,$2,$3,$4,$5,'DRAFT') RETURNING `+reconColumns,
		in.BankAccountID, in.FiscalYear, in.FiscalMonth, in.StatementEndingBalance, in.BookEndingBalance))
}

// GetRecon loads one reconciliation header.
func (r *Repository) GetRecon(ctx context.Context, reconID int64) (Reconciliation, error) {
	return scanRecon(r.pool.QueryRow(ctx, `SELECT `+reconColumns+` FROM reconciliations WHERE id=$1`, reconID))
}

// ListTransactions returns all statement lines for a reconciliation.
func (r *Repository) ListTransactions(ctx context.Context, reconID int64) ([]BankTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, reconciliation_id, txn_date, description, amount, reference, match_status, matched_journal_line_id
FROM bank_transactions WHERE reconciliation_id=$1 ORDER BY txn_date ASC, id ASC`, reconID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListItems returns the reconciling items outside a transaction.
func (r *Repository) ListItems(ctx context.Context, reconID int64) ([]ReconcilingItem, error) {
	return listItems(ctx, r.pool, reconID)
}

func (r *txRepository) GetReconForUpdate(ctx context.Context, reconID int64) (Reconciliation, error) {
	return scanRecon(r.tx.QueryRow(ctx, `SELECT `+reconColumns+` FROM reconciliations WHERE id=$1 FOR UPDATE`, reconID))
}

func (r *txRepository) TransactionExists(ctx context.Context, reconID int64, date time.Time, amount int64, reference string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bank_transactions
WHERE reconciliation_id=$1 AND txn_date=$2 AND amount=$3 AND reference=$4)`, reconID, date, amount, reference).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, reconID int64, in TransactionInput) (BankTransaction, error) {
	var t BankTransaction
	err := r.tx.QueryRow(ctx, `INSERT INTO bank_transactions
(reconciliation_id, txn_date, description, amount, reference, match_status)
VALUES ($1,$2,$3,$4,$5,'UNMATCHED')
RETURNING id, reconciliation_id, txn_date, description, amount, reference, match_status, matched_journal_line_id`,
		reconID, in.Date, in.Description, in.Amount, in.Reference).
		Scan(&t.ID, &t.ReconciliationID, &t.Date, &t.Description, &t.Amount, &t.Reference, &t.MatchStatus, &t.MatchedJournalLineID)
	return t, err
}

func (r *txRepository) MarkInProgress(ctx context.Context, reconID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE reconciliations SET status='IN_PROGRESS', updated_at=NOW()
WHERE id=$1 AND status='DRAFT'`, reconID)
	return err
}

func (r *txRepository) JournalLineMatched(ctx context.Context, lineID int64) (bool, error) {
	var matched bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bank_transactions WHERE matched_journal_line_id=$1)`, lineID).Scan(&matched)
	return matched, err
}

func (r *txRepository) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	return getBankAccount(ctx, r.tx, id)
}

// MatchTransaction records a pairing. The update is keyed on the owning
// reconciliation so a transaction id from another statement never matches,
// and the status guard rejects a transaction a concurrent call already took.
func (r *txRepository) MatchTransaction(ctx context.Context, reconID, txnID, lineID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_transactions SET match_status='MATCHED', matched_journal_line_id=$3
WHERE id=$1 AND reconciliation_id=$2 AND match_status='UNMATCHED'`, txnID, reconID, lineID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bank_transactions WHERE id=$1 AND reconciliation_id=$2)`,
			txnID, reconID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: transaction %d", ErrTxnNotFound, txnID)
		}
		return ErrAlreadyMatched
	}
	return nil
}

func (r *txRepository) ListUnmatchedTransactions(ctx context.Context, reconID int64) ([]BankTransaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, reconciliation_id, txn_date, description, amount, reference, match_status, matched_journal_line_id
FROM bank_transactions WHERE reconciliation_id=$1 AND match_status='UNMATCHED' ORDER BY txn_date ASC, id ASC`, reconID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// CandidateLines returns posted lines on the linked cash account within the
// reconciliation's fiscal period that no bank transaction references yet.
func (r *txRepository) CandidateLines(ctx context.Context, accountID int64, year, month int) ([]JournalLineRef, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.entry_id, e.entry_date, l.direction, l.amount
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN fiscal_periods p ON p.id = e.period_id
WHERE l.account_id=$1 AND e.status='POSTED' AND p.fiscal_year=$2 AND p.fiscal_month=$3
AND NOT EXISTS (SELECT 1 FROM bank_transactions t WHERE t.matched_journal_line_id = l.id)
ORDER BY e.entry_date ASC, l.id ASC`, accountID, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalLineRef
	for rows.Next() {
		var ref JournalLineRef
		if err := rows.Scan(&ref.LineID, &ref.EntryID, &ref.EntryDate, &ref.Direction, &ref.Amount); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertItem(ctx context.Context, in ItemInput) (ReconcilingItem, error) {
	var item ReconcilingItem
	err := r.tx.QueryRow(ctx, `INSERT INTO reconciling_items
(reconciliation_id, item_type, amount, item_date, description, requires_journal_entry)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, reconciliation_id, item_type, amount, item_date, description, requires_journal_entry`,
		in.ReconciliationID, in.ItemType, in.Amount, in.Date, in.Description, in.RequiresJournalEntry).
		Scan(&item.ID, &item.ReconciliationID, &item.ItemType, &item.Amount, &item.Date, &item.Description, &item.RequiresJournalEntry)
	return item, err
}

func (r *txRepository) ListItems(ctx context.Context, reconID int64) ([]ReconcilingItem, error) {
	return listItems(ctx, r.tx, reconID)
}

func (r *txRepository) CountUnmatched(ctx context.Context, reconID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM bank_transactions
WHERE reconciliation_id=$1 AND match_status='UNMATCHED'`, reconID).Scan(&count)
	return count, err
}

func (r *txRepository) SetCompleted(ctx context.Context, reconID int64, completedBy string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE reconciliations SET status='COMPLETED', completed_by=$2, completed_at=$3, updated_at=NOW()
WHERE id=$1 AND status='IN_PROGRESS'`, reconID, completedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) SetApproved(ctx context.Context, reconID int64, approvedBy string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE reconciliations SET status='APPROVED', approved_by=$2, approved_at=$3, updated_at=NOW()
WHERE id=$1 AND status='COMPLETED'`, reconID, approvedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q queryer, reconID int64) ([]ReconcilingItem, error) {
	rows, err := q.Query(ctx, `SELECT id, reconciliation_id, item_type, amount, item_date, description, requires_journal_entry
FROM reconciling_items WHERE reconciliation_id=$1 ORDER BY item_date ASC, id ASC`, reconID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReconcilingItem
	for rows.Next() {
		var item ReconcilingItem
		if err := rows.Scan(&item.ID, &item.ReconciliationID, &item.ItemType, &item.Amount, &item.Date, &item.Description, &item.RequiresJournalEntry); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func collectTransactions(rows pgx.Rows) ([]BankTransaction, error) {
	var out []BankTransaction
	for rows.Next() {
		var t BankTransaction
		if err := rows.Scan(&t.ID, &t.ReconciliationID, &t.Date, &t.Description, &t.Amount, &t.Reference, &t.MatchStatus, &t.MatchedJournalLineID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
