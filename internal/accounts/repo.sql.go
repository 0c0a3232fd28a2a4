package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists chart of accounts entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, code, name, type, normal_balance, parent_id, description, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.Description, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// Insert stores a new account, mapping the unique code violation.
func (r *Repository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO accounts (code, name, type, normal_balance, parent_id, description, is_active)
VALUES ($1,$2,$3,$4,$5,$6,TRUE) RETURNING `+accountColumns, in.Code, in.Name, in.Type, in.NormalBalance, in.ParentID, in.Description)
	account, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Get fetches an account by id.
func (r *Repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

// GetByCode fetches an account by its unique code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

// List returns accounts ordered by code.
func (r *Repository) List(ctx context.Context, activeOnly bool, limit, offset int) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY code LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.Description, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Count returns the number of accounts matching the filter.
func (r *Repository) Count(ctx context.Context, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM accounts`
	if activeOnly {
		query += ` WHERE is_active`
	}
	var total int
	if err := r.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// UpdateDescriptive updates the mutable descriptive fields.
func (r *Repository) UpdateDescriptive(ctx context.Context, id int64, name, description string) (Account, error) {
	row := r.pool.QueryRow(ctx, `UPDATE accounts SET name=$2, description=$3, updated_at=NOW() WHERE id=$1 RETURNING `+accountColumns, id, name, description)
	return scanAccount(row)
}

// Deactivate flags the account inactive; the row is never removed.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE accounts SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Delete removes the row. The service checks for posted references first.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// HasPostedLines reports whether posted journal lines reference the account.
func (r *Repository) HasPostedLines(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.status='POSTED')`, id).Scan(&exists)
	return exists, err
}
