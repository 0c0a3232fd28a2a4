package journal

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PeriodRef is the slice of the fiscal period the journal engine needs for
// its posting guards.
type PeriodRef struct {
	ID          int64
	FiscalYear  int
	FiscalMonth int
	Status      string
}

// AccountRef is the slice of an account the journal engine validates against.
type AccountRef struct {
	ID       int64
	IsActive bool
}

// ListFilter narrows entry listings.
type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Status EntryStatus
	Type   EntryType
	Limit  int
	Offset int
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetAccounts(ctx context.Context, ids []int64) (map[int64]AccountRef, error)
	GetPeriodByMonth(ctx context.Context, year, month int) (PeriodRef, error)
	GetPeriodForUpdate(ctx context.Context, periodID int64) (PeriodRef, error)
	InsertEntry(ctx context.Context, in CreateInput, uid uuid.UUID, periodID int64) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error)
	GetEntryWithLines(ctx context.Context, entryID int64) (Entry, error)
	MarkPosted(ctx context.Context, entryID int64, postedBy string, at time.Time) error
	MarkVoided(ctx context.Context, entryID int64, reason, voidedBy string, at time.Time) error
	DeleteDraft(ctx context.Context, entryID int64) error
}

// Repository persists journal entities.
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
		return errors.New("journal repository not initialised")
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

const entryColumns = `id, uid, entry_date, description, reference, type, status, period_id, posted_by, posted_at, voided_by, voided_at, void_reason, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.UID, &e.EntryDate, &e.Description, &e.Reference, &e.Type, &e.Status, &e.PeriodID,
		&e.PostedBy, &e.PostedAt, &e.VoidedBy, &e.VoidedAt, &e.VoidReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) GetAccounts(ctx context.Context, ids []int64) (map[int64]AccountRef, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, is_active FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	refs := make(map[int64]AccountRef, len(ids))
	for rows.Next() {
		var ref AccountRef
		if err := rows.Scan(&ref.ID, &ref.IsActive); err != nil {
			return nil, err
		}
		refs[ref.ID] = ref
	}
	return refs, rows.Err()
}

func (r *txRepository) GetPeriodByMonth(ctx context.Context, year, month int) (PeriodRef, error) {
	var p PeriodRef
	err := r.tx.QueryRow(ctx, `SELECT id, fiscal_year, fiscal_month, status FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2`, year, month).
		Scan(&p.ID, &p.FiscalYear, &p.FiscalMonth, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodRef{}, ErrPeriodNotFound
		}
		return PeriodRef{}, err
	}
	return p, nil
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, periodID int64) (PeriodRef, error) {
	var p PeriodRef
	err := r.tx.QueryRow(ctx, `SELECT id, fiscal_year, fiscal_month, status FROM fiscal_periods WHERE id=$1 FOR UPDATE`, periodID).
		Scan(&p.ID, &p.FiscalYear, &p.FiscalMonth, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodRef{}, ErrPeriodNotFound
		}
		return PeriodRef{}, err
	}
	return p, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in CreateInput, uid uuid.UUID, periodID int64) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (uid, entry_date, description, reference, type, status, period_id)
VALUES ($1,$2,$3,$4,$5,'DRAFT',$6) RETURNING `+entryColumns, uid, in.EntryDate, in.Description, in.Reference, in.Type, periodID)
	return scanEntry(row)
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		var inserted Line
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, direction, amount, memo)
VALUES ($1,$2,$3,$4,$5) RETURNING id, entry_id, account_id, direction, amount, memo`,
			entryID, line.AccountID, line.Direction, line.Amount, line.Memo).
			Scan(&inserted.ID, &inserted.EntryID, &inserted.AccountID, &inserted.Direction, &inserted.Amount, &inserted.Memo)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (Entry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		return Entry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, direction, amount, memo FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Direction, &line.Amount, &line.Memo); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// MarkPosted flips DRAFT to POSTED. The status guard makes concurrent posts
// of the same entry race safely: exactly one update affects a row.
func (r *txRepository) MarkPosted(ctx context.Context, entryID int64, postedBy string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_by=$2, posted_at=$3, updated_at=NOW()
WHERE id=$1 AND status='DRAFT'`, entryID, postedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// MarkVoided flips POSTED to VOIDED under the same status-guard pattern.
func (r *txRepository) MarkVoided(ctx context.Context, entryID int64, reason, voidedBy string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='VOIDED', void_reason=$2, voided_by=$3, voided_at=$4, updated_at=NOW()
WHERE id=$1 AND status='POSTED'`, entryID, reason, voidedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// DeleteDraft removes a never-posted entry and its lines.
func (r *txRepository) DeleteDraft(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1 AND status='DRAFT'`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// Get loads an entry with lines outside a transaction.
func (r *Repository) Get(ctx context.Context, entryID int64) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		return Entry{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, account_id, direction, amount, memo FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Direction, &line.Amount, &line.Memo); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// List returns entries matching the filter, newest first, without lines.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, value any) {
		query += ` AND ` + clause + `$` + strconv.Itoa(idx)
		args = append(args, value)
		idx++
	}
	if filter.From != nil {
		add(`entry_date >= `, *filter.From)
	}
	if filter.To != nil {
		add(`entry_date <= `, *filter.To)
	}
	if filter.Status != "" {
		add(`status = `, filter.Status)
	}
	if filter.Type != "" {
		add(`type = `, filter.Type)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY entry_date DESC, id DESC LIMIT $` + strconv.Itoa(idx) + ` OFFSET $` + strconv.Itoa(idx+1)
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UID, &e.EntryDate, &e.Description, &e.Reference, &e.Type, &e.Status, &e.PeriodID,
			&e.PostedBy, &e.PostedAt, &e.VoidedBy, &e.VoidedAt, &e.VoidReason, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

