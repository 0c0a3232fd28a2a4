package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-books/meridian-books/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertBankAccount(ctx context.Context, linkedAccountID int64, bankName, accountNumber string) (BankAccount, error)
	GetBankAccount(ctx context.Context, id int64) (BankAccount, error)
	ListBankAccounts(ctx context.Context) ([]BankAccount, error)
	InsertRecon(ctx context.Context, in CreateInput) (Reconciliation, error)
	GetRecon(ctx context.Context, reconID int64) (Reconciliation, error)
	ListTransactions(ctx context.Context, reconID int64) ([]BankTransaction, error)
	ListItems(ctx context.Context, reconID int64) ([]ReconcilingItem, error)
}

// AuditPort records reconciliation mutations for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives bank statement reconciliation.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	events shared.EventPublisher
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, audit AuditPort, events shared.EventPublisher) *Service {
	return &Service{repo: repo, audit: audit, events: events, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateBankAccount registers a bank account against its GL cash account.
func (s *Service) CreateBankAccount(ctx context.Context, linkedAccountID int64, bankName, accountNumber, actor string) (BankAccount, error) {
	if linkedAccountID == 0 || bankName == "" || accountNumber == "" {
		return BankAccount{}, fmt.Errorf("%w: linked account, bank name, and account number are required", ErrInvalidInput)
	}
	account, err := s.repo.InsertBankAccount(ctx, linkedAccountID, bankName, accountNumber)
	if err != nil {
		return BankAccount{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "recon.bank_account.create",
			Entity:    "bank_account",
			EntityID:  fmt.Sprintf("%d", account.ID),
			NewValues: map[string]any{"bankName": bankName, "linkedAccountId": linkedAccountID},
			At:        s.now(),
		})
	}
	return account, nil
}

// GetBankAccount loads one bank account.
func (s *Service) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	return s.repo.GetBankAccount(ctx, id)
}

// ListBankAccounts returns all bank accounts.
func (s *Service) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	return s.repo.ListBankAccounts(ctx)
}

// Create opens a reconciliation in draft status.
func (s *Service) Create(ctx context.Context, in CreateInput) (Reconciliation, error) {
	if err := in.Validate(); err != nil {
		return Reconciliation{}, err
	}
	if _, err := s.repo.GetBankAccount(ctx, in.BankAccountID); err != nil {
		return Reconciliation{}, err
	}
	rec, err := s.repo.InsertRecon(ctx, in)
	if err != nil {
		return Reconciliation{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "recon.create",
			Entity:   "reconciliation",
			EntityID: fmt.Sprintf("%d", rec.ID),
			NewValues: map[string]any{
				"bankAccountId": in.BankAccountID,
				"fiscalYear":    in.FiscalYear,
				"fiscalMonth":   in.FiscalMonth,
			},
			At: s.now(),
		})
	}
	return rec, nil
}

// Get loads one reconciliation header.
func (s *Service) Get(ctx context.Context, reconID int64) (Reconciliation, error) {
	return s.repo.GetRecon(ctx, reconID)
}

// ListTransactions returns the imported statement lines.
func (s *Service) ListTransactions(ctx context.Context, reconID int64) ([]BankTransaction, error) {
	if _, err := s.repo.GetRecon(ctx, reconID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, reconID)
}

// ListItems returns the reconciling items.
func (s *Service) ListItems(ctx context.Context, reconID int64) ([]ReconcilingItem, error) {
	if _, err := s.repo.GetRecon(ctx, reconID); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, reconID)
}

// ImportStatement bulk-inserts statement lines, skipping lines already
// imported for this reconciliation with the same date, amount, and reference.
func (s *Service) ImportStatement(ctx context.Context, reconID int64, txns []TransactionInput, actor string) (ImportResult, error) {
	if len(txns) == 0 {
		return ImportResult{}, fmt.Errorf("%w: no transactions to import", ErrInvalidInput)
	}
	for _, txn := range txns {
		if txn.Date.IsZero() || txn.Amount == 0 {
			return ImportResult{}, fmt.Errorf("%w: each transaction needs a date and non-zero amount", ErrInvalidInput)
		}
	}
	var result ImportResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconForUpdate(ctx, reconID)
		if err != nil {
			return err
		}
		if rec.Status != ReconStatusDraft && rec.Status != ReconStatusInProgress {
			return fmt.Errorf("%w: import into %s reconciliation", ErrInvalidStatus, rec.Status)
		}
		for _, txn := range txns {
			dup, err := tx.TransactionExists(ctx, reconID, txn.Date, txn.Amount, txn.Reference)
			if err != nil {
				return err
			}
			if dup {
				result.DuplicatesSkipped++
				continue
			}
			if _, err := tx.InsertTransaction(ctx, reconID, txn); err != nil {
				return err
			}
			result.Imported++
		}
		return tx.MarkInProgress(ctx, reconID)
	})
	if err != nil {
		return ImportResult{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "recon.import",
			Entity:    "reconciliation",
			EntityID:  fmt.Sprintf("%d", reconID),
			NewValues: map[string]any{"imported": result.Imported, "duplicatesSkipped": result.DuplicatesSkipped},
			At:        s.now(),
		})
	}
	return result, nil
}

// MatchTransaction manually pairs one bank transaction with one journal line.
// Both sides must be unmatched.
func (s *Service) MatchTransaction(ctx context.Context, reconID, txnID, lineID int64, actor string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconForUpdate(ctx, reconID)
		if err != nil {
			return err
		}
		if rec.Status != ReconStatusDraft && rec.Status != ReconStatusInProgress {
			return fmt.Errorf("%w: match in %s reconciliation", ErrInvalidStatus, rec.Status)
		}
		matched, err := tx.JournalLineMatched(ctx, lineID)
		if err != nil {
			return err
		}
		if matched {
			return fmt.Errorf("%w: journal line %d", ErrAlreadyMatched, lineID)
		}
		return tx.MatchTransaction(ctx, reconID, txnID, lineID)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "recon.match",
			Entity:    "bank_transaction",
			EntityID:  fmt.Sprintf("%d", txnID),
			NewValues: map[string]any{"journalLineId": lineID},
			At:        s.now(),
		})
	}
	return nil
}

// AutoMatch greedily pairs unmatched statement lines against posted,
// unmatched journal lines on the linked cash account.
func (s *Service) AutoMatch(ctx context.Context, reconID int64, dateTolerance int, actor string) (AutoMatchResult, error) {
	if dateTolerance < 0 {
		return AutoMatchResult{}, fmt.Errorf("%w: date tolerance must be >= 0", ErrInvalidInput)
	}
	var result AutoMatchResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconForUpdate(ctx, reconID)
		if err != nil {
			return err
		}
		if rec.Status != ReconStatusDraft && rec.Status != ReconStatusInProgress {
			return fmt.Errorf("%w: match in %s reconciliation", ErrInvalidStatus, rec.Status)
		}
		account, err := tx.GetBankAccount(ctx, rec.BankAccountID)
		if err != nil {
			return err
		}
		txns, err := tx.ListUnmatchedTransactions(ctx, reconID)
		if err != nil {
			return err
		}
		candidates, err := tx.CandidateLines(ctx, account.LinkedAccountID, rec.FiscalYear, rec.FiscalMonth)
		if err != nil {
			return err
		}
		pairs, matchResult := greedyMatch(txns, candidates, dateTolerance)
		for _, pair := range pairs {
			if err := tx.MatchTransaction(ctx, reconID, pair.BankTransactionID, pair.JournalLineID); err != nil {
				return err
			}
		}
		result = matchResult
		return nil
	})
	if err != nil {
		return AutoMatchResult{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "recon.automatch",
			Entity:    "reconciliation",
			EntityID:  fmt.Sprintf("%d", reconID),
			NewValues: map[string]any{"matched": result.MatchedCount, "unmatched": result.UnmatchedCount},
			At:        s.now(),
		})
	}
	return result, nil
}

// AddReconcilingItem records a timing difference or an unbooked bank event.
func (s *Service) AddReconcilingItem(ctx context.Context, in ItemInput) (ReconcilingItem, error) {
	if err := in.Validate(); err != nil {
		return ReconcilingItem{}, err
	}
	var item ReconcilingItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconForUpdate(ctx, in.ReconciliationID)
		if err != nil {
			return err
		}
		if rec.Status != ReconStatusDraft && rec.Status != ReconStatusInProgress {
			return fmt.Errorf("%w: add item to %s reconciliation", ErrInvalidStatus, rec.Status)
		}
		item, err = tx.InsertItem(ctx, in)
		return err
	})
	if err != nil {
		return ReconcilingItem{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     in.Actor,
			Action:    "recon.item.add",
			Entity:    "reconciling_item",
			EntityID:  fmt.Sprintf("%d", item.ID),
			NewValues: map[string]any{"itemType": string(in.ItemType), "amount": in.Amount},
			At:        s.now(),
		})
	}
	return item, nil
}

// CalculateAdjustedBalances applies the reconciliation worksheet formulas
// over the recorded items, using exact minor-unit equality.
func (s *Service) CalculateAdjustedBalances(ctx context.Context, reconID int64) (AdjustedBalances, error) {
	rec, err := s.repo.GetRecon(ctx, reconID)
	if err != nil {
		return AdjustedBalances{}, err
	}
	items, err := s.repo.ListItems(ctx, reconID)
	if err != nil {
		return AdjustedBalances{}, err
	}
	return adjustedBalances(rec, items), nil
}

// Complete finishes a reconciliation. Every bank transaction must be matched
// and the adjusted balances must agree exactly.
func (s *Service) Complete(ctx context.Context, reconID int64, actor string) (Reconciliation, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconForUpdate(ctx, reconID)
		if err != nil {
			return err
		}
		if rec.Status != ReconStatusInProgress {
			return fmt.Errorf("%w: complete from %s", ErrInvalidStatus, rec.Status)
		}
		unmatched, err := tx.CountUnmatched(ctx, reconID)
		if err != nil {
			return err
		}
		if unmatched > 0 {
			return fmt.Errorf("%w: %d unmatched bank transactions", ErrNotReconciled, unmatched)
		}
		items, err := tx.ListItems(ctx, reconID)
		if err != nil {
			return err
		}
		adjusted := adjustedBalances(rec, items)
		if !adjusted.IsReconciled {
			return fmt.Errorf("%w: difference %d", ErrNotReconciled, adjusted.Difference)
		}
		return tx.SetCompleted(ctx, reconID, actor, s.now())
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "recon.complete",
			Entity:    "reconciliation",
			EntityID:  fmt.Sprintf("%d", reconID),
			NewValues: map[string]any{"status": string(ReconStatusCompleted)},
			At:        s.now(),
		})
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, shared.Event{
			Type:       "recon.completed",
			Entity:     "reconciliation",
			EntityID:   reconID,
			OccurredAt: s.now(),
		})
	}
	return s.repo.GetRecon(ctx, reconID)
}

// Approve finalises a completed reconciliation. Approved is terminal.
func (s *Service) Approve(ctx context.Context, reconID int64, actor string) (Reconciliation, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetReconForUpdate(ctx, reconID); err != nil {
			return err
		}
		return tx.SetApproved(ctx, reconID, actor, s.now())
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "recon.approve",
			Entity:    "reconciliation",
			EntityID:  fmt.Sprintf("%d", reconID),
			NewValues: map[string]any{"status": string(ReconStatusApproved)},
			At:        s.now(),
		})
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, shared.Event{
			Type:       "recon.approved",
			Entity:     "reconciliation",
			EntityID:   reconID,
			OccurredAt: s.now(),
		})
	}
	return s.repo.GetRecon(ctx, reconID)
}
