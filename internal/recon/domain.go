package recon

import (
	"errors"
	"fmt"
	"time"
)

// BankAccountStatus enumerates external bank account states.
type BankAccountStatus string

const (
	BankAccountActive   BankAccountStatus = "ACTIVE"
	BankAccountInactive BankAccountStatus = "INACTIVE"
	BankAccountClosed   BankAccountStatus = "CLOSED"
)

// ReconStatus enumerates the reconciliation lifecycle. Approved is terminal.
type ReconStatus string

const (
	ReconStatusDraft      ReconStatus = "DRAFT"
	ReconStatusInProgress ReconStatus = "IN_PROGRESS"
	ReconStatusCompleted  ReconStatus = "COMPLETED"
	ReconStatusApproved   ReconStatus = "APPROVED"
)

// MatchStatus marks whether a bank transaction has been paired with a
// journal line.
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "UNMATCHED"
	MatchStatusMatched   MatchStatus = "MATCHED"
)

// ItemType enumerates reconciling item categories.
type ItemType string

const (
	ItemOutstandingCheck ItemType = "OUTSTANDING_CHECK"
	ItemDepositInTransit ItemType = "DEPOSIT_IN_TRANSIT"
	ItemBankFee          ItemType = "BANK_FEE"
	ItemBankInterest     ItemType = "BANK_INTEREST"
	ItemNSFCheck         ItemType = "NSF_CHECK"
	ItemAdjustment       ItemType = "ADJUSTMENT"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemOutstandingCheck, ItemDepositInTransit, ItemBankFee,
		ItemBankInterest, ItemNSFCheck, ItemAdjustment:
		return true
	}
	return false
}

// BankAccount links an external bank account to its GL cash account.
type BankAccount struct {
	ID              int64             `json:"id"`
	LinkedAccountID int64             `json:"linkedAccountId"`
	BankName        string            `json:"bankName"`
	AccountNumber   string            `json:"accountNumber"`
	Status          BankAccountStatus `json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Reconciliation is one bank statement reconciliation for a fiscal month.
type Reconciliation struct {
	ID                     int64       `json:"id"`
	BankAccountID          int64       `json:"bankAccountId"`
	FiscalYear             int         `json:"fiscalYear"`
	FiscalMonth            int         `json:"fiscalMonth"`
	StatementEndingBalance int64       `json:"statementEndingBalance"`
	BookEndingBalance      int64       `json:"bookEndingBalance"`
	Status                 ReconStatus `json:"status"`
	CompletedBy            string      `json:"completedBy,omitempty"`
	CompletedAt            *time.Time  `json:"completedAt,omitempty"`
	ApprovedBy             string      `json:"approvedBy,omitempty"`
	ApprovedAt             *time.Time  `json:"approvedAt,omitempty"`
	CreatedAt              time.Time   `json:"createdAt"`
	UpdatedAt              time.Time   `json:"updatedAt"`
}

// BankTransaction is one imported statement line. Amount is signed: deposits
// positive, withdrawals negative.
type BankTransaction struct {
	ID                   int64       `json:"id"`
	ReconciliationID     int64       `json:"reconciliationId"`
	Date                 time.Time   `json:"date"`
	Description          string      `json:"description"`
	Amount               int64       `json:"amount"`
	Reference            string      `json:"reference"`
	MatchStatus          MatchStatus `json:"matchStatus"`
	MatchedJournalLineID *int64      `json:"matchedJournalLineId,omitempty"`
}

// ReconcilingItem records a timing or recording difference between bank and
// book that is not an error.
type ReconcilingItem struct {
	ID                   int64     `json:"id"`
	ReconciliationID     int64     `json:"reconciliationId"`
	ItemType             ItemType  `json:"itemType"`
	Amount               int64     `json:"amount"`
	Date                 time.Time `json:"date"`
	Description          string    `json:"description"`
	RequiresJournalEntry bool      `json:"requiresJournalEntry"`
}

// JournalLineRef is the slice of a posted journal line offered to matching.
type JournalLineRef struct {
	LineID    int64     `json:"lineId"`
	EntryID   int64     `json:"entryId"`
	EntryDate time.Time `json:"entryDate"`
	Direction string    `json:"direction"`
	Amount    int64     `json:"amount"`
}

// AdjustedBalances is the output of CalculateAdjustedBalances.
type AdjustedBalances struct {
	AdjustedBank int64 `json:"adjustedBank"`
	AdjustedBook int64 `json:"adjustedBook"`
	Difference   int64 `json:"difference"`
	IsReconciled bool  `json:"isReconciled"`
}

var (
	ErrInvalidInput       = errors.New("recon: invalid input")
	ErrBankAccountMissing = errors.New("recon: bank account not found")
	ErrReconNotFound      = errors.New("recon: reconciliation not found")
	ErrTxnNotFound        = errors.New("recon: bank transaction not found")
	ErrAlreadyMatched     = errors.New("recon: already matched")
	ErrInvalidStatus      = errors.New("recon: invalid status transition")
	ErrNotReconciled      = errors.New("recon: balances not reconciled")
)

// CreateInput opens a new reconciliation in draft status.
type CreateInput struct {
	BankAccountID          int64
	FiscalYear             int
	FiscalMonth            int
	StatementEndingBalance int64
	BookEndingBalance      int64
	Actor                  string
}

func (in CreateInput) Validate() error {
	if in.BankAccountID == 0 {
		return fmt.Errorf("%w: bank account is required", ErrInvalidInput)
	}
	if in.FiscalMonth < 1 || in.FiscalMonth > 12 {
		return fmt.Errorf("%w: fiscal month must be 1..12", ErrInvalidInput)
	}
	if in.FiscalYear < 1900 || in.FiscalYear > 2200 {
		return fmt.Errorf("%w: fiscal year out of range", ErrInvalidInput)
	}
	return nil
}

// TransactionInput is one statement line offered to ImportStatement.
type TransactionInput struct {
	Date        time.Time
	Description string
	Amount      int64
	Reference   string
}

// ItemInput creates a reconciling item.
type ItemInput struct {
	ReconciliationID     int64
	ItemType             ItemType
	Amount               int64
	Date                 time.Time
	Description          string
	RequiresJournalEntry bool
	Actor                string
}

func (in ItemInput) Validate() error {
	if !in.ItemType.Valid() {
		return fmt.Errorf("%w: unknown item type %q", ErrInvalidInput, in.ItemType)
	}
	if in.Amount == 0 {
		return fmt.Errorf("%w: amount must be non-zero", ErrInvalidInput)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	return nil
}

// ImportResult summarises one bulk statement import.
type ImportResult struct {
	Imported          int `json:"imported"`
	DuplicatesSkipped int `json:"duplicatesSkipped"`
}

// AutoMatchResult summarises one greedy matching run.
type AutoMatchResult struct {
	MatchedCount   int `json:"matchedCount"`
	UnmatchedCount int `json:"unmatchedCount"`
}
