package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryType enumerates journal entry origins.
type EntryType string

const (
	EntryTypeManual    EntryType = "MANUAL"
	EntryTypeSystem    EntryType = "SYSTEM"
	EntryTypeRecurring EntryType = "RECURRING"
	EntryTypeAdjusting EntryType = "ADJUSTING"
	EntryTypeClosing   EntryType = "CLOSING"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeManual, EntryTypeSystem, EntryTypeRecurring, EntryTypeAdjusting, EntryTypeClosing:
		return true
	}
	return false
}

// EntryStatus enumerates the entry lifecycle. Transitions are
// one-directional: DRAFT -> POSTED -> VOIDED.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoided EntryStatus = "VOIDED"
)

// Direction marks a line as debit or credit.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

// Entry captures a double-entry journal entry. Amounts on its lines are
// integer minor units so the balance invariant is exact.
type Entry struct {
	ID          int64
	UID         uuid.UUID
	EntryDate   time.Time
	Description string
	Reference   string
	Type        EntryType
	Status      EntryStatus
	PeriodID    int64
	PostedBy    string
	PostedAt    *time.Time
	VoidedBy    string
	VoidedAt    *time.Time
	VoidReason  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []Line
}

// Line stores a single debit or credit amount against an account.
type Line struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Direction Direction
	Amount    int64
	Memo      string
}

// LineInput describes a journal line in a create request.
type LineInput struct {
	AccountID int64
	Direction Direction
	Amount    int64
	Memo      string
}

// CreateInput groups fields required to create a journal entry.
type CreateInput struct {
	EntryDate   time.Time
	Description string
	Reference   string
	Type        EntryType
	Lines       []LineInput
	Actor       string
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	EntryID  int64
	Reason   string
	VoidedBy string
}

var (
	// ErrInvalidInput indicates malformed entry input.
	ErrInvalidInput = errors.New("journal: invalid input")
	// ErrUnbalanced indicates debit total != credit total.
	ErrUnbalanced = errors.New("journal: lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("journal: entry requires at least two lines")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("journal: entry not found")
	// ErrPeriodNotFound indicates no fiscal period covers the entry date.
	ErrPeriodNotFound = errors.New("journal: fiscal period not found")
	// ErrPeriodClosed indicates the target period does not accept postings.
	ErrPeriodClosed = errors.New("journal: period not open")
	// ErrPeriodLocked indicates the target period is locked and rejects all
	// changes regardless of policy.
	ErrPeriodLocked = errors.New("journal: period locked")
	// ErrInvalidStatus indicates an illegal lifecycle transition.
	ErrInvalidStatus = errors.New("journal: invalid status transition")
	// ErrAccountUnknown indicates a line references a missing or inactive account.
	ErrAccountUnknown = errors.New("journal: unknown or inactive account")
)

// Validate ensures posting input meets the balance invariant before any
// database work happens.
func (in CreateInput) Validate() error {
	if in.EntryDate.IsZero() {
		return fmt.Errorf("%w: entry date required", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown entry type %q", ErrInvalidInput, in.Type)
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit int64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("%w: line %d missing account", ErrInvalidInput, idx)
		}
		if !line.Direction.Valid() {
			return fmt.Errorf("%w: line %d has unknown direction", ErrInvalidInput, idx)
		}
		if line.Amount <= 0 {
			return fmt.Errorf("%w: line %d amount must be positive", ErrInvalidInput, idx)
		}
		if line.Direction == DirectionDebit {
			debit += line.Amount
		} else {
			credit += line.Amount
		}
	}
	if debit != credit {
		return fmt.Errorf("%w: debits %d, credits %d", ErrUnbalanced, debit, credit)
	}
	if debit == 0 {
		return fmt.Errorf("%w: entry total must be positive", ErrInvalidInput)
	}
	return nil
}

// DebitTotal sums the entry's debit lines.
func (e Entry) DebitTotal() int64 {
	var total int64
	for _, line := range e.Lines {
		if line.Direction == DirectionDebit {
			total += line.Amount
		}
	}
	return total
}

// CreditTotal sums the entry's credit lines.
func (e Entry) CreditTotal() int64 {
	var total int64
	for _, line := range e.Lines {
		if line.Direction == DirectionCredit {
			total += line.Amount
		}
	}
	return total
}
