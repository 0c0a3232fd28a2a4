package accounts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeCOGS      AccountType = "COGS"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeRevenue, AccountTypeCOGS, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance is the side on which an account naturally increases.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// Valid reports whether n is a known normal balance side.
func (n NormalBalance) Valid() bool {
	return n == NormalBalanceDebit || n == NormalBalanceCredit
}

// Account models a chart of accounts node.
type Account struct {
	ID            int64
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	ParentID      *int64
	Description   string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateInput groups fields required to create an account.
type CreateInput struct {
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	ParentID      *int64
	Description   string
	Actor         string
}

// UpdateInput carries the descriptive fields that stay mutable after posting.
type UpdateInput struct {
	AccountID   int64
	Name        string
	Description string
	Actor       string
}

var (
	// ErrInvalidInput indicates malformed or incomplete account input.
	ErrInvalidInput = errors.New("accounts: invalid input")
	// ErrDuplicateCode indicates the account code is already taken.
	ErrDuplicateCode = errors.New("accounts: code already exists")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounts: account not found")
	// ErrAccountInactive indicates the account cannot accept postings.
	ErrAccountInactive = errors.New("accounts: account inactive")
	// ErrAccountReferenced indicates the account is referenced by posted lines.
	ErrAccountReferenced = errors.New("accounts: account referenced by posted lines")
)

// Validate ensures create input meets minimum criteria.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: code required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", ErrInvalidInput, in.Type)
	}
	if !in.NormalBalance.Valid() {
		return fmt.Errorf("%w: unknown normal balance %q", ErrInvalidInput, in.NormalBalance)
	}
	return nil
}
