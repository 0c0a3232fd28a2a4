package balances

import (
	"errors"
	"time"

	"github.com/meridian-books/meridian-books/internal/accounts"
)

var (
	ErrPeriodNotFound  = errors.New("balances: period not found")
	ErrBalanceNotFound = errors.New("balances: balance not calculated")
)

// AccountBalance is the stored per-account snapshot for one fiscal period.
// Rows are fully recomputed from posted lines, never patched in place, so a
// repeated recalculation always lands on the same values.
type AccountBalance struct {
	AccountID      int64     `json:"accountId"`
	FiscalYear     int       `json:"fiscalYear"`
	FiscalMonth    int       `json:"fiscalMonth"`
	OpeningBalance int64     `json:"openingBalance"`
	DebitTotal     int64     `json:"debitTotal"`
	CreditTotal    int64     `json:"creditTotal"`
	ClosingBalance int64     `json:"closingBalance"`
	CalculatedAt   time.Time `json:"calculatedAt"`
}

// Summary aggregates a recalculation run over all accounts in a period.
type Summary struct {
	FiscalYear        int   `json:"fiscalYear"`
	FiscalMonth       int   `json:"fiscalMonth"`
	AccountsProcessed int   `json:"accountsProcessed"`
	TotalDebits       int64 `json:"totalDebits"`
	TotalCredits      int64 `json:"totalCredits"`
	IsBalanced        bool  `json:"isBalanced"`
}

// TrialBalanceRow is one account's slice of the trial balance report.
type TrialBalanceRow struct {
	AccountID      int64  `json:"accountId"`
	AccountCode    string `json:"accountCode"`
	AccountName    string `json:"accountName"`
	AccountType    string `json:"accountType"`
	NormalBalance  string `json:"normalBalance"`
	OpeningBalance int64  `json:"openingBalance"`
	DebitTotal     int64  `json:"debitTotal"`
	CreditTotal    int64  `json:"creditTotal"`
	ClosingBalance int64  `json:"closingBalance"`
}

// TrialBalance is the period-wide projection of stored balances.
type TrialBalance struct {
	FiscalYear   int               `json:"fiscalYear"`
	FiscalMonth  int               `json:"fiscalMonth"`
	Rows         []TrialBalanceRow `json:"rows"`
	TotalDebits  int64             `json:"totalDebits"`
	TotalCredits int64             `json:"totalCredits"`
	IsBalanced   bool              `json:"isBalanced"`
}

// closingBalance applies the normal-balance formula: debit-normal accounts
// grow with debits, credit-normal accounts grow with credits.
func closingBalance(normal accounts.NormalBalance, opening, debit, credit int64) int64 {
	if normal == accounts.NormalBalanceCredit {
		return opening + credit - debit
	}
	return opening + debit - credit
}

// priorPeriod walks back one fiscal month.
func priorPeriod(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
