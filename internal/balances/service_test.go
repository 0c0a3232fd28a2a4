package balances

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-books/meridian-books/internal/accounts"
)

type periodKey struct {
	year  int
	month int
}

type balanceKey struct {
	accountID int64
	year      int
	month     int
}

type stubRepo struct {
	periods  map[periodKey]int64
	accounts []AccountInfo
	totals   map[int64]map[int64]LineTotals
	balances map[balanceKey]AccountBalance
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		periods: map[periodKey]int64{{2026, 1}: 1},
		accounts: []AccountInfo{
			{ID: 1, Code: "1030", Name: "Inventory", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit},
			{ID: 2, Code: "3010", Name: "Capital", Type: accounts.AccountTypeEquity, NormalBalance: accounts.NormalBalanceCredit},
		},
		totals:   map[int64]map[int64]LineTotals{},
		balances: map[balanceKey]AccountBalance{},
	}
}

func (r *stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *stubRepo) PeriodID(ctx context.Context, year, month int) (int64, error) {
	id, ok := r.periods[periodKey{year, month}]
	if !ok {
		return 0, ErrPeriodNotFound
	}
	return id, nil
}

func (r *stubRepo) ListAccounts(ctx context.Context) ([]AccountInfo, error) {
	return r.accounts, nil
}

func (r *stubRepo) PostedTotalsByAccount(ctx context.Context, periodID int64) (map[int64]LineTotals, error) {
	return r.totals[periodID], nil
}

func (r *stubRepo) ClosingBalances(ctx context.Context, year, month int) (map[int64]int64, error) {
	closings := map[int64]int64{}
	for key, b := range r.balances {
		if key.year == year && key.month == month {
			closings[key.accountID] = b.ClosingBalance
		}
	}
	return closings, nil
}

func (r *stubRepo) ReplaceBalance(ctx context.Context, b AccountBalance) error {
	r.balances[balanceKey{b.AccountID, b.FiscalYear, b.FiscalMonth}] = b
	return nil
}

func (r *stubRepo) GetBalance(ctx context.Context, accountID int64, year, month int) (AccountBalance, error) {
	b, ok := r.balances[balanceKey{accountID, year, month}]
	if !ok {
		return AccountBalance{}, ErrBalanceNotFound
	}
	return b, nil
}

func (r *stubRepo) ListRows(ctx context.Context, year, month int) ([]TrialBalanceRow, error) {
	var rows []TrialBalanceRow
	for _, info := range r.accounts {
		b, ok := r.balances[balanceKey{info.ID, year, month}]
		if !ok {
			continue
		}
		rows = append(rows, TrialBalanceRow{
			AccountID:      info.ID,
			AccountCode:    info.Code,
			AccountName:    info.Name,
			AccountType:    string(info.Type),
			NormalBalance:  string(info.NormalBalance),
			OpeningBalance: b.OpeningBalance,
			DebitTotal:     b.DebitTotal,
			CreditTotal:    b.CreditTotal,
			ClosingBalance: b.ClosingBalance,
		})
	}
	return rows, nil
}

func (r *stubRepo) PeriodExists(ctx context.Context, year, month int) (bool, error) {
	_, ok := r.periods[periodKey{year, month}]
	return ok, nil
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestRecalculateComputesClosingBalances(t *testing.T) {
	repo := newStubRepo()
	repo.totals[1] = map[int64]LineTotals{
		1: {DebitTotal: 1_200_000_000},
		2: {CreditTotal: 1_200_000_000},
	}
	service := NewService(repo, nil)
	summary, err := service.Recalculate(context.Background(), 2026, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.IsBalanced || summary.AccountsProcessed != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	inventory, err := service.GetAccountBalance(context.Background(), 1, 2026, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inventory.ClosingBalance != 1_200_000_000 {
		t.Fatalf("inventory closing = %d, want 1200000000", inventory.ClosingBalance)
	}
	capital, err := service.GetAccountBalance(context.Background(), 2, 2026, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capital.ClosingBalance != 1_200_000_000 {
		t.Fatalf("capital closing = %d, want 1200000000", capital.ClosingBalance)
	}
}

func TestRecalculateDetectsImbalance(t *testing.T) {
	repo := newStubRepo()
	repo.totals[1] = map[int64]LineTotals{
		1: {DebitTotal: 100},
		2: {CreditTotal: 90},
	}
	service := NewService(repo, nil)
	summary, err := service.Recalculate(context.Background(), 2026, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.IsBalanced {
		t.Fatal("expected isBalanced=false for corrupted totals")
	}
}

func TestRecalculateIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	repo.totals[1] = map[int64]LineTotals{
		1: {DebitTotal: 60_000_000, CreditTotal: 150_000_000},
		2: {DebitTotal: 150_000_000, CreditTotal: 60_000_000},
	}
	service := NewService(repo, nil)
	service.WithNow(func() time.Time { return time.Date(2026, 2, 1, 2, 0, 0, 0, time.UTC) })
	if _, err := service.Recalculate(context.Background(), 2026, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := map[balanceKey]AccountBalance{}
	for k, v := range repo.balances {
		first[k] = v
	}
	if _, err := service.Recalculate(context.Background(), 2026, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for k, v := range repo.balances {
		if first[k] != v {
			t.Fatalf("row %+v changed between runs: %+v vs %+v", k, first[k], v)
		}
	}
}

func TestRecalculateCarriesOpeningForward(t *testing.T) {
	repo := newStubRepo()
	repo.periods[periodKey{2026, 2}] = 2
	repo.totals[1] = map[int64]LineTotals{1: {DebitTotal: 500}, 2: {CreditTotal: 500}}
	repo.totals[2] = map[int64]LineTotals{1: {DebitTotal: 200}, 2: {CreditTotal: 200}}
	service := NewService(repo, nil)
	if _, err := service.Recalculate(context.Background(), 2026, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Recalculate(context.Background(), 2026, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	february, err := service.GetAccountBalance(context.Background(), 1, 2026, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if february.OpeningBalance != 500 || february.ClosingBalance != 700 {
		t.Fatalf("unexpected february balance: %+v", february)
	}
}

func TestRecalculateUnknownPeriod(t *testing.T) {
	service := NewService(newStubRepo(), nil)
	if _, err := service.Recalculate(context.Background(), 2030, 6); !errors.Is(err, ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound, got %v", err)
	}
}

func TestGetAccountBalanceRequiresCalculation(t *testing.T) {
	service := NewService(newStubRepo(), nil)
	if _, err := service.GetAccountBalance(context.Background(), 1, 2026, 1); !errors.Is(err, ErrBalanceNotFound) {
		t.Fatalf("expected ErrBalanceNotFound, got %v", err)
	}
}

func TestTrialBalanceServesCachedReportUntilBump(t *testing.T) {
	repo := newStubRepo()
	repo.totals[1] = map[int64]LineTotals{1: {DebitTotal: 100}, 2: {CreditTotal: 100}}
	service := NewService(repo, testCache(t))
	if _, err := service.Recalculate(context.Background(), 2026, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := service.TrialBalance(context.Background(), 2026, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.IsBalanced || report.TotalDebits != 100 {
		t.Fatalf("unexpected report: %+v", report)
	}
	// New postings change the totals but not the cached report.
	repo.totals[1] = map[int64]LineTotals{1: {DebitTotal: 900}, 2: {CreditTotal: 900}}
	repo.balances[balanceKey{1, 2026, 1}] = AccountBalance{AccountID: 1, FiscalYear: 2026, FiscalMonth: 1, DebitTotal: 900, ClosingBalance: 900}
	cached, err := service.TrialBalance(context.Background(), 2026, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached.TotalDebits != 100 {
		t.Fatalf("expected cached totals, got %+v", cached)
	}
	// Recalculate bumps the cache version so the next read is fresh.
	if _, err := service.Recalculate(context.Background(), 2026, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh, err := service.TrialBalance(context.Background(), 2026, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.TotalDebits != 900 {
		t.Fatalf("expected fresh totals after bump, got %+v", fresh)
	}
}

func TestTrialBalanceUnknownPeriod(t *testing.T) {
	service := NewService(newStubRepo(), nil)
	if _, err := service.TrialBalance(context.Background(), 2030, 6); !errors.Is(err, ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound, got %v", err)
	}
}

func TestWriteTrialBalanceCSVGroupsDigits(t *testing.T) {
	report := TrialBalance{
		FiscalYear:  2026,
		FiscalMonth: 1,
		Rows: []TrialBalanceRow{
			{AccountCode: "1030", AccountName: "Inventory", AccountType: "ASSET", DebitTotal: 1_200_000_000, ClosingBalance: 1_200_000_000},
		},
		TotalDebits:  1_200_000_000,
		TotalCredits: 1_200_000_000,
		IsBalanced:   true,
	}
	var sb strings.Builder
	if err := WriteTrialBalanceCSV(&sb, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := sb.String()
	for _, want := range []string{"# trial balance 2026-01", "1030", "1,200,000,000", "balanced=true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("csv missing %q:\n%s", want, out)
		}
	}
}

func TestPriorPeriodChain(t *testing.T) {
	cases := []struct {
		year, month         int
		wantYear, wantMonth int
	}{
		{2026, 2, 2026, 1},
		{2026, 1, 2025, 12},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d-%d", tc.year, tc.month), func(t *testing.T) {
			y, m := priorPeriod(tc.year, tc.month)
			if y != tc.wantYear || m != tc.wantMonth {
				t.Fatalf("priorPeriod(%d,%d) = (%d,%d)", tc.year, tc.month, y, m)
			}
		})
	}
}
