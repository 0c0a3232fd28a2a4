package recon

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestGreedyMatchPairsEqualAmountSameDay(t *testing.T) {
	txns := []BankTransaction{
		{ID: 1, Date: day(5), Amount: 25_000_000, MatchStatus: MatchStatusUnmatched},
	}
	candidates := []JournalLineRef{
		{LineID: 10, EntryDate: day(5), Direction: "DEBIT", Amount: 25_000_000},
	}
	pairs, result := greedyMatch(txns, candidates, 3)
	if result.MatchedCount != 1 || result.UnmatchedCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(pairs) != 1 || pairs[0].BankTransactionID != 1 || pairs[0].JournalLineID != 10 {
		t.Fatalf("unexpected pairs: %+v", pairs)
	}
}

func TestGreedyMatchNormalisesSigns(t *testing.T) {
	txns := []BankTransaction{
		{ID: 1, Date: day(10), Amount: -150_000_000, MatchStatus: MatchStatusUnmatched},
		{ID: 2, Date: day(12), Amount: 60_000_000, MatchStatus: MatchStatusUnmatched},
	}
	candidates := []JournalLineRef{
		{LineID: 20, EntryDate: day(10), Direction: "CREDIT", Amount: 150_000_000},
		{LineID: 21, EntryDate: day(12), Direction: "DEBIT", Amount: 60_000_000},
	}
	pairs, result := greedyMatch(txns, candidates, 2)
	if result.MatchedCount != 2 {
		t.Fatalf("expected both matched, got %+v", result)
	}
	if pairs[0].JournalLineID != 20 || pairs[1].JournalLineID != 21 {
		t.Fatalf("unexpected pairs: %+v", pairs)
	}
}

func TestGreedyMatchPrefersClosestDateThenEarliest(t *testing.T) {
	txns := []BankTransaction{
		{ID: 1, Date: day(10), Amount: 500, MatchStatus: MatchStatusUnmatched},
	}
	candidates := []JournalLineRef{
		{LineID: 30, EntryDate: day(7), Direction: "DEBIT", Amount: 500},
		{LineID: 31, EntryDate: day(9), Direction: "DEBIT", Amount: 500},
		{LineID: 32, EntryDate: day(11), Direction: "DEBIT", Amount: 500},
	}
	pairs, _ := greedyMatch(txns, candidates, 5)
	// Lines 31 and 32 are both one day off; the earlier date wins.
	if pairs[0].JournalLineID != 31 {
		t.Fatalf("expected line 31, got %+v", pairs)
	}
}

func TestGreedyMatchTieBreaksOnLineID(t *testing.T) {
	txns := []BankTransaction{
		{ID: 1, Date: day(10), Amount: 500, MatchStatus: MatchStatusUnmatched},
	}
	candidates := []JournalLineRef{
		{LineID: 41, EntryDate: day(10), Direction: "DEBIT", Amount: 500},
		{LineID: 40, EntryDate: day(10), Direction: "DEBIT", Amount: 500},
	}
	pairs, _ := greedyMatch(txns, candidates, 0)
	if pairs[0].JournalLineID != 40 {
		t.Fatalf("expected lowest line id, got %+v", pairs)
	}
}

func TestGreedyMatchNeverDoubleMatches(t *testing.T) {
	txns := []BankTransaction{
		{ID: 1, Date: day(5), Amount: 500, MatchStatus: MatchStatusUnmatched},
		{ID: 2, Date: day(5), Amount: 500, MatchStatus: MatchStatusUnmatched},
		{ID: 3, Date: day(5), Amount: 700, MatchStatus: MatchStatusUnmatched},
	}
	candidates := []JournalLineRef{
		{LineID: 50, EntryDate: day(5), Direction: "DEBIT", Amount: 500},
	}
	pairs, result := greedyMatch(txns, candidates, 1)
	if len(pairs) != 1 {
		t.Fatalf("expected a single pair, got %+v", pairs)
	}
	if result.MatchedCount+result.UnmatchedCount != len(txns) {
		t.Fatalf("counts must cover every unmatched transaction: %+v", result)
	}
}

func TestGreedyMatchRespectsDateTolerance(t *testing.T) {
	txns := []BankTransaction{
		{ID: 1, Date: day(20), Amount: 500, MatchStatus: MatchStatusUnmatched},
	}
	candidates := []JournalLineRef{
		{LineID: 60, EntryDate: day(10), Direction: "DEBIT", Amount: 500},
	}
	_, result := greedyMatch(txns, candidates, 3)
	if result.MatchedCount != 0 || result.UnmatchedCount != 1 {
		t.Fatalf("expected no matches outside tolerance, got %+v", result)
	}
}

func TestAdjustedBalancesOutstandingCheck(t *testing.T) {
	rec := Reconciliation{StatementEndingBalance: 105_000_000, BookEndingBalance: 100_000_000}
	items := []ReconcilingItem{
		{ItemType: ItemOutstandingCheck, Amount: 5_000_000},
	}
	adjusted := adjustedBalances(rec, items)
	if !adjusted.IsReconciled {
		t.Fatalf("expected reconciled after outstanding check, got %+v", adjusted)
	}
	if adjusted.AdjustedBank != 100_000_000 || adjusted.AdjustedBook != 100_000_000 {
		t.Fatalf("unexpected adjusted balances: %+v", adjusted)
	}
}

func TestAdjustedBalancesBookSideItems(t *testing.T) {
	rec := Reconciliation{StatementEndingBalance: 99_700, BookEndingBalance: 100_000}
	items := []ReconcilingItem{
		{ItemType: ItemBankFee, Amount: 500},
		{ItemType: ItemBankInterest, Amount: 200},
	}
	adjusted := adjustedBalances(rec, items)
	if adjusted.AdjustedBook != 99_700 || !adjusted.IsReconciled {
		t.Fatalf("unexpected adjusted balances: %+v", adjusted)
	}
}

func TestAdjustedBalancesNSFCheckReducesBook(t *testing.T) {
	rec := Reconciliation{StatementEndingBalance: 90_000, BookEndingBalance: 100_000}
	items := []ReconcilingItem{
		{ItemType: ItemNSFCheck, Amount: 10_000},
	}
	adjusted := adjustedBalances(rec, items)
	if adjusted.AdjustedBook != 90_000 || !adjusted.IsReconciled {
		t.Fatalf("unexpected adjusted balances: %+v", adjusted)
	}
}

func TestAdjustedBalancesUnreconciledDifference(t *testing.T) {
	rec := Reconciliation{StatementEndingBalance: 100_100, BookEndingBalance: 100_000}
	adjusted := adjustedBalances(rec, nil)
	if adjusted.IsReconciled || adjusted.Difference != 100 {
		t.Fatalf("unexpected adjusted balances: %+v", adjusted)
	}
}
