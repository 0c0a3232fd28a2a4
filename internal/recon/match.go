package recon

import (
	"sort"
	"time"
)

// MatchPair pairs one bank transaction with one journal line.
type MatchPair struct {
	BankTransactionID int64
	JournalLineID     int64
}

// signedAmount normalises a journal line against statement signs: a debit to
// the cash account is money in, matching a positive bank amount.
func signedAmount(line JournalLineRef) int64 {
	if line.Direction == "CREDIT" {
		return -line.Amount
	}
	return line.Amount
}

func dayDiff(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	diff := int(ad.Sub(bd).Hours() / 24)
	if diff < 0 {
		return -diff
	}
	return diff
}

// greedyMatch pairs unmatched bank transactions with candidate journal lines.
// Matching is greedy, not optimal: amounts must be equal after sign
// normalisation and dates within tolerance days. Ties prefer the smallest
// date difference, then the earliest-dated candidate, then the lowest line id,
// so repeated runs over the same inputs produce the same pairs. Exact-amount
// matches rarely collide in practice, which is why an optimal assignment
// is not worth its complexity here.
func greedyMatch(txns []BankTransaction, candidates []JournalLineRef, dateTolerance int) ([]MatchPair, AutoMatchResult) {
	ordered := make([]BankTransaction, len(txns))
	copy(ordered, txns)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})

	taken := make(map[int64]bool, len(candidates))
	var pairs []MatchPair
	var result AutoMatchResult
	for _, txn := range ordered {
		if txn.MatchStatus != MatchStatusUnmatched {
			continue
		}
		best := -1
		for i, cand := range candidates {
			if taken[cand.LineID] || signedAmount(cand) != txn.Amount {
				continue
			}
			diff := dayDiff(txn.Date, cand.EntryDate)
			if diff > dateTolerance {
				continue
			}
			if best == -1 {
				best = i
				continue
			}
			bestDiff := dayDiff(txn.Date, candidates[best].EntryDate)
			switch {
			case diff < bestDiff:
				best = i
			case diff == bestDiff && cand.EntryDate.Before(candidates[best].EntryDate):
				best = i
			case diff == bestDiff && cand.EntryDate.Equal(candidates[best].EntryDate) && cand.LineID < candidates[best].LineID:
				best = i
			}
		}
		if best == -1 {
			result.UnmatchedCount++
			continue
		}
		taken[candidates[best].LineID] = true
		pairs = append(pairs, MatchPair{BankTransactionID: txn.ID, JournalLineID: candidates[best].LineID})
		result.MatchedCount++
	}
	return pairs, result
}

// adjustedBalances applies the standard bank reconciliation worksheet:
// the bank side backs out timing differences the bank has not seen, the book
// side books fees, interest, bounced checks, and adjustments the ledger has
// not recorded yet.
func adjustedBalances(r Reconciliation, items []ReconcilingItem) AdjustedBalances {
	bank := r.StatementEndingBalance
	book := r.BookEndingBalance
	for _, item := range items {
		switch item.ItemType {
		case ItemOutstandingCheck:
			bank -= item.Amount
		case ItemDepositInTransit:
			bank += item.Amount
		case ItemBankFee:
			book -= item.Amount
		case ItemBankInterest:
			book += item.Amount
		case ItemNSFCheck:
			book -= item.Amount
		case ItemAdjustment:
			book += item.Amount
		}
	}
	return AdjustedBalances{
		AdjustedBank: bank,
		AdjustedBook: book,
		Difference:   bank - book,
		IsReconciled: bank == book,
	}
}
