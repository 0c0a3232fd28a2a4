package balances

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, accountID int64, year, month int) (AccountBalance, error)
	ListRows(ctx context.Context, year, month int) ([]TrialBalanceRow, error)
	PeriodExists(ctx context.Context, year, month int) (bool, error)
}

// Service computes and serves account balance snapshots.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Recalculate rebuilds every account's balance snapshot for the period from
// posted lines. Each row is fully replaced, so repeated runs with no new
// postings produce identical rows, and concurrent runs settle on the same
// values under last-write-wins.
func (s *Service) Recalculate(ctx context.Context, year, month int) (Summary, error) {
	summary := Summary{FiscalYear: year, FiscalMonth: month}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		periodID, err := tx.PeriodID(ctx, year, month)
		if err != nil {
			return err
		}
		infos, err := tx.ListAccounts(ctx)
		if err != nil {
			return err
		}
		totals, err := tx.PostedTotalsByAccount(ctx, periodID)
		if err != nil {
			return err
		}
		priorYear, priorMonth := priorPeriod(year, month)
		openings, err := tx.ClosingBalances(ctx, priorYear, priorMonth)
		if err != nil {
			return err
		}
		calculatedAt := s.now()
		for _, info := range infos {
			t := totals[info.ID]
			opening := openings[info.ID]
			balance := AccountBalance{
				AccountID:      info.ID,
				FiscalYear:     year,
				FiscalMonth:    month,
				OpeningBalance: opening,
				DebitTotal:     t.DebitTotal,
				CreditTotal:    t.CreditTotal,
				ClosingBalance: closingBalance(info.NormalBalance, opening, t.DebitTotal, t.CreditTotal),
				CalculatedAt:   calculatedAt,
			}
			if err := tx.ReplaceBalance(ctx, balance); err != nil {
				return err
			}
			summary.AccountsProcessed++
			summary.TotalDebits += t.DebitTotal
			summary.TotalCredits += t.CreditTotal
		}
		summary.IsBalanced = summary.TotalDebits == summary.TotalCredits
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	// Cached reports are stale now, bump even if nothing reads them soon.
	_ = s.cache.Bump(ctx)
	return summary, nil
}

// RefreshPeriod recalculates and discards the summary. It backs the period
// close hook and the scheduled refresh job.
func (s *Service) RefreshPeriod(ctx context.Context, year, month int) error {
	_, err := s.Recalculate(ctx, year, month)
	return err
}

// TrialBalance serves the period-wide projection of stored balances.
// Concurrent requests for the same period share one build through
// singleflight, and results are cached until the next recalculation.
func (s *Service) TrialBalance(ctx context.Context, year, month int) (TrialBalance, error) {
	exists, err := s.repo.PeriodExists(ctx, year, month)
	if err != nil {
		return TrialBalance{}, err
	}
	if !exists {
		return TrialBalance{}, ErrPeriodNotFound
	}
	key, err := s.cache.BuildKey(ctx, "tb", strconv.Itoa(year), strconv.Itoa(month))
	if err != nil {
		return TrialBalance{}, err
	}
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		var report TrialBalance
		err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
			return s.buildTrialBalance(ctx, year, month)
		})
		return report, err
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return result.(TrialBalance), nil
}

func (s *Service) buildTrialBalance(ctx context.Context, year, month int) (TrialBalance, error) {
	rows, err := s.repo.ListRows(ctx, year, month)
	if err != nil {
		return TrialBalance{}, err
	}
	report := TrialBalance{FiscalYear: year, FiscalMonth: month, Rows: rows}
	for _, row := range rows {
		report.TotalDebits += row.DebitTotal
		report.TotalCredits += row.CreditTotal
	}
	report.IsBalanced = report.TotalDebits == report.TotalCredits
	return report, nil
}

// GetAccountBalance returns one stored snapshot. Calculation is explicit:
// a period that was never recalculated yields ErrBalanceNotFound rather
// than an implicit compute on read.
func (s *Service) GetAccountBalance(ctx context.Context, accountID int64, year, month int) (AccountBalance, error) {
	return s.repo.GetBalance(ctx, accountID, year, month)
}
