package periods

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridian-books/meridian-books/internal/shared"
)

type stubStore struct {
	periods   map[int64]*Period
	nextID    int64
	debits    int64
	credits   int64
	refreshed []int
	events    []shared.Event
}

func newStubStore() *stubStore {
	return &stubStore{periods: map[int64]*Period{}, nextID: 1}
}

func (s *stubStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, s)
}

func (s *stubStore) Insert(ctx context.Context, in CreateInput) (Period, error) {
	for _, p := range s.periods {
		if p.FiscalYear == in.FiscalYear && p.FiscalMonth == in.FiscalMonth {
			return Period{}, ErrDuplicatePeriod
		}
	}
	start, end := in.Bounds()
	period := Period{ID: s.nextID, FiscalYear: in.FiscalYear, FiscalMonth: in.FiscalMonth, StartDate: start, EndDate: end, Status: shared.PeriodStatusOpen}
	s.periods[period.ID] = &period
	s.nextID++
	return period, nil
}

func (s *stubStore) Get(ctx context.Context, periodID int64) (Period, error) {
	p, ok := s.periods[periodID]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return *p, nil
}

func (s *stubStore) GetByMonth(ctx context.Context, year, month int) (Period, error) {
	for _, p := range s.periods {
		if p.FiscalYear == year && p.FiscalMonth == month {
			return *p, nil
		}
	}
	return Period{}, ErrPeriodNotFound
}

func (s *stubStore) List(ctx context.Context, limit, offset int) ([]Period, error) {
	var out []Period
	for _, p := range s.periods {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubStore) Count(ctx context.Context) (int, error) {
	return len(s.periods), nil
}

func (s *stubStore) GetForUpdate(ctx context.Context, periodID int64) (Period, error) {
	return s.Get(ctx, periodID)
}

func (s *stubStore) PostedTotals(ctx context.Context, periodID int64) (int64, int64, error) {
	return s.debits, s.credits, nil
}

func (s *stubStore) SetClosed(ctx context.Context, periodID int64, closedBy string, at time.Time) error {
	p, ok := s.periods[periodID]
	if !ok || p.Status != shared.PeriodStatusOpen {
		return ErrInvalidTransition
	}
	p.Status = shared.PeriodStatusClosed
	p.ClosedBy = closedBy
	p.ClosedAt = &at
	return nil
}

func (s *stubStore) SetReopened(ctx context.Context, periodID int64) error {
	p, ok := s.periods[periodID]
	if !ok || p.Status != shared.PeriodStatusClosed {
		return ErrInvalidTransition
	}
	p.Status = shared.PeriodStatusOpen
	p.ClosedBy = ""
	p.ClosedAt = nil
	return nil
}

func (s *stubStore) SetLocked(ctx context.Context, periodID int64) error {
	p, ok := s.periods[periodID]
	if !ok || p.Status != shared.PeriodStatusClosed {
		return ErrInvalidTransition
	}
	p.Status = shared.PeriodStatusLocked
	return nil
}

func (s *stubStore) RefreshPeriod(ctx context.Context, year, month int) error {
	s.refreshed = append(s.refreshed, year*100+month)
	return nil
}

func (s *stubStore) Publish(ctx context.Context, ev shared.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func seedPeriod(t *testing.T, store *stubStore, service *Service) Period {
	t.Helper()
	period, err := service.Create(context.Background(), CreateInput{FiscalYear: 2026, FiscalMonth: 1, Actor: "tester"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return period
}

func TestCreateRejectsBadMonth(t *testing.T) {
	service := NewService(newStubStore(), nil, nil, nil)
	if _, err := service.Create(context.Background(), CreateInput{FiscalYear: 2026, FiscalMonth: 13}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateRejectsDuplicateMonth(t *testing.T) {
	store := newStubStore()
	service := NewService(store, nil, nil, nil)
	seedPeriod(t, store, service)
	if _, err := service.Create(context.Background(), CreateInput{FiscalYear: 2026, FiscalMonth: 1}); !errors.Is(err, ErrDuplicatePeriod) {
		t.Fatalf("expected ErrDuplicatePeriod, got %v", err)
	}
}

func TestCloseRequiresBalancedTrialBalance(t *testing.T) {
	store := newStubStore()
	service := NewService(store, nil, nil, nil)
	period := seedPeriod(t, store, service)
	store.debits = 210_000_000
	store.credits = 60_000_000
	_, err := service.Close(context.Background(), period.ID, "controller")
	if !errors.Is(err, ErrUnbalancedPeriod) {
		t.Fatalf("expected ErrUnbalancedPeriod, got %v", err)
	}
	if store.periods[period.ID].Status != shared.PeriodStatusOpen {
		t.Fatal("period must stay open when the close fails")
	}
}

func TestCloseFlipsStatusAndRefreshesBalances(t *testing.T) {
	store := newStubStore()
	service := NewService(store, nil, store, store)
	period := seedPeriod(t, store, service)
	store.debits = 1_200_000_000
	store.credits = 1_200_000_000
	closed, err := service.Close(context.Background(), period.ID, "controller")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.Status != shared.PeriodStatusClosed || closed.ClosedBy != "controller" {
		t.Fatalf("unexpected period after close: %+v", closed)
	}
	if len(store.refreshed) != 1 || store.refreshed[0] != 202601 {
		t.Fatalf("expected balance refresh for 2026-01, got %v", store.refreshed)
	}
	if len(store.events) != 1 || store.events[0].Type != "period.closed" {
		t.Fatalf("expected period.closed event, got %+v", store.events)
	}
}

func TestCloseTwiceFails(t *testing.T) {
	store := newStubStore()
	service := NewService(store, nil, nil, nil)
	period := seedPeriod(t, store, service)
	if _, err := service.Close(context.Background(), period.ID, "controller"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Close(context.Background(), period.ID, "controller"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReopenRequiresReason(t *testing.T) {
	service := NewService(newStubStore(), nil, nil, nil)
	if _, err := service.Reopen(context.Background(), 1, "", "controller"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReopenRevertsClosedPeriod(t *testing.T) {
	store := newStubStore()
	service := NewService(store, nil, nil, nil)
	period := seedPeriod(t, store, service)
	if _, err := service.Close(context.Background(), period.ID, "controller"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reopened, err := service.Reopen(context.Background(), period.ID, "missed invoice batch", "controller")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reopened.Status != shared.PeriodStatusOpen || reopened.ClosedAt != nil {
		t.Fatalf("unexpected period after reopen: %+v", reopened)
	}
}

func TestReopenRejectsLockedPeriod(t *testing.T) {
	store := newStubStore()
	service := NewService(store, nil, nil, nil)
	period := seedPeriod(t, store, service)
	if _, err := service.Close(context.Background(), period.ID, "controller"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Lock(context.Background(), period.ID, "controller"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Reopen(context.Background(), period.ID, "too late", "controller"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestLockRequiresClosedStatus(t *testing.T) {
	store := newStubStore()
	service := NewService(store, nil, nil, nil)
	period := seedPeriod(t, store, service)
	if _, err := service.Lock(context.Background(), period.ID, "controller"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

type stubAudit struct {
	records []shared.AuditLog
}

func (a *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.records = append(a.records, log)
	return nil
}

func TestCloseRecordsAudit(t *testing.T) {
	store := newStubStore()
	audit := &stubAudit{}
	service := NewService(store, audit, nil, nil)
	period := seedPeriod(t, store, service)
	if _, err := service.Close(context.Background(), period.ID, "controller"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audit.records) != 2 {
		t.Fatalf("expected create and close audit records, got %d", len(audit.records))
	}
	closeLog := audit.records[1]
	if closeLog.Action != "period.close" || closeLog.Actor != "controller" {
		t.Fatalf("unexpected audit record: %+v", closeLog)
	}
	if closeLog.EntityID != "1" {
		t.Fatalf("expected entity id %q, got %q", "1", closeLog.EntityID)
	}
}
