package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-books/meridian-books/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Insert(ctx context.Context, in CreateInput) (Period, error)
	Get(ctx context.Context, periodID int64) (Period, error)
	GetByMonth(ctx context.Context, year, month int) (Period, error)
	List(ctx context.Context, limit, offset int) ([]Period, error)
	Count(ctx context.Context) (int, error)
}

// AuditPort records period lifecycle changes for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BalancesPort refreshes the stored balance snapshot for a period.
type BalancesPort interface {
	RefreshPeriod(ctx context.Context, year, month int) error
}

// Service drives the fiscal period state machine.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	events   shared.EventPublisher
	balances BalancesPort
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, audit AuditPort, events shared.EventPublisher, balances BalancesPort) *Service {
	return &Service{repo: repo, audit: audit, events: events, balances: balances, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a new fiscal period for the given year and month.
func (s *Service) Create(ctx context.Context, in CreateInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	period, err := s.repo.Insert(ctx, in)
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "period.create",
			Entity:   "fiscal_period",
			EntityID: fmt.Sprintf("%d", period.ID),
			NewValues: map[string]any{
				"fiscalYear":  period.FiscalYear,
				"fiscalMonth": period.FiscalMonth,
				"status":      period.Status,
			},
			At: s.now(),
		})
	}
	return period, nil
}

// Close flips an open period to closed after verifying its trial balance.
// The period row stays locked from the balance check through the status flip
// so a racing Post cannot slip new lines under the totals.
func (s *Service) Close(ctx context.Context, periodID int64, actor string) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if err := shared.ValidatePeriodTransition(p.Status, shared.PeriodStatusClosed); err != nil {
			return fmt.Errorf("%w: close from %s", ErrInvalidTransition, p.Status)
		}
		debits, credits, err := tx.PostedTotals(ctx, periodID)
		if err != nil {
			return err
		}
		if debits != credits {
			return fmt.Errorf("%w: debits %d credits %d", ErrUnbalancedPeriod, debits, credits)
		}
		period = p
		return tx.SetClosed(ctx, periodID, actor, s.now())
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "period.close",
			Entity:    "fiscal_period",
			EntityID:  fmt.Sprintf("%d", periodID),
			OldValues: map[string]any{"status": period.Status},
			NewValues: map[string]any{"status": shared.PeriodStatusClosed},
			At:        s.now(),
		})
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, shared.Event{
			Type:       "period.closed",
			Entity:     "fiscal_period",
			EntityID:   periodID,
			OccurredAt: s.now(),
			Meta: map[string]any{
				"fiscalYear":  period.FiscalYear,
				"fiscalMonth": period.FiscalMonth,
			},
		})
	}
	// Snapshot rows are rebuilt by the nightly refresh if this call fails.
	if s.balances != nil {
		_ = s.balances.RefreshPeriod(ctx, period.FiscalYear, period.FiscalMonth)
	}
	return s.repo.Get(ctx, periodID)
}

// Reopen reverts a closed period to open. Locked periods never reopen.
func (s *Service) Reopen(ctx context.Context, periodID int64, reason, actor string) (Period, error) {
	if reason == "" {
		return Period{}, fmt.Errorf("%w: reopen reason is required", ErrInvalidInput)
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if err := shared.ValidatePeriodTransition(p.Status, shared.PeriodStatusOpen); err != nil {
			return fmt.Errorf("%w: reopen from %s", ErrInvalidTransition, p.Status)
		}
		period = p
		return tx.SetReopened(ctx, periodID)
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "period.reopen",
			Entity:    "fiscal_period",
			EntityID:  fmt.Sprintf("%d", periodID),
			OldValues: map[string]any{"status": period.Status},
			NewValues: map[string]any{"status": shared.PeriodStatusOpen, "reason": reason},
			At:        s.now(),
		})
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, shared.Event{
			Type:       "period.reopened",
			Entity:     "fiscal_period",
			EntityID:   periodID,
			OccurredAt: s.now(),
			Meta:       map[string]any{"reason": reason},
		})
	}
	return s.repo.Get(ctx, periodID)
}

// Lock makes a closed period permanent. There is no unlock.
func (s *Service) Lock(ctx context.Context, periodID int64, actor string) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if err := shared.ValidatePeriodTransition(p.Status, shared.PeriodStatusLocked); err != nil {
			return fmt.Errorf("%w: lock from %s", ErrInvalidTransition, p.Status)
		}
		period = p
		return tx.SetLocked(ctx, periodID)
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "period.lock",
			Entity:    "fiscal_period",
			EntityID:  fmt.Sprintf("%d", periodID),
			OldValues: map[string]any{"status": period.Status},
			NewValues: map[string]any{"status": shared.PeriodStatusLocked},
			At:        s.now(),
		})
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, shared.Event{
			Type:       "period.locked",
			Entity:     "fiscal_period",
			EntityID:   periodID,
			OccurredAt: s.now(),
		})
	}
	return s.repo.Get(ctx, periodID)
}

// Get returns one period by id.
func (s *Service) Get(ctx context.Context, periodID int64) (Period, error) {
	return s.repo.Get(ctx, periodID)
}

// GetByMonth returns the period owning the given year and month.
func (s *Service) GetByMonth(ctx context.Context, year, month int) (Period, error) {
	return s.repo.GetByMonth(ctx, year, month)
}

// List returns periods with pagination metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Period, shared.Pagination, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(page, perPage, total)
	periods, err := s.repo.List(ctx, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return periods, pagination, nil
}
