package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-books/meridian-books/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, entryID int64) (Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig carries posting policy knobs.
type ServiceConfig struct {
	// AllowVoidInClosedPeriod permits voiding a posted entry whose period
	// has already closed (locked periods always reject).
	AllowVoidInClosedPeriod bool
}

// Service coordinates creating, posting, and voiding journal entries.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	events shared.EventPublisher
	cfg    ServiceConfig
	now    func() time.Time
}

// NewService constructs the journal service.
func NewService(repo RepositoryPort, audit AuditPort, events shared.EventPublisher, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, events: events, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry validates and persists a new entry in DRAFT status. The
// balance invariant is checked before any database work; account existence
// and period status are checked inside the transaction.
func (s *Service) CreateEntry(ctx context.Context, in CreateInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodByMonth(ctx, in.EntryDate.Year(), int(in.EntryDate.Month()))
		if err != nil {
			return err
		}
		if period.Status != shared.PeriodStatusOpen {
			return ErrPeriodClosed
		}
		ids := make([]int64, 0, len(in.Lines))
		for _, line := range in.Lines {
			ids = append(ids, line.AccountID)
		}
		refs, err := tx.GetAccounts(ctx, ids)
		if err != nil {
			return err
		}
		for _, line := range in.Lines {
			ref, ok := refs[line.AccountID]
			if !ok || !ref.IsActive {
				return fmt.Errorf("%w: account %d", ErrAccountUnknown, line.AccountID)
			}
		}
		inserted, err := tx.InsertEntry(ctx, in, uuid.New(), period.ID)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, in.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "journal.create",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			NewValues: map[string]any{
				"uid":       entry.UID.String(),
				"type":      string(entry.Type),
				"reference": entry.Reference,
				"total":     entry.DebitTotal(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// Post transitions a DRAFT entry to POSTED. The period status is re-checked
// under a row lock inside the same transaction as the status flip, closing
// the gap between validation at create time and posting.
func (s *Service) Post(ctx context.Context, entryID int64, postedBy string) (Entry, error) {
	if entryID == 0 {
		return Entry{}, fmt.Errorf("%w: entry id required", ErrInvalidInput)
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryWithLines(ctx, entryID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != shared.PeriodStatusOpen {
			return ErrPeriodClosed
		}
		at := s.now()
		if err := tx.MarkPosted(ctx, current.ID, postedBy, at); err != nil {
			return err
		}
		current.Status = EntryStatusPosted
		current.PostedBy = postedBy
		current.PostedAt = &at
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     postedBy,
			Action:    "journal.post",
			Entity:    "journal_entry",
			EntityID:  fmt.Sprintf("%d", entry.ID),
			OldValues: map[string]any{"status": string(EntryStatusDraft)},
			NewValues: map[string]any{"status": string(EntryStatusPosted)},
			At:        s.now(),
		})
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, shared.Event{
			Type:       "journal.posted",
			Entity:     "journal_entry",
			EntityID:   entry.ID,
			OccurredAt: s.now(),
			Meta:       map[string]any{"periodId": entry.PeriodID, "total": entry.DebitTotal()},
		})
	}
	return entry, nil
}

// Void transitions a POSTED entry to VOIDED. No reversing entry is created;
// the caller books a correcting entry when needed. The original stays on
// record for audit history but drops out of balance aggregation.
func (s *Service) Void(ctx context.Context, in VoidInput) (Entry, error) {
	if in.EntryID == 0 {
		return Entry{}, fmt.Errorf("%w: entry id required", ErrInvalidInput)
	}
	if in.Reason == "" {
		return Entry{}, fmt.Errorf("%w: void reason required", ErrInvalidInput)
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryWithLines(ctx, in.EntryID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		switch period.Status {
		case shared.PeriodStatusLocked:
			return ErrPeriodLocked
		case shared.PeriodStatusClosed:
			if !s.cfg.AllowVoidInClosedPeriod {
				return ErrPeriodClosed
			}
		}
		at := s.now()
		if err := tx.MarkVoided(ctx, current.ID, in.Reason, in.VoidedBy, at); err != nil {
			return err
		}
		current.Status = EntryStatusVoided
		current.VoidReason = in.Reason
		current.VoidedBy = in.VoidedBy
		current.VoidedAt = &at
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     in.VoidedBy,
			Action:    "journal.void",
			Entity:    "journal_entry",
			EntityID:  fmt.Sprintf("%d", entry.ID),
			OldValues: map[string]any{"status": string(EntryStatusPosted)},
			NewValues: map[string]any{"status": string(EntryStatusVoided), "reason": in.Reason},
			At:        s.now(),
		})
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, shared.Event{
			Type:       "journal.voided",
			Entity:     "journal_entry",
			EntityID:   entry.ID,
			OccurredAt: s.now(),
			Meta:       map[string]any{"periodId": entry.PeriodID, "reason": in.Reason},
		})
	}
	return entry, nil
}

// DeleteDraft removes a never-posted entry entirely.
func (s *Service) DeleteDraft(ctx context.Context, entryID int64, actor string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetEntryWithLines(ctx, entryID); err != nil {
			return err
		}
		return tx.DeleteDraft(ctx, entryID)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "journal.delete_draft",
			Entity:    "journal_entry",
			EntityID:  fmt.Sprintf("%d", entryID),
			OldValues: map[string]any{"status": string(EntryStatusDraft)},
			At:        s.now(),
		})
	}
	return nil
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, entryID int64) (Entry, error) {
	return s.repo.Get(ctx, entryID)
}

// List returns entries matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, filter)
}
