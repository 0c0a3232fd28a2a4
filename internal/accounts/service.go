package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-books/meridian-books/internal/shared"
)

// RepositoryPort abstracts account persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, in CreateInput) (Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]Account, error)
	Count(ctx context.Context, activeOnly bool) (int, error)
	UpdateDescriptive(ctx context.Context, id int64, name, description string) (Account, error)
	Deactivate(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	HasPostedLines(ctx context.Context, id int64) (bool, error)
}

// AuditPort records directory changes for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the chart of accounts.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the directory service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and stores a new account.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	if in.ParentID != nil {
		if _, err := s.repo.Get(ctx, *in.ParentID); err != nil {
			return Account{}, err
		}
	}
	account, err := s.repo.Insert(ctx, in)
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "account.create",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", account.ID),
			NewValues: map[string]any{
				"code":           account.Code,
				"type":           string(account.Type),
				"normal_balance": string(account.NormalBalance),
			},
			At: s.now(),
		})
	}
	return account, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// GetByCode returns an account by its unique code.
func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns accounts with pagination metadata.
func (s *Service) List(ctx context.Context, activeOnly bool, page, perPage int) ([]Account, shared.Pagination, error) {
	total, err := s.repo.Count(ctx, activeOnly)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pg := shared.NewPagination(page, perPage, total)
	accounts, err := s.repo.List(ctx, activeOnly, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return accounts, pg, nil
}

// UpdateDetails changes descriptive fields only. Code, type, and normal
// balance stay immutable once any posted line references the account.
func (s *Service) UpdateDetails(ctx context.Context, in UpdateInput) (Account, error) {
	if in.Name == "" {
		return Account{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	old, err := s.repo.Get(ctx, in.AccountID)
	if err != nil {
		return Account{}, err
	}
	account, err := s.repo.UpdateDescriptive(ctx, in.AccountID, in.Name, in.Description)
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     in.Actor,
			Action:    "account.update",
			Entity:    "account",
			EntityID:  fmt.Sprintf("%d", account.ID),
			OldValues: map[string]any{"name": old.Name, "description": old.Description},
			NewValues: map[string]any{"name": account.Name, "description": account.Description},
			At:        s.now(),
		})
	}
	return account, nil
}

// Deactivate retires an account. Accounts referenced by posted lines are
// never deleted; deactivation only blocks future postings.
func (s *Service) Deactivate(ctx context.Context, id int64, actor string) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return fmt.Errorf("%w: account %s", ErrAccountInactive, account.Code)
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "account.deactivate",
			Entity:    "account",
			EntityID:  fmt.Sprintf("%d", id),
			OldValues: map[string]any{"is_active": true},
			NewValues: map[string]any{"is_active": false},
			At:        s.now(),
		})
	}
	return nil
}

// Delete physically removes an account that was never posted against.
// Accounts referenced by posted lines must be deactivated instead.
func (s *Service) Delete(ctx context.Context, id int64, actor string) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	referenced, err := s.repo.HasPostedLines(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: account %s", ErrAccountReferenced, account.Code)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:     actor,
			Action:    "account.delete",
			Entity:    "account",
			EntityID:  fmt.Sprintf("%d", id),
			OldValues: map[string]any{"code": account.Code, "name": account.Name},
			At:        s.now(),
		})
	}
	return nil
}
