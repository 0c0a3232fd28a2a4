package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/meridian-books/meridian-books/internal/shared"
)

type stubRepo struct {
	accounts  map[int64]Account
	insertErr error
	inserted  *CreateInput
	nextID    int64
	hasPosted bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{accounts: map[int64]Account{}, nextID: 1}
}

func (r *stubRepo) Insert(ctx context.Context, in CreateInput) (Account, error) {
	if r.insertErr != nil {
		return Account{}, r.insertErr
	}
	r.inserted = &in
	account := Account{ID: r.nextID, Code: in.Code, Name: in.Name, Type: in.Type, NormalBalance: in.NormalBalance, ParentID: in.ParentID, IsActive: true}
	r.accounts[account.ID] = account
	r.nextID++
	return account, nil
}

func (r *stubRepo) Get(ctx context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *stubRepo) GetByCode(ctx context.Context, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (r *stubRepo) List(ctx context.Context, activeOnly bool, limit, offset int) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (r *stubRepo) Count(ctx context.Context, activeOnly bool) (int, error) {
	return len(r.accounts), nil
}

func (r *stubRepo) UpdateDescriptive(ctx context.Context, id int64, name, description string) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	a.Name = name
	a.Description = description
	r.accounts[id] = a
	return a, nil
}

func (r *stubRepo) Deactivate(ctx context.Context, id int64) error {
	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.IsActive = false
	r.accounts[id] = a
	return nil
}

func (r *stubRepo) HasPostedLines(ctx context.Context, id int64) (bool, error) {
	return r.hasPosted, nil
}

func (r *stubRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(r.accounts, id)
	return nil
}

type stubAudit struct {
	records []shared.AuditLog
}

func (a *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.records = append(a.records, log)
	return nil
}

func TestCreateRejectsUnknownType(t *testing.T) {
	service := NewService(newStubRepo(), nil)
	_, err := service.Create(context.Background(), CreateInput{
		Code:          "1020",
		Name:          "Cash at Bank",
		Type:          AccountType("PETTY"),
		NormalBalance: NormalBalanceDebit,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateRejectsMissingParent(t *testing.T) {
	parent := int64(99)
	service := NewService(newStubRepo(), nil)
	_, err := service.Create(context.Background(), CreateInput{
		Code:          "1021",
		Name:          "Cash Sub",
		Type:          AccountTypeAsset,
		NormalBalance: NormalBalanceDebit,
		ParentID:      &parent,
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCreatePropagatesDuplicateCode(t *testing.T) {
	repo := newStubRepo()
	repo.insertErr = ErrDuplicateCode
	service := NewService(repo, nil)
	_, err := service.Create(context.Background(), CreateInput{
		Code:          "1020",
		Name:          "Cash at Bank",
		Type:          AccountTypeAsset,
		NormalBalance: NormalBalanceDebit,
	})
	if !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestCreateRecordsAudit(t *testing.T) {
	repo := newStubRepo()
	audit := &stubAudit{}
	service := NewService(repo, audit)
	account, err := service.Create(context.Background(), CreateInput{
		Code:          "4000",
		Name:          "Sales",
		Type:          AccountTypeRevenue,
		NormalBalance: NormalBalanceCredit,
		Actor:         "setup",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if len(audit.records) != 1 || audit.records[0].Action != "account.create" {
		t.Fatalf("expected one account.create audit record, got %+v", audit.records)
	}
}

func TestDeactivateKeepsRow(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo, nil)
	account, err := service.Create(context.Background(), CreateInput{
		Code:          "5000",
		Name:          "COGS",
		Type:          AccountTypeCOGS,
		NormalBalance: NormalBalanceDebit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Deactivate(context.Background(), account.ID, "admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := service.Get(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("account should survive deactivation: %v", err)
	}
	if got.IsActive {
		t.Fatal("expected account inactive")
	}
}

func TestDeactivateTwiceReturnsInactive(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo, nil)
	account, err := service.Create(context.Background(), CreateInput{
		Code:          "6100",
		Name:          "Office Supplies",
		Type:          AccountTypeExpense,
		NormalBalance: NormalBalanceDebit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Deactivate(context.Background(), account.ID, "admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = service.Deactivate(context.Background(), account.ID, "admin")
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestDeleteRejectsReferencedAccount(t *testing.T) {
	repo := newStubRepo()
	repo.hasPosted = true
	service := NewService(repo, nil)
	account, err := service.Create(context.Background(), CreateInput{
		Code:          "1020",
		Name:          "Cash at Bank",
		Type:          AccountTypeAsset,
		NormalBalance: NormalBalanceDebit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = service.Delete(context.Background(), account.ID, "admin")
	if !errors.Is(err, ErrAccountReferenced) {
		t.Fatalf("expected ErrAccountReferenced, got %v", err)
	}
	if _, err := service.Get(context.Background(), account.ID); err != nil {
		t.Fatalf("referenced account must survive delete attempt: %v", err)
	}
}

func TestDeleteRemovesUnreferencedAccount(t *testing.T) {
	repo := newStubRepo()
	audit := &stubAudit{}
	service := NewService(repo, audit)
	account, err := service.Create(context.Background(), CreateInput{
		Code:          "1900",
		Name:          "Suspense",
		Type:          AccountTypeAsset,
		NormalBalance: NormalBalanceDebit,
		Actor:         "setup",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Delete(context.Background(), account.ID, "admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Get(context.Background(), account.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound after delete, got %v", err)
	}
	last := audit.records[len(audit.records)-1]
	if last.Action != "account.delete" {
		t.Fatalf("expected account.delete audit record, got %+v", last)
	}
}
