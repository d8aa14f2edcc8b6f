package loanmock

import (
	"context"
	"time"

	domain "p2p-lending-backend/internal/domain/loan"

	"github.com/shopspring/decimal"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset lookups return context.Canceled so a forgotten stub fails loudly.
type Repo struct {
	CreateFn         func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn    func(ctx context.Context, loanID string) (*domain.Loan, error)
	ForUpdateFn      func(ctx context.Context, loanID string) (*domain.Loan, error)
	SaveFn           func(ctx context.Context, l *domain.Loan) error
	SearchFn         func(ctx context.Context, f domain.Filter) ([]domain.Listing, int64, error)
	ReserveFundingFn func(ctx context.Context, loanID string, amount decimal.Decimal, at time.Time) (*domain.Loan, error)
	ReleaseFundingFn func(ctx context.Context, loanID string, amount decimal.Decimal) (*domain.Loan, error)
	SetScheduleFn    func(ctx context.Context, loanID string, s []domain.Installment) error
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.ForUpdateFn != nil {
		return m.ForUpdateFn(ctx, loanID)
	}
	return m.GetByLoanID(ctx, loanID)
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) Search(ctx context.Context, f domain.Filter) ([]domain.Listing, int64, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, f)
	}
	return nil, 0, nil
}

func (m *Repo) ReserveFunding(ctx context.Context, loanID string, amount decimal.Decimal, at time.Time) (*domain.Loan, error) {
	if m.ReserveFundingFn != nil {
		return m.ReserveFundingFn(ctx, loanID, amount, at)
	}
	return nil, context.Canceled
}

func (m *Repo) ReleaseFunding(ctx context.Context, loanID string, amount decimal.Decimal) (*domain.Loan, error) {
	if m.ReleaseFundingFn != nil {
		return m.ReleaseFundingFn(ctx, loanID, amount)
	}
	return nil, context.Canceled
}

func (m *Repo) SetSchedule(ctx context.Context, loanID string, s []domain.Installment) error {
	if m.SetScheduleFn != nil {
		return m.SetScheduleFn(ctx, loanID, s)
	}
	return nil
}
