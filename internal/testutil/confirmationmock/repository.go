package confirmationmock

import (
	"context"

	domain "p2p-lending-backend/internal/domain/confirmation"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	CreateFn             func(ctx context.Context, c *domain.BankConfirmation) error
	GetByTransactionIDFn func(ctx context.Context, transactionNumericID uint64) (*domain.BankConfirmation, error)
}

func (m *Repo) Create(ctx context.Context, c *domain.BankConfirmation) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, c)
	}
	return nil
}

func (m *Repo) GetByTransactionID(ctx context.Context, transactionNumericID uint64) (*domain.BankConfirmation, error) {
	if m.GetByTransactionIDFn != nil {
		return m.GetByTransactionIDFn(ctx, transactionNumericID)
	}
	return nil, domain.ErrNotFound
}
