package uowmock

import (
	"context"
	"errors"

	"p2p-lending-backend/internal/domain/transaction"
	"p2p-lending-backend/internal/domain/uow"
)

// Ensure compile-time compliance
var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Fill in the function fields you need in a test; unfilled ones return errUnimplemented.
type UoW struct {
	WithinTxFn            func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinTransactionTxFn func(ctx context.Context, transactionID string, fn func(r uow.Repos, t *transaction.Transaction) error) error
}

func New() *UoW { return &UoW{} }

// Passthrough runs every callback directly against repos, without a real tx.
func Passthrough(repos uow.Repos) *UoW {
	return &UoW{
		WithinTxFn: func(_ context.Context, fn func(uow.Repos) error) error { return fn(repos) },
		WithinTransactionTxFn: func(ctx context.Context, transactionID string, fn func(uow.Repos, *transaction.Transaction) error) error {
			t, err := repos.Transactions.GetByTransactionIDForUpdate(ctx, transactionID)
			if err != nil {
				return err
			}
			return fn(repos, t)
		},
	}
}

func (m *UoW) Reset() { *m = UoW{} }

func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}

func (m *UoW) WithinTransactionTx(ctx context.Context, transactionID string, fn func(r uow.Repos, t *transaction.Transaction) error) error {
	if m.WithinTransactionTxFn != nil {
		return m.WithinTransactionTxFn(ctx, transactionID, fn)
	}
	return errUnimplemented
}
