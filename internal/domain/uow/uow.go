package uow

import (
	"context"

	"p2p-lending-backend/internal/domain/confirmation"
	"p2p-lending-backend/internal/domain/investment"
	"p2p-lending-backend/internal/domain/loan"
	"p2p-lending-backend/internal/domain/transaction"
	"p2p-lending-backend/internal/domain/user"
)

// Repos are bound to the same db transaction.
type Repos struct {
	Loans         loan.Repository
	Investments   investment.Repository
	Transactions  transaction.Repository
	Users         user.Repository
	Confirmations confirmation.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock the payment transaction row first, then pass it in
	WithinTransactionTx(ctx context.Context, transactionID string, fn func(r Repos, t *transaction.Transaction) error) error
}
