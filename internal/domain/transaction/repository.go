package transaction

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	// GetByTransactionIDForUpdate locks the row for the rest of the db transaction.
	GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*Transaction, error)
	// GetByCheckoutRequestID matches the current checkout or any earlier attempt.
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Transaction, error)
	AddAttempt(ctx context.Context, a *Attempt) error
	ListAttempts(ctx context.Context, transactionID string) ([]Attempt, error)
	// FlagForReview marks the row for manual review. receipt is kept only
	// when none is stored yet.
	FlagForReview(ctx context.Context, transactionID, receipt, note string) error
	ListForReview(ctx context.Context, limit, offset int) ([]Transaction, int64, error)
	Save(ctx context.Context, t *Transaction) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Transaction, int64, error)
	// ListPending returns pending transactions of a method created before the cutoff, oldest first.
	ListPending(ctx context.Context, method Method, createdBefore time.Time, limit int) ([]Transaction, error)
}
