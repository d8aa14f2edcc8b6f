package confirmation

import "context"

type Repository interface {
	// Create a confirmation (DB uniqueness ensures at most one per transaction)
	Create(ctx context.Context, c *BankConfirmation) error

	GetByTransactionID(ctx context.Context, transactionID uint64) (*BankConfirmation, error)
}
