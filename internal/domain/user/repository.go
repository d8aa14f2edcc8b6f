package user

import (
	"context"

	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByUserID(ctx context.Context, userID string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	// Save writes the profile columns. Unique clashes return ErrDuplicate.
	Save(ctx context.Context, u *User) error
	// AddTotals increments the running totals in place (no read-modify-write).
	AddTotals(ctx context.Context, userID string, invested, borrowed decimal.Decimal) error
}
