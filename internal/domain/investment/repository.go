package investment

import "context"

type Repository interface {
	Create(ctx context.Context, in *Investment) error
	GetByInvestmentID(ctx context.Context, investmentID string) (*Investment, error)
	Save(ctx context.Context, in *Investment) error
	ListByInvestor(ctx context.Context, investorID string, limit, offset int) ([]Investment, error)
	ListByLoan(ctx context.Context, loanID string) ([]Investment, error)
}
