package loan

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type SortField string

const (
	SortAmount       SortField = "amount"
	SortInterestRate SortField = "interestRate"
	SortDuration     SortField = "duration"
	SortDateCreated  SortField = "dateCreated"
)

type Filter struct {
	Search string
	// BorrowerID narrows to one borrower's loans.
	BorrowerID string
	// Status empty means all.
	Status Status
	Sort   SortField
	Desc   bool
	Limit  int
	Offset int
}

// Listing is a loan joined with its borrower's display name.
type Listing struct {
	Loan         `gorm:"embedded"`
	BorrowerName string `gorm:"column:borrower_name"`
}

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	GetByLoanID(ctx context.Context, loanID string) (*Loan, error)
	// GetByLoanIDForUpdate locks the row until the surrounding tx ends.
	GetByLoanIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	Save(ctx context.Context, l *Loan) error
	Search(ctx context.Context, f Filter) ([]Listing, int64, error)

	// ReserveFunding atomically adds amount to currently_funded and moves the
	// status to Funding or Funded. It never lets currently_funded exceed amount.
	ReserveFunding(ctx context.Context, loanID string, amount decimal.Decimal, at time.Time) (*Loan, error)
	// ReleaseFunding is the inverse, used when a reserved payment fails.
	ReleaseFunding(ctx context.Context, loanID string, amount decimal.Decimal) (*Loan, error)
	SetSchedule(ctx context.Context, loanID string, schedule []Installment) error
}
