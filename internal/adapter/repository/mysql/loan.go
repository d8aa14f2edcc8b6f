package mysql

import (
	"context"
	"errors"
	"strings"
	"time"

	loanDomain "p2p-lending-backend/internal/domain/loan"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

// Tx runs fn in a db transaction, passing a repo bound to the tx
func (r *LoanRepository) Tx(ctx context.Context, fn func(repo loanDomain.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&LoanRepository{db: tx})
	})
}

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	return r.get(r.db.WithContext(ctx), loanID)
}

func (r *LoanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), loanID)
}

func (r *LoanRepository) get(q *gorm.DB, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	err := q.Where("loan_id = ?", loanID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

var sortColumns = map[loanDomain.SortField]string{
	loanDomain.SortAmount:       "loans.amount",
	loanDomain.SortInterestRate: "loans.interest_rate",
	loanDomain.SortDuration:     "loans.term_months",
	loanDomain.SortDateCreated:  "loans.created_at",
}

func (r *LoanRepository) Search(ctx context.Context, f loanDomain.Filter) ([]loanDomain.Listing, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Joins("LEFT JOIN users ON users.user_id = loans.borrower_id")
	if f.BorrowerID != "" {
		q = q.Where("loans.borrower_id = ?", f.BorrowerID)
	}
	if f.Status != "" {
		q = q.Where("loans.status = ?", string(f.Status))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(loans.purpose) LIKE ? OR LOWER(users.name) LIKE ?)", like, like)
	}
	// reusable: Count must not leak into the page query
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[f.Sort]
	if !ok {
		col = sortColumns[loanDomain.SortDateCreated]
	}
	dir := " ASC"
	if f.Desc {
		dir = " DESC"
	}

	page := q.Select("loans.*, users.name AS borrower_name").Order(col + dir)
	if f.Limit > 0 {
		page = page.Limit(f.Limit).Offset(f.Offset)
	}
	var out []loanDomain.Listing
	if err := page.Scan(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Assignments that read currently_funded come before the one that writes it:
// MySQL evaluates single-table SET clauses left to right.
const reserveFundingSQL = `UPDATE loans SET
	status = CASE WHEN currently_funded + ? >= amount THEN ? ELSE ? END,
	funded_at = CASE WHEN currently_funded + ? >= amount THEN ? ELSE funded_at END,
	currently_funded = currently_funded + ?,
	updated_at = ?
WHERE loan_id = ? AND deleted_at IS NULL AND status IN (?, ?) AND currently_funded + ? <= amount`

func (r *LoanRepository) ReserveFunding(ctx context.Context, loanID string, amount decimal.Decimal, at time.Time) (*loanDomain.Loan, error) {
	res := r.db.WithContext(ctx).Exec(reserveFundingSQL,
		amount, string(loanDomain.StatusFunded), string(loanDomain.StatusFunding),
		amount, at,
		amount,
		at,
		loanID, string(loanDomain.StatusAvailable), string(loanDomain.StatusFunding), amount,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	l, err := r.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		if !l.Status.Investable() {
			return l, loanDomain.ErrNotInvestable
		}
		return l, loanDomain.ErrExceedsRemaining
	}
	return l, nil
}

const releaseFundingSQL = `UPDATE loans SET
	status = CASE WHEN currently_funded - ? <= 0 THEN ? ELSE ? END,
	funded_at = NULL,
	currently_funded = currently_funded - ?,
	updated_at = ?
WHERE loan_id = ? AND deleted_at IS NULL AND status IN (?, ?) AND currently_funded >= ?`

func (r *LoanRepository) ReleaseFunding(ctx context.Context, loanID string, amount decimal.Decimal) (*loanDomain.Loan, error) {
	res := r.db.WithContext(ctx).Exec(releaseFundingSQL,
		amount, string(loanDomain.StatusAvailable), string(loanDomain.StatusFunding),
		amount,
		time.Now().UTC(),
		loanID, string(loanDomain.StatusFunding), string(loanDomain.StatusFunded), amount,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	l, err := r.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return l, loanDomain.ErrNothingToRelease
	}
	return l, nil
}

func (r *LoanRepository) SetSchedule(ctx context.Context, loanID string, schedule []loanDomain.Installment) error {
	return r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("loan_id = ?", loanID).
		Update("repayment_schedule", datatypes.JSONSlice[loanDomain.Installment](schedule)).Error
}
