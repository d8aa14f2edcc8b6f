package mysql

import (
	"context"
	"errors"

	investmentDomain "p2p-lending-backend/internal/domain/investment"

	"gorm.io/gorm"
)

type InvestmentRepository struct{ db *gorm.DB }

func NewInvestmentRepository(db *gorm.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

func (r *InvestmentRepository) Create(ctx context.Context, in *investmentDomain.Investment) error {
	return r.db.WithContext(ctx).Create(in).Error
}

func (r *InvestmentRepository) Save(ctx context.Context, in *investmentDomain.Investment) error {
	return r.db.WithContext(ctx).Save(in).Error
}

func (r *InvestmentRepository) GetByInvestmentID(ctx context.Context, investmentID string) (*investmentDomain.Investment, error) {
	var out investmentDomain.Investment
	err := r.db.WithContext(ctx).Where("investment_id = ?", investmentID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, investmentDomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *InvestmentRepository) ListByInvestor(ctx context.Context, investorID string, limit, offset int) ([]investmentDomain.Investment, error) {
	var out []investmentDomain.Investment
	q := r.db.WithContext(ctx).
		Where("investor_id = ?", investorID).
		Order("date_invested DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	return out, q.Find(&out).Error
}

func (r *InvestmentRepository) ListByLoan(ctx context.Context, loanID string) ([]investmentDomain.Investment, error) {
	var out []investmentDomain.Investment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
