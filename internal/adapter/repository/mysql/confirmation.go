package mysql

import (
	"context"
	"errors"

	confirmationDomain "p2p-lending-backend/internal/domain/confirmation"

	"gorm.io/gorm"
)

type ConfirmationRepository struct{ db *gorm.DB }

func NewConfirmationRepository(db *gorm.DB) *ConfirmationRepository {
	return &ConfirmationRepository{db: db}
}

func (r *ConfirmationRepository) Create(ctx context.Context, c *confirmationDomain.BankConfirmation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *ConfirmationRepository) GetByTransactionID(ctx context.Context, transactionNumericID uint64) (*confirmationDomain.BankConfirmation, error) {
	var out confirmationDomain.BankConfirmation
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionNumericID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, confirmationDomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
