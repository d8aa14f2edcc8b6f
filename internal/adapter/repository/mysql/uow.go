package mysql

import (
	"context"

	"p2p-lending-backend/internal/domain/transaction"
	"p2p-lending-backend/internal/domain/uow"

	"gorm.io/gorm"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func reposFor(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Loans:         &LoanRepository{db: tx},
		Investments:   &InvestmentRepository{db: tx},
		Transactions:  &TransactionRepository{db: tx},
		Users:         &UserRepository{db: tx},
		Confirmations: &ConfirmationRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	})
}

func (u *GormUoW) WithinTransactionTx(ctx context.Context, transactionID string, fn func(r uow.Repos, t *transaction.Transaction) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		// lock the payment row up-front so settle/fail cannot interleave
		t, err := r.Transactions.GetByTransactionIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		return fn(r, t)
	})
}
