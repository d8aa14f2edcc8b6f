package mysql

import (
	"context"
	"errors"
	"time"

	txDomain "p2p-lending-backend/internal/domain/transaction"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *txDomain.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TransactionRepository) Save(ctx context.Context, t *txDomain.Transaction) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *TransactionRepository) first(q *gorm.DB) (*txDomain.Transaction, error) {
	var out txDomain.Transaction
	err := q.First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, txDomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*txDomain.Transaction, error) {
	return r.first(r.db.WithContext(ctx).Where("transaction_id = ?", transactionID))
}

// SELECT ... FOR UPDATE on MySQL; the sqlite driver drops the locking clause.
func (r *TransactionRepository) GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*txDomain.Transaction, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionID))
}

func (r *TransactionRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*txDomain.Transaction, error) {
	if checkoutRequestID == "" {
		return nil, txDomain.ErrNotFound
	}
	t, err := r.first(r.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID))
	if !errors.Is(err, txDomain.ErrNotFound) {
		return t, err
	}
	// superseded by a later push
	return r.first(r.db.WithContext(ctx).
		Joins("JOIN payment_attempts ON payment_attempts.transaction_id = transactions.transaction_id").
		Where("payment_attempts.checkout_request_id = ?", checkoutRequestID))
}

func (r *TransactionRepository) AddAttempt(ctx context.Context, a *txDomain.Attempt) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *TransactionRepository) ListAttempts(ctx context.Context, transactionID string) ([]txDomain.Attempt, error) {
	var out []txDomain.Attempt
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *TransactionRepository) FlagForReview(ctx context.Context, transactionID, receipt, note string) error {
	res := r.db.WithContext(ctx).
		Model(&txDomain.Transaction{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]any{
			"review_required":  true,
			"review_note":      note,
			"provider_receipt": gorm.Expr("CASE WHEN provider_receipt = '' OR provider_receipt IS NULL THEN ? ELSE provider_receipt END", receipt),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return txDomain.ErrNotFound
	}
	return nil
}

func (r *TransactionRepository) ListForReview(ctx context.Context, limit, offset int) ([]txDomain.Transaction, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&txDomain.Transaction{}).
		Where("review_required = ?", true).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []txDomain.Transaction
	page := q.Order("updated_at DESC, id DESC")
	if limit > 0 {
		page = page.Limit(limit).Offset(offset)
	}
	return out, total, page.Find(&out).Error
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]txDomain.Transaction, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&txDomain.Transaction{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page := q.Order("created_at DESC, id DESC")
	if limit > 0 {
		page = page.Limit(limit).Offset(offset)
	}
	var out []txDomain.Transaction
	if err := page.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *TransactionRepository) ListPending(ctx context.Context, method txDomain.Method, createdBefore time.Time, limit int) ([]txDomain.Transaction, error) {
	var out []txDomain.Transaction
	q := r.db.WithContext(ctx).
		Where("status = ? AND payment_method = ? AND created_at < ?",
			string(txDomain.StatusPending), string(method), createdBefore).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return out, q.Find(&out).Error
}
