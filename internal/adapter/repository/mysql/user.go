package mysql

import (
	"context"
	"errors"
	"strings"

	userDomain "p2p-lending-backend/internal/domain/user"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type UserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) *UserRepository { return &UserRepository{db: db} }

func duplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return userDomain.ErrDuplicate
	}
	return err
}

func (r *UserRepository) Create(ctx context.Context, u *userDomain.User) error {
	return duplicate(r.db.WithContext(ctx).Create(u).Error)
}

// Save leaves the running totals alone; AddTotals owns them.
func (r *UserRepository) Save(ctx context.Context, u *userDomain.User) error {
	err := r.db.WithContext(ctx).
		Model(u).
		Select("name", "email", "phone_number", "country", "updated_at").
		Updates(u).Error
	return duplicate(err)
}

func (r *UserRepository) GetByUserID(ctx context.Context, userID string) (*userDomain.User, error) {
	return r.first(r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*userDomain.User, error) {
	return r.first(r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)))
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*userDomain.User, error) {
	return r.first(r.db.WithContext(ctx).Where("phone_number = ?", phone))
}

func (r *UserRepository) first(q *gorm.DB) (*userDomain.User, error) {
	var out userDomain.User
	err := q.First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userDomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *UserRepository) AddTotals(ctx context.Context, userID string, invested, borrowed decimal.Decimal) error {
	if invested.IsZero() && borrowed.IsZero() {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&userDomain.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"total_invested": gorm.Expr("total_invested + ?", invested),
			"total_borrowed": gorm.Expr("total_borrowed + ?", borrowed),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return userDomain.ErrNotFound
	}
	return nil
}
