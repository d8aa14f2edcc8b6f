package user

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("email or phone number already registered")
)

type Role string

const (
	RoleBorrower Role = "borrower"
	RoleLender   Role = "lender"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID                   uint64          `gorm:"primaryKey;column:id" json:"-"`
	UserID               string          `gorm:"size:32;uniqueIndex:ux_users_user_id" json:"user_id"`
	Name                 string          `gorm:"size:128;not null" json:"name"`
	Email                string          `gorm:"size:191;not null;uniqueIndex:ux_users_email" json:"email"`
	PhoneNumber          string          `gorm:"size:20;not null;uniqueIndex:ux_users_phone" json:"phone_number"`
	Country              string          `gorm:"size:64;not null" json:"country"`
	PasswordHash         string          `gorm:"size:255;not null" json:"-"`
	Role                 Role            `gorm:"size:16;not null;default:'borrower'" json:"role"`
	CreditScore          int             `gorm:"not null;default:0" json:"credit_score"`
	CreditScoreUpdatedAt *time.Time      `json:"credit_score_updated_at,omitempty"`
	TotalInvested        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_invested"`
	TotalBorrowed        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_borrowed"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"date_joined"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }
