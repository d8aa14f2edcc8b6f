package investment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("investment not found")

type Status string

// pending holds reserved loan capacity until its payment settles.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusRepaid    Status = "repaid"
	StatusDefaulted Status = "defaulted"
)

type Investment struct {
	ID             uint64              `gorm:"primaryKey;column:id" json:"-"`
	InvestmentID   string              `gorm:"size:32;uniqueIndex:ux_investments_investment_id" json:"investment_id"`
	InvestorID     string              `gorm:"size:32;not null;index:idx_investments_investor" json:"investor_id"`
	LoanID         string              `gorm:"size:32;not null;index:idx_investments_loan" json:"loan_id"`
	Amount         decimal.Decimal     `gorm:"type:decimal(18,2);not null" json:"amount"`
	Status         Status              `gorm:"size:16;not null;default:'pending'" json:"status"`
	ExpectedReturn decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0" json:"expected_return"`
	ActualReturn   decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"actual_return"`
	DateInvested   time.Time           `json:"date_invested"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Investment) TableName() string { return "investments" }
