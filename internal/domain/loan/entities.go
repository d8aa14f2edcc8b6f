package loan

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

// Canonical vocabulary. The legacy pending/active/fully funded values are
// accepted on input only, see ParseStatus.
const (
	StatusAvailable Status = "Available"
	StatusFunding   Status = "Funding"
	StatusFunded    Status = "Funded"
	StatusRepaid    Status = "Repaid"
	StatusDefaulted Status = "Defaulted"
)

var legacyStatus = map[string]Status{
	"pending":      StatusAvailable,
	"active":       StatusFunding,
	"fully funded": StatusFunded,
	"fully_funded": StatusFunded,
}

// ParseStatus resolves either vocabulary, case-insensitively.
func ParseStatus(s string) (Status, bool) {
	k := strings.ToLower(strings.TrimSpace(s))
	for _, st := range []Status{StatusAvailable, StatusFunding, StatusFunded, StatusRepaid, StatusDefaulted} {
		if strings.ToLower(string(st)) == k {
			return st, true
		}
	}
	st, ok := legacyStatus[k]
	return st, ok
}

// Investable reports whether new money may be committed to a loan in this status.
func (s Status) Investable() bool { return s == StatusAvailable || s == StatusFunding }

type Type int

const (
	TypeBusiness  Type = 1
	TypePersonal  Type = 2
	TypeEducation Type = 3
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

type Installment struct {
	DueDate time.Time         `json:"due_date"`
	Amount  decimal.Decimal   `json:"amount"`
	Status  InstallmentStatus `json:"status"`
}

type Loan struct {
	ID                uint64                           `gorm:"primaryKey;column:id" json:"-"`
	LoanID            string                           `gorm:"size:32;uniqueIndex:ux_loans_loan_id" json:"loan_id"`
	BorrowerID        string                           `gorm:"size:32;index:idx_loans_borrower" json:"borrower_id"`
	Amount            decimal.Decimal                  `gorm:"type:decimal(18,2);not null" json:"amount"`
	InterestRate      float64                          `gorm:"type:decimal(6,2);not null" json:"interest_rate"`
	TermMonths        int                              `gorm:"not null" json:"term_months"`
	LoanType          Type                             `gorm:"not null;default:2" json:"loan_type"`
	Purpose           string                           `gorm:"size:64;not null" json:"purpose"`
	Description       string                           `gorm:"type:text" json:"description"`
	RiskScore         *float64                         `gorm:"type:decimal(6,2)" json:"risk_score,omitempty"`
	Status            Status                           `gorm:"size:16;not null;default:'Available';index:idx_loans_status" json:"status"`
	CurrentlyFunded   decimal.Decimal                  `gorm:"type:decimal(18,2);not null;default:0" json:"currently_funded"`
	FundedAt          *time.Time                       `json:"funded_at,omitempty"`
	RepaidAt          *time.Time                       `json:"repaid_at,omitempty"`
	RepaymentSchedule datatypes.JSONSlice[Installment] `json:"repayment_schedule"`
	CreatedAt         time.Time                        `gorm:"autoCreateTime;index:idx_loans_created" json:"created_at"`
	UpdatedAt         time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt                   `gorm:"index" json:"-"`
}

func (Loan) TableName() string { return "loans" }

// Remaining is the principal not yet committed by investors.
func (l *Loan) Remaining() decimal.Decimal {
	r := l.Amount.Sub(l.CurrentlyFunded)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
