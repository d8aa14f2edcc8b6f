package loan

import (
	"time"

	domain "p2p-lending-backend/internal/domain/loan"

	"github.com/shopspring/decimal"
)

// Rules bound what a borrower may apply for.
type Rules struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	Terms     []int
	MinRate   float64
	MaxRate   float64
	Purposes  []string
}

func DefaultRules() Rules {
	return Rules{
		MinAmount: decimal.NewFromInt(5_000),
		MaxAmount: decimal.NewFromInt(1_000_000),
		Terms:     []int{3, 6, 12, 24, 36},
		MinRate:   5,
		MaxRate:   25,
		Purposes: []string{
			"Business Expansion",
			"Education",
			"Real Estate",
			"Personal",
			"Debt Consolidation",
			"Emergency",
		},
	}
}

type ApplyInput struct {
	BorrowerID   string
	Amount       decimal.Decimal
	TermMonths   int
	InterestRate float64
	Purpose      string
	Description  string
	// nil means personal
	LoanType *int
}

type SearchInput struct {
	// BorrowerID narrows to one borrower's loans; empty is the whole market.
	BorrowerID string
	Search     string
	Status     string
	Sort       string
	Direction  string
	Page       int
	PageSize   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type LoanDTO struct {
	LoanID            string               `json:"loan_id"`
	BorrowerID        string               `json:"borrower_id"`
	BorrowerName      string               `json:"borrower_name,omitempty"`
	Amount            decimal.Decimal      `json:"amount"`
	InterestRate      float64              `json:"interest_rate"`
	TermMonths        int                  `json:"term_months"`
	LoanType          int                  `json:"loan_type"`
	Purpose           string               `json:"purpose"`
	Description       string               `json:"description"`
	RiskScore         *float64             `json:"risk_score,omitempty"`
	Status            string               `json:"status"`
	CurrentlyFunded   decimal.Decimal      `json:"currently_funded"`
	Remaining         decimal.Decimal      `json:"remaining"`
	FundedAt          *time.Time           `json:"funded_at,omitempty"`
	RepaymentSchedule []domain.Installment `json:"repayment_schedule,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

type Stats struct {
	TotalAvailable      int     `json:"total_available"`
	TotalFunding        int     `json:"total_funding"`
	AverageInterestRate float64 `json:"average_interest_rate"`
}

type Page struct {
	Results  []LoanDTO `json:"results"`
	Count    int64     `json:"count"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Stats    Stats     `json:"stats"`
}

func toDTO(l *domain.Loan, borrowerName string) LoanDTO {
	return LoanDTO{
		LoanID:            l.LoanID,
		BorrowerID:        l.BorrowerID,
		BorrowerName:      borrowerName,
		Amount:            l.Amount,
		InterestRate:      l.InterestRate,
		TermMonths:        l.TermMonths,
		LoanType:          int(l.LoanType),
		Purpose:           l.Purpose,
		Description:       l.Description,
		RiskScore:         l.RiskScore,
		Status:            string(l.Status),
		CurrentlyFunded:   l.CurrentlyFunded,
		Remaining:         l.Remaining(),
		FundedAt:          l.FundedAt,
		RepaymentSchedule: l.RepaymentSchedule,
		CreatedAt:         l.CreatedAt,
	}
}
