package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("transaction not found")

type Type string

const (
	TypeDeposit        Type = "deposit"
	TypeWithdrawal     Type = "withdrawal"
	TypeLoanPayment    Type = "loan_payment"
	TypeInvestment     Type = "investment"
	TypeInterestEarned Type = "interest_earned"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Method string

const (
	MethodMpesa Method = "mpesa"
	MethodBank  Method = "bank"
	// MethodCard is declared for clients but never accepted.
	MethodCard Method = "card"
)

type Transaction struct {
	ID                uint64          `gorm:"primaryKey;column:id" json:"-"`
	TransactionID     string          `gorm:"size:32;uniqueIndex:ux_transactions_transaction_id" json:"transaction_id"`
	UserID            string          `gorm:"size:32;not null;index:idx_transactions_user" json:"user_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Type              Type            `gorm:"size:20;not null" json:"type"`
	Status            Status          `gorm:"size:16;not null;default:'pending';index:idx_transactions_status" json:"status"`
	PaymentMethod     Method          `gorm:"size:16" json:"payment_method,omitempty"`
	PhoneNumber       string          `gorm:"size:20" json:"phone_number,omitempty"`
	LoanID            *string         `gorm:"size:32" json:"loan_id,omitempty"`
	InvestmentID      *string         `gorm:"size:32" json:"investment_id,omitempty"`
	MerchantRequestID string          `gorm:"size:64" json:"merchant_request_id,omitempty"`
	CheckoutRequestID string          `gorm:"size:64;index:idx_transactions_checkout" json:"checkout_request_id,omitempty"`
	ProviderReceipt   string          `gorm:"size:64" json:"provider_receipt,omitempty"`
	FailureReason     string          `gorm:"size:255" json:"failure_reason,omitempty"`
	Description       string          `gorm:"size:255" json:"description,omitempty"`
	SettledAt         *time.Time      `json:"settled_at,omitempty"`
	// set when the provider's outcome disagrees with ours; needs a human
	ReviewRequired bool      `gorm:"not null;default:false;index:idx_transactions_review" json:"review_required,omitempty"`
	ReviewNote     string    `gorm:"size:255" json:"review_note,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// Attempt is one STK push sent for a transaction. A transaction can be pushed
// more than once; callbacks for any of its checkouts must still find it.
type Attempt struct {
	ID                uint64    `gorm:"primaryKey;column:id" json:"-"`
	TransactionID     string    `gorm:"size:32;not null;index:idx_payment_attempts_transaction" json:"transaction_id"`
	CheckoutRequestID string    `gorm:"size:64;not null;index:idx_payment_attempts_checkout" json:"checkout_request_id"`
	MerchantRequestID string    `gorm:"size:64" json:"merchant_request_id,omitempty"`
	PhoneNumber       string    `gorm:"size:20" json:"phone_number,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Attempt) TableName() string { return "payment_attempts" }
