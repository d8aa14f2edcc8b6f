package payment

import (
	"time"

	"p2p-lending-backend/internal/domain/transaction"

	"github.com/shopspring/decimal"
)

type Config struct {
	PollInterval    time.Duration
	PollMaxAttempts int
	// pending M-Pesa transactions younger than this are left to the callback
	QueryAfter  time.Duration
	MpesaExpiry time.Duration
	BankExpiry  time.Duration
	SweepBatch  int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		PollMaxAttempts: 24,
		QueryAfter:      2 * time.Minute,
		MpesaExpiry:     30 * time.Minute,
		BankExpiry:      72 * time.Hour,
		SweepBatch:      100,
	}
}

// Viewer is who is asking; admins may read any transaction.
type Viewer struct {
	UserID string
	Admin  bool
}

type InitiateInput struct {
	UserID      string
	PhoneNumber string
	Amount      decimal.Decimal
	// optional: re-push for an existing pending transaction
	TransactionID string
}

type InitiateResult struct {
	TransactionID     string `json:"transaction_id"`
	MerchantRequestID string `json:"merchant_request_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	CustomerMessage   string `json:"customer_message"`
}

type StatusResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

type TransactionPage struct {
	Results  []transaction.Transaction `json:"results"`
	Count    int64                     `json:"count"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"page_size"`
}

type ReconcileReport struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired"`
	// past expiry but the provider could not be asked; retried next run
	Unconfirmed int `json:"unconfirmed"`
}
