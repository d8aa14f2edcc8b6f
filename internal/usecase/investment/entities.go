package investment

import (
	"github.com/shopspring/decimal"
)

// BankDetails are shown to lenders paying by bank transfer.
type BankDetails struct {
	BankName    string `json:"bank_name"`
	Paybill     string `json:"paybill"`
	AccountName string `json:"account_name"`
	// AccountNumber is the transaction id; the back office matches on it.
	AccountNumber string `json:"account_number"`
}

type Config struct {
	MinAmount decimal.Decimal
	Bank      BankDetails
}

func DefaultConfig() Config {
	return Config{
		MinAmount: decimal.NewFromInt(1_000),
		Bank: BankDetails{
			BankName:    "Equity Bank",
			Paybill:     "247247",
			AccountName: "P2P Lending Escrow",
		},
	}
}

type SubmitInput struct {
	InvestorID    string
	LoanID        string
	Amount        decimal.Decimal
	PaymentMethod string
	AgreedToTerms bool
	PhoneNumber   string
}

type SubmitResult struct {
	PaymentMethod     string          `json:"payment_method"`
	InvestmentID      string          `json:"investment_id"`
	TransactionID     string          `json:"transaction_id"`
	Amount            decimal.Decimal `json:"amount"`
	MerchantRequestID string          `json:"merchant_request_id,omitempty"`
	CheckoutRequestID string          `json:"checkout_request_id,omitempty"`
	CustomerMessage   string          `json:"customer_message,omitempty"`
	Bank              *BankDetails    `json:"bank,omitempty"`
	Status            string          `json:"status"`
}

// ConfirmInput is the back office's verdict on a bank transfer.
type ConfirmInput struct {
	AdminID   string
	Reference string
	Failed    bool
	Reason    string
}
