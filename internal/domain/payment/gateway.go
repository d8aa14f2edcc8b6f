// Package payment is the port to the mobile-money provider.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type PushRequest struct {
	Amount           decimal.Decimal
	PhoneNumber      string
	AccountReference string
	Description      string
}

type PushResponse struct {
	MerchantRequestID   string `json:"merchant_request_id"`
	CheckoutRequestID   string `json:"checkout_request_id"`
	ResponseCode        string `json:"response_code"`
	ResponseDescription string `json:"response_description"`
	CustomerMessage     string `json:"customer_message"`
}

type StatusResult struct {
	Status     Status
	ResultCode string
	ResultDesc string
	Receipt    string
}

// CallbackResult is a decoded asynchronous provider notification.
type CallbackResult struct {
	CheckoutRequestID string
	Status            Status
	ResultDesc        string
	Receipt           string
}

type Gateway interface {
	InitiatePush(ctx context.Context, req PushRequest) (*PushResponse, error)
	CheckStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error)
}
