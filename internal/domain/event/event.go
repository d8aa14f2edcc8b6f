// Package event carries lending domain events from usecases to whatever
// records or forwards them (notifications, the message broker).
package event

import (
	"context"
	"time"
)

type Type string

const (
	TypeLoanCreated       Type = "loan.created"
	TypeLoanFunded        Type = "loan.funded"
	TypeInvestmentSettled Type = "investment.settled"
	TypeInvestmentFailed  Type = "investment.failed"
)

type Event struct {
	Type         Type      `json:"type"`
	LoanID       string    `json:"loan_id,omitempty"`
	BorrowerID   string    `json:"borrower_id,omitempty"`
	InvestorID   string    `json:"investor_id,omitempty"`
	InvestmentID string    `json:"investment_id,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler consumes a single event.
type Handler func(ctx context.Context, ev Event) error

// DirectPublisher hands events straight to a handler in-process. It is used
// when no broker is configured.
type DirectPublisher struct{ Handle Handler }

func (p DirectPublisher) Publish(ctx context.Context, ev Event) error {
	if p.Handle == nil {
		return nil
	}
	return p.Handle(ctx, ev)
}
