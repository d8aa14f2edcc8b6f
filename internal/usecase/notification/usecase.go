// Package notification turns lending events into per-user notifications and
// serves them back to their owners.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/domain/event"
	domain "p2p-lending-backend/internal/domain/notification"
	"p2p-lending-backend/pkg/id"

	"gorm.io/datatypes"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Usecase struct {
	repo domain.Repository
}

func NewUsecase(repo domain.Repository) *Usecase { return &Usecase{repo: repo} }

func short(loanID string) string { return id.AccountReference(loanID) }

// build maps an event to the notifications it produces.
func build(ev event.Event) []domain.Notification {
	data := datatypes.JSONMap{"event": string(ev.Type), "loan_id": ev.LoanID}
	if ev.InvestmentID != "" {
		data["investment_id"] = ev.InvestmentID
	}
	if ev.Amount != "" {
		data["amount"] = ev.Amount
	}

	var out []domain.Notification
	add := func(userID string, typ domain.Type, msg string) {
		if userID == "" {
			return
		}
		out = append(out, domain.Notification{UserID: userID, Type: typ, Message: msg, Data: data})
	}

	switch ev.Type {
	case event.TypeLoanCreated:
		add(ev.BorrowerID, domain.TypeNewLoan,
			fmt.Sprintf("Your loan request %s for KES %s is now listed on the marketplace.", short(ev.LoanID), ev.Amount))
	case event.TypeLoanFunded:
		add(ev.BorrowerID, domain.TypeLoanFunded,
			fmt.Sprintf("Your loan %s has been fully funded.", short(ev.LoanID)))
	case event.TypeInvestmentSettled:
		add(ev.InvestorID, domain.TypeSystemMessage,
			fmt.Sprintf("Your investment of KES %s in loan %s is confirmed.", ev.Amount, short(ev.LoanID)))
		add(ev.BorrowerID, domain.TypePaymentReceived,
			fmt.Sprintf("You received KES %s towards loan %s.", ev.Amount, short(ev.LoanID)))
	case event.TypeInvestmentFailed:
		msg := fmt.Sprintf("Your investment of KES %s in loan %s did not go through.", ev.Amount, short(ev.LoanID))
		if ev.Reason != "" {
			msg += " Reason: " + ev.Reason + "."
		}
		add(ev.InvestorID, domain.TypeSystemMessage, msg)
	}
	return out
}

// Record stores the notifications for ev. Unknown event types are ignored.
func (u *Usecase) Record(ctx context.Context, ev event.Event) error {
	ns := build(ev)
	for i := range ns {
		n := &ns[i]
		n.NotificationID = id.NewID32()
		if err := u.repo.Create(ctx, n); err != nil {
			return fmt.Errorf("record %s for %s: %w", ev.Type, n.UserID, err)
		}
	}
	if len(ns) == 0 {
		slog.DebugContext(ctx, "notification: event ignored", "type", ev.Type)
	}
	return nil
}

func (u *Usecase) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	ns, err := u.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		ns = []domain.Notification{}
	}
	return ns, nil
}

func (u *Usecase) MarkRead(ctx context.Context, userID, notificationID string) error {
	err := u.repo.MarkRead(ctx, userID, notificationID)
	if errors.Is(err, domain.ErrNotFound) {
		return apperror.NotFound("notification not found")
	}
	return err
}
