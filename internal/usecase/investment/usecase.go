package investment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/domain/confirmation"
	"p2p-lending-backend/internal/domain/event"
	"p2p-lending-backend/internal/domain/investment"
	"p2p-lending-backend/internal/domain/loan"
	"p2p-lending-backend/internal/domain/payment"
	"p2p-lending-backend/internal/domain/transaction"
	"p2p-lending-backend/internal/domain/uow"
	"p2p-lending-backend/internal/domain/user"
	"p2p-lending-backend/internal/infrastructure/metrics"
	"p2p-lending-backend/pkg/id"
	"p2p-lending-backend/pkg/msisdn"

	"github.com/shopspring/decimal"
)

type Usecase struct {
	uow     uow.UnitOfWork
	gw      payment.Gateway
	pub     event.Publisher
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

func NewUsecase(u uow.UnitOfWork, gw payment.Gateway, pub event.Publisher, m *metrics.Metrics, cfg Config) *Usecase {
	return &Usecase{uow: u, gw: gw, pub: pub, metrics: m, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

func (u *Usecase) checkInput(in SubmitInput) (transaction.Method, error) {
	method := transaction.Method(strings.ToLower(strings.TrimSpace(in.PaymentMethod)))
	switch method {
	case transaction.MethodCard:
		return "", apperror.Unavailable("card payments are currently unavailable")
	case transaction.MethodMpesa, transaction.MethodBank:
	default:
		return "", apperror.Field("payment_method", "must be mpesa or bank")
	}
	if !in.AgreedToTerms {
		return "", apperror.Field("agreed_to_terms", "you must agree to the investment terms")
	}
	if !in.Amount.Equal(in.Amount.Truncate(0)) {
		return "", apperror.Field("amount", "must be a whole number of shillings")
	}
	if in.Amount.LessThan(u.cfg.MinAmount) {
		return "", apperror.Field("amount", "minimum investment is "+u.cfg.MinAmount.String())
	}
	return method, nil
}

func methodLabel(s string) string {
	switch m := transaction.Method(strings.ToLower(strings.TrimSpace(s))); m {
	case transaction.MethodMpesa, transaction.MethodBank, transaction.MethodCard:
		return string(m)
	}
	return "other"
}

// resolvePhone picks the payer's number for M-Pesa: the request's, else the profile's.
func (u *Usecase) resolvePhone(ctx context.Context, r uow.Repos, method transaction.Method, in SubmitInput) (string, error) {
	if method != transaction.MethodMpesa {
		return "", nil
	}
	raw := in.PhoneNumber
	if raw == "" {
		usr, err := r.Users.GetByUserID(ctx, in.InvestorID)
		if err != nil && !errors.Is(err, user.ErrNotFound) {
			return "", err
		}
		if usr != nil {
			raw = usr.PhoneNumber
		}
	}
	if raw == "" {
		return "", apperror.Field("phone_number", "is required for mpesa payments")
	}
	phone, err := msisdn.Normalize(raw)
	if err != nil {
		return "", apperror.Field("phone_number", err.Error())
	}
	return phone, nil
}

func reservationError(err error, l *loan.Loan) error {
	switch {
	case errors.Is(err, loan.ErrNotFound):
		return apperror.NotFound("loan not found")
	case errors.Is(err, loan.ErrNotInvestable):
		return apperror.Conflict("loan is not open for investment")
	case errors.Is(err, loan.ErrExceedsRemaining):
		return apperror.Field("amount", "amount exceeds remaining loan balance of "+l.Remaining().String())
	}
	return err
}

// Submit reserves loan capacity for a pending investment and starts the
// payment. Investment, transaction and the funding increment commit together.
func (u *Usecase) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	method, err := u.checkInput(in)
	if err != nil {
		u.metrics.InvestmentSubmitted(methodLabel(in.PaymentMethod), "rejected")
		return nil, err
	}

	now := u.now()
	var (
		inv *investment.Investment
		tx  *transaction.Transaction
	)
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.ReserveFunding(ctx, in.LoanID, in.Amount, now)
		if err != nil {
			return reservationError(err, l)
		}
		// rolls the reservation back with the rest of the tx
		phone, err := u.resolvePhone(ctx, r, method, in)
		if err != nil {
			return err
		}

		inv = &investment.Investment{
			InvestmentID:   id.NewID32(),
			InvestorID:     in.InvestorID,
			LoanID:         l.LoanID,
			Amount:         in.Amount,
			Status:         investment.StatusPending,
			ExpectedReturn: loan.ExpectedReturn(l, in.Amount),
			DateInvested:   now,
		}
		if err := r.Investments.Create(ctx, inv); err != nil {
			return err
		}

		loanID, invID := l.LoanID, inv.InvestmentID
		tx = &transaction.Transaction{
			TransactionID: id.NewID32(),
			UserID:        in.InvestorID,
			Amount:        in.Amount,
			Type:          transaction.TypeInvestment,
			Status:        transaction.StatusPending,
			PaymentMethod: method,
			PhoneNumber:   phone,
			LoanID:        &loanID,
			InvestmentID:  &invID,
			Description:   fmt.Sprintf("Investment in loan %s", id.AccountReference(l.LoanID)),
		}
		if err := r.Transactions.Create(ctx, tx); err != nil {
			return err
		}

		if l.Status == loan.StatusFunded {
			// loan.funded waits for the last payment to settle
			return r.Loans.SetSchedule(ctx, l.LoanID, loan.AmortizationSchedule(l.Amount, l.InterestRate, l.TermMonths, now))
		}
		return nil
	})
	if err != nil {
		u.metrics.InvestmentSubmitted(string(method), "rejected")
		return nil, err
	}

	res := &SubmitResult{
		PaymentMethod: string(method),
		InvestmentID:  inv.InvestmentID,
		TransactionID: tx.TransactionID,
		Amount:        inv.Amount,
		Status:        string(payment.StatusPending),
	}

	if method == transaction.MethodBank {
		bank := u.cfg.Bank
		bank.AccountNumber = tx.TransactionID
		res.Bank = &bank
		u.metrics.InvestmentSubmitted(string(method), "accepted")
		return res, nil
	}

	push, err := u.Push(ctx, tx, in.LoanID)
	if err != nil {
		u.metrics.InvestmentSubmitted(string(method), "push_failed")
		return nil, err
	}
	res.MerchantRequestID = push.MerchantRequestID
	res.CheckoutRequestID = push.CheckoutRequestID
	res.CustomerMessage = push.CustomerMessage
	u.metrics.InvestmentSubmitted(string(method), "accepted")
	return res, nil
}

// Push sends an STK push for a pending M-Pesa transaction and records the
// provider ids on it. Every push is kept as an attempt so callbacks for an
// earlier checkout still resolve. A rejected first push fails the
// transaction, releasing any reserved capacity; a rejected re-push leaves the
// earlier checkout in play.
func (u *Usecase) Push(ctx context.Context, tx *transaction.Transaction, reference string) (*payment.PushResponse, error) {
	push, err := u.gw.InitiatePush(ctx, payment.PushRequest{
		Amount:           tx.Amount,
		PhoneNumber:      tx.PhoneNumber,
		AccountReference: id.AccountReference(reference),
		Description:      "P2P lending payment",
	})
	u.metrics.UpstreamCall("stk_push", err)
	if err != nil {
		slog.ErrorContext(ctx, "investment: stk push failed",
			"transaction_id", tx.TransactionID, "amount", tx.Amount.String(), "err", err)
		if tx.CheckoutRequestID == "" {
			if _, ferr := u.Fail(ctx, tx.TransactionID, "stk push failed", "push"); ferr != nil {
				slog.ErrorContext(ctx, "investment: release after push failure", "transaction_id", tx.TransactionID, "err", ferr)
			}
		}
		return nil, apperror.Upstream("payment failed, please retry", err)
	}

	err = u.uow.WithinTransactionTx(ctx, tx.TransactionID, func(r uow.Repos, t *transaction.Transaction) error {
		err := r.Transactions.AddAttempt(ctx, &transaction.Attempt{
			TransactionID:     t.TransactionID,
			CheckoutRequestID: push.CheckoutRequestID,
			MerchantRequestID: push.MerchantRequestID,
			PhoneNumber:       tx.PhoneNumber,
		})
		if err != nil {
			return err
		}
		t.PhoneNumber = tx.PhoneNumber
		t.MerchantRequestID = push.MerchantRequestID
		t.CheckoutRequestID = push.CheckoutRequestID
		return r.Transactions.Save(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return push, nil
}

// outcome carries what a settle/fail changed, for events after commit.
type outcome struct {
	changed    bool
	inv        *investment.Investment
	borrowerID string
	// set when this settle was the last payment of a Funded loan
	funded *loan.Loan
}

// Settle finalizes a pending transaction. Settling twice is a no-op.
func (u *Usecase) Settle(ctx context.Context, transactionID, receipt, source string) (*transaction.Transaction, error) {
	var (
		out *transaction.Transaction
		oc  outcome
	)
	err := u.uow.WithinTransactionTx(ctx, transactionID, func(r uow.Repos, t *transaction.Transaction) error {
		var err error
		oc, err = u.settleTx(ctx, r, t, receipt)
		out = t
		return err
	})
	if err != nil {
		return nil, mapTxErr(err)
	}
	u.afterSettle(ctx, out, oc, source)
	return out, nil
}

// Fail marks a pending transaction failed and releases what it reserved.
// Failing twice is a no-op.
func (u *Usecase) Fail(ctx context.Context, transactionID, reason, source string) (*transaction.Transaction, error) {
	var (
		out *transaction.Transaction
		oc  outcome
	)
	err := u.uow.WithinTransactionTx(ctx, transactionID, func(r uow.Repos, t *transaction.Transaction) error {
		var err error
		oc, err = u.failTx(ctx, r, t, reason)
		out = t
		return err
	})
	if err != nil {
		return nil, mapTxErr(err)
	}
	u.afterFail(ctx, out, oc, source)
	return out, nil
}

// ConfirmBankTransfer records the back office's verdict on a bank transfer and
// settles or fails the transaction with it.
func (u *Usecase) ConfirmBankTransfer(ctx context.Context, transactionID string, in ConfirmInput) (*transaction.Transaction, error) {
	ref := strings.TrimSpace(in.Reference)
	if !in.Failed && ref == "" {
		return nil, apperror.Field("reference", "is required to confirm a transfer")
	}

	var (
		out *transaction.Transaction
		oc  outcome
	)
	err := u.uow.WithinTransactionTx(ctx, transactionID, func(r uow.Repos, t *transaction.Transaction) error {
		if t.PaymentMethod != transaction.MethodBank {
			return apperror.Conflict("transaction is not a bank transfer")
		}
		if t.Status != transaction.StatusPending {
			return apperror.Conflict("transaction is already " + string(t.Status))
		}
		c := &confirmation.BankConfirmation{
			ConfirmationID: id.NewID32(),
			TransactionID:  t.ID,
			BankReference:  ref,
			Received:       !in.Failed,
			Note:           in.Reason,
			ConfirmedBy:    in.AdminID,
			ConfirmedAt:    u.now(),
		}
		if err := r.Confirmations.Create(ctx, c); err != nil {
			return err
		}

		var err error
		if in.Failed {
			reason := in.Reason
			if reason == "" {
				reason = "bank transfer not received"
			}
			oc, err = u.failTx(ctx, r, t, reason)
		} else {
			oc, err = u.settleTx(ctx, r, t, ref)
		}
		out = t
		return err
	})
	if err != nil {
		return nil, mapTxErr(err)
	}
	if in.Failed {
		u.afterFail(ctx, out, oc, "back_office")
	} else {
		u.afterSettle(ctx, out, oc, "back_office")
	}
	return out, nil
}

func mapTxErr(err error) error {
	if errors.Is(err, transaction.ErrNotFound) {
		return apperror.NotFound("transaction not found")
	}
	return err
}

func (u *Usecase) settleTx(ctx context.Context, r uow.Repos, t *transaction.Transaction, receipt string) (outcome, error) {
	switch t.Status {
	case transaction.StatusCompleted:
		return outcome{}, nil
	case transaction.StatusFailed:
		return outcome{}, apperror.Conflict("transaction has already failed")
	}

	oc := outcome{changed: true}
	if t.InvestmentID != nil {
		// lock the loan before reading its investments so concurrent settles
		// of the same loan agree on which one was last
		var l *loan.Loan
		if t.LoanID != nil {
			var err error
			if l, err = r.Loans.GetByLoanIDForUpdate(ctx, *t.LoanID); err != nil {
				return oc, err
			}
		}
		inv, err := r.Investments.GetByInvestmentID(ctx, *t.InvestmentID)
		if err != nil {
			return oc, err
		}
		inv.Status = investment.StatusActive
		if err := r.Investments.Save(ctx, inv); err != nil {
			return oc, err
		}
		oc.inv = inv

		if l == nil || l.LoanID != inv.LoanID {
			if l, err = r.Loans.GetByLoanID(ctx, inv.LoanID); err != nil {
				return oc, err
			}
		}
		oc.borrowerID = l.BorrowerID
		if l.Status == loan.StatusFunded {
			settled, err := u.fullySettled(ctx, r, l.LoanID)
			if err != nil {
				return oc, err
			}
			if settled {
				oc.funded = l
			}
		}

		u.addTotals(ctx, r, inv.InvestorID, inv.Amount, decimal.Zero)
		u.addTotals(ctx, r, l.BorrowerID, decimal.Zero, inv.Amount)
	}

	now := u.now()
	t.Status = transaction.StatusCompleted
	t.ProviderReceipt = receipt
	t.SettledAt = &now
	return oc, r.Transactions.Save(ctx, t)
}

func (u *Usecase) fullySettled(ctx context.Context, r uow.Repos, loanID string) (bool, error) {
	invs, err := r.Investments.ListByLoan(ctx, loanID)
	if err != nil {
		return false, err
	}
	for _, inv := range invs {
		if inv.Status == investment.StatusPending {
			return false, nil
		}
	}
	return true, nil
}

// Totals are derived; a missing profile must not block a payment that already happened.
func (u *Usecase) addTotals(ctx context.Context, r uow.Repos, userID string, invested, borrowed decimal.Decimal) {
	err := r.Users.AddTotals(ctx, userID, invested, borrowed)
	if errors.Is(err, user.ErrNotFound) {
		slog.WarnContext(ctx, "investment: totals skipped, unknown user", "user_id", userID)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "investment: update totals", "user_id", userID, "err", err)
	}
}

func (u *Usecase) failTx(ctx context.Context, r uow.Repos, t *transaction.Transaction, reason string) (outcome, error) {
	switch t.Status {
	case transaction.StatusFailed:
		return outcome{}, nil
	case transaction.StatusCompleted:
		return outcome{}, apperror.Conflict("transaction has already completed")
	}

	oc := outcome{changed: true}
	if t.InvestmentID != nil {
		inv, err := r.Investments.GetByInvestmentID(ctx, *t.InvestmentID)
		if err != nil {
			return oc, err
		}
		if inv.Status == investment.StatusPending {
			inv.Status = investment.StatusCancelled
			if err := r.Investments.Save(ctx, inv); err != nil {
				return oc, err
			}
			l, err := r.Loans.ReleaseFunding(ctx, inv.LoanID, inv.Amount)
			if err != nil {
				return oc, fmt.Errorf("release funding for %s: %w", inv.InvestmentID, err)
			}
			if l.Status != loan.StatusFunded && len(l.RepaymentSchedule) > 0 {
				if err := r.Loans.SetSchedule(ctx, l.LoanID, nil); err != nil {
					return oc, err
				}
			}
			oc.borrowerID = l.BorrowerID
		}
		oc.inv = inv
	}

	now := u.now()
	t.Status = transaction.StatusFailed
	t.FailureReason = reason
	t.SettledAt = &now
	return oc, r.Transactions.Save(ctx, t)
}

func (u *Usecase) afterSettle(ctx context.Context, t *transaction.Transaction, oc outcome, source string) {
	if !oc.changed {
		return
	}
	u.metrics.PaymentResolved(string(t.Status), source)
	slog.InfoContext(ctx, "transaction settled", "transaction_id", t.TransactionID, "source", source)
	if oc.inv == nil {
		return
	}
	u.publish(ctx, event.Event{
		Type:         event.TypeInvestmentSettled,
		LoanID:       oc.inv.LoanID,
		BorrowerID:   oc.borrowerID,
		InvestorID:   oc.inv.InvestorID,
		InvestmentID: oc.inv.InvestmentID,
		Amount:       oc.inv.Amount.String(),
		OccurredAt:   u.now(),
	})
	if oc.funded != nil {
		u.metrics.LoanFunded()
		slog.InfoContext(ctx, "loan fully funded", "loan_id", oc.funded.LoanID)
		u.publish(ctx, event.Event{
			Type:       event.TypeLoanFunded,
			LoanID:     oc.funded.LoanID,
			BorrowerID: oc.funded.BorrowerID,
			Amount:     oc.funded.Amount.String(),
			OccurredAt: u.now(),
		})
	}
}

func (u *Usecase) afterFail(ctx context.Context, t *transaction.Transaction, oc outcome, source string) {
	if !oc.changed {
		return
	}
	u.metrics.PaymentResolved(string(t.Status), source)
	slog.InfoContext(ctx, "transaction failed", "transaction_id", t.TransactionID, "reason", t.FailureReason, "source", source)
	if oc.inv == nil {
		return
	}
	u.publish(ctx, event.Event{
		Type:         event.TypeInvestmentFailed,
		LoanID:       oc.inv.LoanID,
		BorrowerID:   oc.borrowerID,
		InvestorID:   oc.inv.InvestorID,
		InvestmentID: oc.inv.InvestmentID,
		Amount:       oc.inv.Amount.String(),
		Reason:       t.FailureReason,
		OccurredAt:   u.now(),
	})
}

func (u *Usecase) publish(ctx context.Context, ev event.Event) {
	if u.pub == nil {
		return
	}
	if err := u.pub.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "investment: publish event", "type", ev.Type, "err", err)
	}
}
