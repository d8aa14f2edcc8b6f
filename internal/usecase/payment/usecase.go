package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/domain/payment"
	"p2p-lending-backend/internal/domain/transaction"
	"p2p-lending-backend/internal/infrastructure/metrics"
	"p2p-lending-backend/pkg/id"
	"p2p-lending-backend/pkg/msisdn"
)

// Settler finalizes transactions; the investment usecase implements it.
type Settler interface {
	Settle(ctx context.Context, transactionID, receipt, source string) (*transaction.Transaction, error)
	Fail(ctx context.Context, transactionID, reason, source string) (*transaction.Transaction, error)
	Push(ctx context.Context, tx *transaction.Transaction, reference string) (*payment.PushResponse, error)
}

type Usecase struct {
	txs     transaction.Repository
	gw      payment.Gateway
	settler Settler
	metrics *metrics.Metrics
	cfg     Config
	awaiter Awaiter
	now     func() time.Time
}

func NewUsecase(txs transaction.Repository, gw payment.Gateway, s Settler, m *metrics.Metrics, cfg Config) *Usecase {
	u := &Usecase{txs: txs, gw: gw, settler: s, metrics: m, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
	u.awaiter = &PollingAwaiter{Check: u.resolveByID, Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts}
	return u
}

// SetAwaiter swaps the await strategy.
func (u *Usecase) SetAwaiter(a Awaiter) { u.awaiter = a }

func (u *Usecase) visible(ctx context.Context, v Viewer, transactionID string) (*transaction.Transaction, error) {
	t, err := u.txs.GetByTransactionID(ctx, transactionID)
	if errors.Is(err, transaction.ErrNotFound) {
		return nil, apperror.NotFound("transaction not found")
	}
	if err != nil {
		return nil, err
	}
	if !v.Admin && t.UserID != v.UserID {
		return nil, apperror.NotFound("transaction not found")
	}
	return t, nil
}

// InitiateMpesa starts an STK push, either for a new deposit or again for an
// existing pending M-Pesa transaction.
func (u *Usecase) InitiateMpesa(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	phone, err := msisdn.Normalize(in.PhoneNumber)
	if err != nil {
		return nil, apperror.Field("phoneNumber", err.Error())
	}
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Truncate(0)) {
		return nil, apperror.Field("amount", "must be a positive whole number of shillings")
	}

	var t *transaction.Transaction
	if in.TransactionID != "" {
		t, err = u.visible(ctx, Viewer{UserID: in.UserID}, in.TransactionID)
		if err != nil {
			return nil, err
		}
		switch {
		case t.PaymentMethod != transaction.MethodMpesa:
			return nil, apperror.Conflict("transaction is not an M-Pesa payment")
		case t.Status != transaction.StatusPending:
			return nil, apperror.Conflict("transaction is already " + string(t.Status))
		case !t.Amount.Equal(in.Amount):
			return nil, apperror.Field("amount", "must match the transaction amount of "+t.Amount.String())
		}
		t.PhoneNumber = phone
	} else {
		t = &transaction.Transaction{
			TransactionID: id.NewID32(),
			UserID:        in.UserID,
			Amount:        in.Amount,
			Type:          transaction.TypeDeposit,
			Status:        transaction.StatusPending,
			PaymentMethod: transaction.MethodMpesa,
			PhoneNumber:   phone,
			Description:   "M-Pesa deposit",
		}
		if err := u.txs.Create(ctx, t); err != nil {
			return nil, err
		}
	}

	ref := t.TransactionID
	if t.LoanID != nil {
		ref = *t.LoanID
	}
	push, err := u.settler.Push(ctx, t, ref)
	if err != nil {
		return nil, err
	}
	return &InitiateResult{
		TransactionID:     t.TransactionID,
		MerchantRequestID: push.MerchantRequestID,
		CheckoutRequestID: push.CheckoutRequestID,
		CustomerMessage:   push.CustomerMessage,
	}, nil
}

// CheckStatus reports a transaction's payment status, asking the provider once
// when an M-Pesa payment is still pending.
func (u *Usecase) CheckStatus(ctx context.Context, v Viewer, transactionID string) (*StatusResult, error) {
	t, err := u.visible(ctx, v, transactionID)
	if err != nil {
		return nil, err
	}
	res, _, err := u.resolve(ctx, t, "poll")
	return res, err
}

// AwaitPayment holds the request until the payment resolves or timeout passes.
func (u *Usecase) AwaitPayment(ctx context.Context, v Viewer, transactionID string, timeout time.Duration) (*StatusResult, error) {
	if _, err := u.visible(ctx, v, transactionID); err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := u.awaiter.Await(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if res.Status == string(payment.StatusPending) {
		res.Message = "payment may still complete"
	}
	return res, nil
}

func (u *Usecase) resolveByID(ctx context.Context, transactionID string) (*StatusResult, error) {
	t, err := u.txs.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	res, _, err := u.resolve(ctx, t, "poll")
	return res, err
}

func statusOf(t *transaction.Transaction) *StatusResult {
	res := &StatusResult{TransactionID: t.TransactionID}
	switch t.Status {
	case transaction.StatusCompleted:
		res.Status = string(payment.StatusCompleted)
	case transaction.StatusFailed:
		res.Status = string(payment.StatusFailed)
		res.Message = t.FailureReason
	default:
		res.Status = string(payment.StatusPending)
	}
	return res
}

// resolve asks the provider about a pending M-Pesa payment and applies the
// answer. answered is false when there was nothing to ask or the query failed,
// so a PENDING result then says nothing about the payment.
func (u *Usecase) resolve(ctx context.Context, t *transaction.Transaction, source string) (res *StatusResult, answered bool, err error) {
	if t.Status != transaction.StatusPending || t.PaymentMethod != transaction.MethodMpesa || t.CheckoutRequestID == "" {
		return statusOf(t), false, nil
	}

	q, err := u.gw.CheckStatus(ctx, t.CheckoutRequestID)
	u.metrics.UpstreamCall("stk_query", err)
	if err != nil {
		slog.WarnContext(ctx, "payment: status query failed", "transaction_id", t.TransactionID, "err", err)
		out := statusOf(t)
		out.Message = "unable to confirm payment status yet"
		return out, false, nil
	}

	var updated *transaction.Transaction
	switch q.Status {
	case payment.StatusCompleted:
		updated, err = u.settler.Settle(ctx, t.TransactionID, q.Receipt, source)
		if apperror.KindOf(err) == apperror.KindConflict {
			err = u.flagForReview(ctx, t.TransactionID, q.Receipt, "provider reports payment completed after it was failed", source)
			updated = nil
		}
	case payment.StatusFailed:
		updated, err = u.settler.Fail(ctx, t.TransactionID, q.ResultDesc, source)
		if apperror.KindOf(err) == apperror.KindConflict {
			// settled concurrently by the callback; the stored outcome stands
			err = nil
		}
	default:
		return statusOf(t), true, nil
	}
	if err != nil {
		return nil, true, err
	}
	if updated == nil {
		if updated, err = u.txs.GetByTransactionID(ctx, t.TransactionID); err != nil {
			return nil, true, err
		}
	}
	return statusOf(updated), true, nil
}

// flagForReview keeps a provider outcome we could not apply, for the back office.
func (u *Usecase) flagForReview(ctx context.Context, transactionID, receipt, note, source string) error {
	if err := u.txs.FlagForReview(ctx, transactionID, receipt, note); err != nil {
		return err
	}
	u.metrics.PaymentResolved("review", source)
	slog.WarnContext(ctx, "payment: flagged for manual review",
		"transaction_id", transactionID, "receipt", receipt, "note", note, "source", source)
	return nil
}

// HandleCallback applies the provider's asynchronous result. Unknown checkouts
// are acknowledged and ignored. A completion that contradicts the stored
// outcome is recorded and flagged for review rather than dropped.
func (u *Usecase) HandleCallback(ctx context.Context, cb payment.CallbackResult) error {
	t, err := u.txs.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, transaction.ErrNotFound) {
		slog.WarnContext(ctx, "payment: callback for unknown checkout", "checkout_request_id", cb.CheckoutRequestID)
		return nil
	}
	if err != nil {
		return err
	}
	superseded := t.CheckoutRequestID != cb.CheckoutRequestID

	switch cb.Status {
	case payment.StatusCompleted:
		updated, err := u.settler.Settle(ctx, t.TransactionID, cb.Receipt, "callback")
		switch {
		case apperror.KindOf(err) == apperror.KindConflict:
			return u.flagForReview(ctx, t.TransactionID, cb.Receipt, "payment completed after the transaction was failed", "callback")
		case err != nil:
			return err
		case cb.Receipt != "" && updated.ProviderReceipt != "" && updated.ProviderReceipt != cb.Receipt:
			// both checkouts of a re-pushed payment went through
			return u.flagForReview(ctx, t.TransactionID, cb.Receipt, "second payment received with receipt "+cb.Receipt, "callback")
		}
		return nil
	case payment.StatusFailed:
		if superseded {
			// the customer dismissed an older prompt; the newer one is still live
			slog.InfoContext(ctx, "payment: failure for superseded checkout ignored",
				"transaction_id", t.TransactionID, "checkout_request_id", cb.CheckoutRequestID)
			return nil
		}
		_, err = u.settler.Fail(ctx, t.TransactionID, cb.ResultDesc, "callback")
		if apperror.KindOf(err) == apperror.KindConflict {
			slog.WarnContext(ctx, "payment: failure callback for settled transaction",
				"transaction_id", t.TransactionID, "err", err)
			return nil
		}
		return err
	}
	return nil
}

// Reconcile is the periodic sweep: query stale M-Pesa payments, expire the
// ones the provider still reports as unpaid, and expire bank transfers nobody
// confirmed. A payment whose status query fails is left pending for the next
// run.
func (u *Usecase) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	now := u.now()

	stale, err := u.txs.ListPending(ctx, transaction.MethodMpesa, now.Add(-u.cfg.QueryAfter), u.cfg.SweepBatch)
	if err != nil {
		return rep, err
	}
	for i := range stale {
		t := &stale[i]
		rep.Checked++
		res, answered, err := u.resolve(ctx, t, "sweep")
		if err != nil {
			slog.ErrorContext(ctx, "payment: sweep resolve", "transaction_id", t.TransactionID, "err", err)
			continue
		}
		switch res.Status {
		case string(payment.StatusCompleted):
			rep.Completed++
		case string(payment.StatusFailed):
			rep.Failed++
		default:
			if !t.CreatedAt.Before(now.Add(-u.cfg.MpesaExpiry)) {
				continue
			}
			if !answered && t.CheckoutRequestID != "" {
				rep.Unconfirmed++
				continue
			}
			if u.expire(ctx, t, "payment not completed in time") {
				rep.Expired++
			}
		}
	}

	unconfirmed, err := u.txs.ListPending(ctx, transaction.MethodBank, now.Add(-u.cfg.BankExpiry), u.cfg.SweepBatch)
	if err != nil {
		return rep, err
	}
	for i := range unconfirmed {
		rep.Checked++
		if u.expire(ctx, &unconfirmed[i], "bank transfer not confirmed in time") {
			rep.Expired++
		}
	}

	if rep.Checked > 0 {
		slog.InfoContext(ctx, "payment: sweep done",
			"checked", rep.Checked, "completed", rep.Completed, "failed", rep.Failed,
			"expired", rep.Expired, "unconfirmed", rep.Unconfirmed)
	}
	return rep, nil
}

func (u *Usecase) expire(ctx context.Context, t *transaction.Transaction, reason string) bool {
	if _, err := u.settler.Fail(ctx, t.TransactionID, reason, "sweep"); err != nil {
		slog.ErrorContext(ctx, "payment: expire", "transaction_id", t.TransactionID, "err", err)
		return false
	}
	return true
}

func (u *Usecase) ListTransactions(ctx context.Context, userID string, page, pageSize int) (*TransactionPage, error) {
	page, pageSize = clampPage(page, pageSize)
	rows, total, err := u.txs.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []transaction.Transaction{}
	}
	return &TransactionPage{Results: rows, Count: total, Page: page, PageSize: pageSize}, nil
}

// ListForReview pages through transactions waiting on the back office.
func (u *Usecase) ListForReview(ctx context.Context, page, pageSize int) (*TransactionPage, error) {
	page, pageSize = clampPage(page, pageSize)
	rows, total, err := u.txs.ListForReview(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []transaction.Transaction{}
	}
	return &TransactionPage{Results: rows, Count: total, Page: page, PageSize: pageSize}, nil
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func (u *Usecase) GetTransaction(ctx context.Context, v Viewer, transactionID string) (*transaction.Transaction, error) {
	return u.visible(ctx, v, transactionID)
}
