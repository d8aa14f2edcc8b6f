package investment

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"p2p-lending-backend/internal/adapter/repository/mysql"
	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/domain/event"
	investmentDomain "p2p-lending-backend/internal/domain/investment"
	loanDomain "p2p-lending-backend/internal/domain/loan"
	"p2p-lending-backend/internal/domain/payment"
	txDomain "p2p-lending-backend/internal/domain/transaction"
	userDomain "p2p-lending-backend/internal/domain/user"
	"p2p-lending-backend/internal/testutil/gatewaymock"
	"p2p-lending-backend/internal/testutil/sqlitedb"
	"p2p-lending-backend/pkg/id"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Type
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// errText flattens an apperror with its field messages.
func errText(err error) string {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		return err.Error()
	}
	parts := []string{ae.Message}
	for _, f := range ae.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

type harness struct {
	db       *gorm.DB
	uc       *Usecase
	gw       *gatewaymock.Gateway
	rec      *recorder
	lender   string
	borrower string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := sqlitedb.Open(t)
	h := &harness{
		db:       db,
		gw:       &gatewaymock.Gateway{InitiatePushFn: gatewaymock.AcceptPush("ws_CO_191220191020363925")},
		rec:      &recorder{},
		lender:   id.NewID32(),
		borrower: id.NewID32(),
	}
	users := mysql.NewUserRepository(db)
	for i, u := range []*userDomain.User{
		{UserID: h.lender, Name: "Lena Lender", Email: "lena@example.com", PhoneNumber: "254712345678", Country: "Kenya", PasswordHash: "x", Role: userDomain.RoleLender},
		{UserID: h.borrower, Name: "Ben Borrower", Email: "ben@example.com", PhoneNumber: "254798765432", Country: "Kenya", PasswordHash: "x", Role: userDomain.RoleBorrower},
	} {
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("seed user %d: %v", i, err)
		}
	}
	h.uc = NewUsecase(mysql.NewGormUoW(db), h.gw, h.rec, nil, DefaultConfig())
	return h
}

func (h *harness) loan(t *testing.T, amount int64) string {
	t.Helper()
	l := &loanDomain.Loan{
		LoanID:       id.NewID32(),
		BorrowerID:   h.borrower,
		Amount:       decimal.NewFromInt(amount),
		InterestRate: 12,
		TermMonths:   6,
		LoanType:     loanDomain.TypeBusiness,
		Purpose:      "Business Expansion",
		Status:       loanDomain.StatusAvailable,
	}
	if err := mysql.NewLoanRepository(h.db).Create(context.Background(), l); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	return l.LoanID
}

func (h *harness) getLoan(t *testing.T, loanID string) *loanDomain.Loan {
	t.Helper()
	l, err := mysql.NewLoanRepository(h.db).GetByLoanID(context.Background(), loanID)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	return l
}

func (h *harness) submit(loanID string, amount int64, method string) (*SubmitResult, error) {
	return h.uc.Submit(context.Background(), SubmitInput{
		InvestorID:    h.lender,
		LoanID:        loanID,
		Amount:        decimal.NewFromInt(amount),
		PaymentMethod: method,
		AgreedToTerms: true,
	})
}

func TestSubmit_FundsLoanToCompletion(t *testing.T) {
	h := newHarness(t)
	loanID := h.loan(t, 50_000)

	bank, err := h.submit(loanID, 20_000, "bank")
	if err != nil {
		t.Fatalf("20k: %v", err)
	}
	l := h.getLoan(t, loanID)
	if l.Status != loanDomain.StatusFunding || !l.CurrentlyFunded.Equal(decimal.NewFromInt(20_000)) {
		t.Fatalf("after 20k: status=%s funded=%s", l.Status, l.CurrentlyFunded)
	}

	res, err := h.submit(loanID, 30_000, "mpesa")
	if err != nil {
		t.Fatalf("30k: %v", err)
	}
	if res.CheckoutRequestID == "" || res.Status != string(payment.StatusPending) {
		t.Fatalf("mpesa result: %+v", res)
	}
	// phone came from the profile
	if h.gw.LastPushReq.PhoneNumber != "254712345678" {
		t.Fatalf("push phone = %q", h.gw.LastPushReq.PhoneNumber)
	}

	l = h.getLoan(t, loanID)
	if l.Status != loanDomain.StatusFunded || !l.CurrentlyFunded.Equal(l.Amount) || l.FundedAt == nil {
		t.Fatalf("after 30k: %+v", l)
	}
	if len(l.RepaymentSchedule) != 6 {
		t.Fatalf("schedule len = %d, want 6", len(l.RepaymentSchedule))
	}

	_, err = h.submit(loanID, 1_000, "bank")
	if apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("funded loan: want conflict, got %v", err)
	}

	// reserved is not paid: nothing is announced until the money arrives
	if types := h.rec.types(); len(types) != 0 {
		t.Fatalf("events after submit: %v", types)
	}

	ctx := context.Background()
	if _, err := h.uc.Settle(ctx, res.TransactionID, "NLJ7RT61SV", "callback"); err != nil {
		t.Fatalf("settle mpesa: %v", err)
	}
	if types := h.rec.types(); len(types) != 1 || types[0] != event.TypeInvestmentSettled {
		t.Fatalf("events after first settle: %v", types)
	}
	if _, err := h.uc.ConfirmBankTransfer(ctx, bank.TransactionID, ConfirmInput{AdminID: h.borrower, Reference: "EQ123"}); err != nil {
		t.Fatalf("confirm bank: %v", err)
	}
	// replays are no-ops
	if _, err := h.uc.Settle(ctx, res.TransactionID, "NLJ7RT61SV", "callback"); err != nil {
		t.Fatalf("replayed settle: %v", err)
	}
	want := []event.Type{event.TypeInvestmentSettled, event.TypeInvestmentSettled, event.TypeLoanFunded}
	if got := h.rec.types(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestFail_FundedLoanNeverAnnounced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	loanID := h.loan(t, 10_000)

	a, err := h.submit(loanID, 6_000, "bank")
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	b, err := h.submit(loanID, 4_000, "bank")
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}
	if _, err := h.uc.Settle(ctx, a.TransactionID, "FT1", "test"); err != nil {
		t.Fatalf("settle a: %v", err)
	}
	if _, err := h.uc.Fail(ctx, b.TransactionID, "expired", "test"); err != nil {
		t.Fatalf("fail b: %v", err)
	}
	for _, ty := range h.rec.types() {
		if ty == event.TypeLoanFunded {
			t.Fatalf("loan.funded published for a loan that lost funding: %v", h.rec.types())
		}
	}
}

func TestPush_RepushFailureKeepsTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	loanID := h.loan(t, 10_000)

	res, err := h.submit(loanID, 5_000, "mpesa")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	txs := mysql.NewTransactionRepository(h.db)
	tx, _ := txs.GetByTransactionID(ctx, res.TransactionID)

	h.gw.InitiatePushFn = func(context.Context, payment.PushRequest) (*payment.PushResponse, error) {
		return nil, errors.New("503 service unavailable")
	}
	if _, err := h.uc.Push(ctx, tx, loanID); apperror.KindOf(err) != apperror.KindUpstream {
		t.Fatalf("want upstream error, got %v", err)
	}

	// the first checkout can still complete
	tx, _ = txs.GetByTransactionID(ctx, res.TransactionID)
	if tx.Status != txDomain.StatusPending || tx.CheckoutRequestID != res.CheckoutRequestID {
		t.Fatalf("after failed re-push: %+v", tx)
	}
	if l := h.getLoan(t, loanID); !l.CurrentlyFunded.Equal(decimal.NewFromInt(5_000)) {
		t.Fatalf("reservation released: %s", l.CurrentlyFunded)
	}
	attempts, err := txs.ListAttempts(ctx, res.TransactionID)
	if err != nil || len(attempts) != 1 || attempts[0].CheckoutRequestID != res.CheckoutRequestID {
		t.Fatalf("attempts = %+v err=%v", attempts, err)
	}
}

func TestSubmit_ValidationOrder(t *testing.T) {
	h := newHarness(t)
	loanID := h.loan(t, 10_000)

	cases := []struct {
		name string
		in   SubmitInput
		kind apperror.Kind
		sub  string
	}{
		{"card always unavailable", SubmitInput{LoanID: "nope", PaymentMethod: "card"}, apperror.KindUnavailable, "card"},
		{"unknown method", SubmitInput{LoanID: loanID, PaymentMethod: "paypal", AgreedToTerms: true, Amount: decimal.NewFromInt(1_000)}, apperror.KindValidation, ""},
		{"terms not accepted", SubmitInput{LoanID: loanID, PaymentMethod: "bank", Amount: decimal.NewFromInt(1_000)}, apperror.KindValidation, ""},
		{"below minimum", SubmitInput{LoanID: loanID, PaymentMethod: "bank", AgreedToTerms: true, Amount: decimal.NewFromInt(999)}, apperror.KindValidation, ""},
		{"missing loan", SubmitInput{LoanID: "ffffffffffffffffffffffffffffffff", PaymentMethod: "bank", AgreedToTerms: true, Amount: decimal.NewFromInt(1_000)}, apperror.KindNotFound, ""},
		{"exceeds remaining", SubmitInput{LoanID: loanID, PaymentMethod: "bank", AgreedToTerms: true, Amount: decimal.NewFromInt(10_001)}, apperror.KindValidation, "10000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.InvestorID = h.lender
			_, err := h.uc.Submit(context.Background(), tc.in)
			if apperror.KindOf(err) != tc.kind {
				t.Fatalf("kind = %v, want %v (err=%v)", apperror.KindOf(err), tc.kind, err)
			}
			if tc.sub != "" && !strings.Contains(errText(err), tc.sub) {
				t.Fatalf("error %q does not mention %q", err, tc.sub)
			}
		})
	}

	if l := h.getLoan(t, loanID); !l.CurrentlyFunded.IsZero() {
		t.Fatalf("rejected submissions changed the loan: %s", l.CurrentlyFunded)
	}
}

func TestSubmit_PushFailureReleasesReservation(t *testing.T) {
	h := newHarness(t)
	loanID := h.loan(t, 10_000)
	h.gw.InitiatePushFn = func(context.Context, payment.PushRequest) (*payment.PushResponse, error) {
		return nil, errors.New(`{"errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`)
	}

	_, err := h.uc.Submit(context.Background(), SubmitInput{
		InvestorID: h.lender, LoanID: loanID, Amount: decimal.NewFromInt(10_000),
		PaymentMethod: "mpesa", AgreedToTerms: true, PhoneNumber: "0712345678",
	})
	var ae *apperror.Error
	if !errors.As(err, &ae) || ae.Kind != apperror.KindUpstream || ae.Message != "payment failed, please retry" {
		t.Fatalf("want generic upstream error, got %v", err)
	}

	l := h.getLoan(t, loanID)
	if l.Status != loanDomain.StatusAvailable || !l.CurrentlyFunded.IsZero() || len(l.RepaymentSchedule) != 0 {
		t.Fatalf("reservation not released: %+v", l)
	}
	invs, _ := mysql.NewInvestmentRepository(h.db).ListByLoan(context.Background(), loanID)
	if len(invs) != 1 || invs[0].Status != investmentDomain.StatusCancelled {
		t.Fatalf("investments: %+v", invs)
	}
}

func TestSubmit_InvalidPhoneRollsBack(t *testing.T) {
	h := newHarness(t)
	loanID := h.loan(t, 10_000)

	_, err := h.uc.Submit(context.Background(), SubmitInput{
		InvestorID: h.lender, LoanID: loanID, Amount: decimal.NewFromInt(5_000),
		PaymentMethod: "mpesa", AgreedToTerms: true, PhoneNumber: "12345",
	})
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Fatalf("want validation error, got %v", err)
	}
	if l := h.getLoan(t, loanID); !l.CurrentlyFunded.IsZero() {
		t.Fatalf("reservation survived: %s", l.CurrentlyFunded)
	}
	if h.gw.PushCalls() != 0 {
		t.Fatalf("push should not be attempted")
	}
}

func TestSettle_IdempotentAndUpdatesTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	loanID := h.loan(t, 10_000)

	res, err := h.submit(loanID, 4_000, "mpesa")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	for i := 0; i < 2; i++ {
		tx, err := h.uc.Settle(ctx, res.TransactionID, "NLJ7RT61SV", "test")
		if err != nil {
			t.Fatalf("settle %d: %v", i, err)
		}
		if tx.Status != txDomain.StatusCompleted || tx.ProviderReceipt != "NLJ7RT61SV" {
			t.Fatalf("settle %d: %+v", i, tx)
		}
	}

	inv, _ := mysql.NewInvestmentRepository(h.db).GetByInvestmentID(ctx, res.InvestmentID)
	if inv.Status != investmentDomain.StatusActive {
		t.Fatalf("investment status = %s", inv.Status)
	}
	users := mysql.NewUserRepository(h.db)
	lender, _ := users.GetByUserID(ctx, h.lender)
	borrower, _ := users.GetByUserID(ctx, h.borrower)
	if !lender.TotalInvested.Equal(decimal.NewFromInt(4_000)) || !borrower.TotalBorrowed.Equal(decimal.NewFromInt(4_000)) {
		t.Fatalf("totals: invested=%s borrowed=%s", lender.TotalInvested, borrower.TotalBorrowed)
	}

	if _, err := h.uc.Fail(ctx, res.TransactionID, "late failure", "test"); apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("fail after settle: want conflict, got %v", err)
	}

	settled := 0
	for _, ty := range h.rec.types() {
		if ty == event.TypeInvestmentSettled {
			settled++
		}
	}
	if settled != 1 {
		t.Fatalf("settled events = %d, want 1", settled)
	}
}

func TestFail_ReleasesFundedLoan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	loanID := h.loan(t, 10_000)

	a, err := h.submit(loanID, 6_000, "bank")
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	b, err := h.submit(loanID, 4_000, "bank")
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}
	if l := h.getLoan(t, loanID); l.Status != loanDomain.StatusFunded {
		t.Fatalf("expected Funded, got %s", l.Status)
	}

	for i := 0; i < 2; i++ {
		if _, err := h.uc.Fail(ctx, b.TransactionID, "expired", "test"); err != nil {
			t.Fatalf("fail %d: %v", i, err)
		}
	}
	l := h.getLoan(t, loanID)
	if l.Status != loanDomain.StatusFunding || !l.CurrentlyFunded.Equal(decimal.NewFromInt(6_000)) {
		t.Fatalf("after fail: status=%s funded=%s", l.Status, l.CurrentlyFunded)
	}
	if l.FundedAt != nil || len(l.RepaymentSchedule) != 0 {
		t.Fatalf("funded state not cleared: %+v", l)
	}

	if _, err := h.uc.Settle(ctx, b.TransactionID, "X", "test"); apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("settle after fail: want conflict, got %v", err)
	}
	if _, err := h.uc.Settle(ctx, a.TransactionID, "FT1", "test"); err != nil {
		t.Fatalf("settle a: %v", err)
	}
	if _, err := h.uc.Settle(ctx, "missing", "X", "test"); apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("missing: want not found, got %v", err)
	}
}

func TestConfirmBankTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	loanID := h.loan(t, 10_000)
	admin := id.NewID32()

	bank, err := h.submit(loanID, 2_000, "bank")
	if err != nil {
		t.Fatalf("submit bank: %v", err)
	}
	if bank.Bank == nil || bank.Bank.AccountNumber != bank.TransactionID || bank.Bank.Paybill == "" {
		t.Fatalf("bank details: %+v", bank.Bank)
	}
	mp, err := h.submit(loanID, 2_000, "mpesa")
	if err != nil {
		t.Fatalf("submit mpesa: %v", err)
	}

	if _, err := h.uc.ConfirmBankTransfer(ctx, bank.TransactionID, ConfirmInput{AdminID: admin}); apperror.KindOf(err) != apperror.KindValidation {
		t.Fatalf("missing reference: want validation, got %v", err)
	}
	if _, err := h.uc.ConfirmBankTransfer(ctx, mp.TransactionID, ConfirmInput{AdminID: admin, Reference: "FT1"}); apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("mpesa transaction: want conflict, got %v", err)
	}

	tx, err := h.uc.ConfirmBankTransfer(ctx, bank.TransactionID, ConfirmInput{AdminID: admin, Reference: "FT26030112345"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if tx.Status != txDomain.StatusCompleted || tx.ProviderReceipt != "FT26030112345" {
		t.Fatalf("confirmed tx: %+v", tx)
	}
	c, err := mysql.NewConfirmationRepository(h.db).GetByTransactionID(ctx, tx.ID)
	if err != nil || !c.Received || c.ConfirmedBy != admin {
		t.Fatalf("confirmation record: %+v err=%v", c, err)
	}

	if _, err := h.uc.ConfirmBankTransfer(ctx, bank.TransactionID, ConfirmInput{AdminID: admin, Failed: true}); apperror.KindOf(err) != apperror.KindConflict {
		t.Fatalf("second verdict: want conflict, got %v", err)
	}
}

func TestConfirmBankTransfer_NotReceivedReleases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	loanID := h.loan(t, 10_000)

	bank, err := h.submit(loanID, 3_000, "bank")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	tx, err := h.uc.ConfirmBankTransfer(ctx, bank.TransactionID, ConfirmInput{AdminID: "A", Failed: true, Reason: "no funds arrived"})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if tx.Status != txDomain.StatusFailed || tx.FailureReason != "no funds arrived" {
		t.Fatalf("tx: %+v", tx)
	}
	if l := h.getLoan(t, loanID); l.Status != loanDomain.StatusAvailable || !l.CurrentlyFunded.IsZero() {
		t.Fatalf("loan: %+v", l)
	}
}

func TestSubmit_ConcurrentNeverOverfunds(t *testing.T) {
	h := newHarness(t)
	loanID := h.loan(t, 50_000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.submit(loanID, 10_000, "bank")
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			if k := apperror.KindOf(err); k != apperror.KindConflict && k != apperror.KindValidation {
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 5 {
		t.Fatalf("accepted = %d, want 5", accepted)
	}
	l := h.getLoan(t, loanID)
	if !l.CurrentlyFunded.Equal(l.Amount) || l.Status != loanDomain.StatusFunded {
		t.Fatalf("final loan: %+v", l)
	}
	invs, _ := mysql.NewInvestmentRepository(h.db).ListByLoan(context.Background(), loanID)
	sum := decimal.Zero
	for _, in := range invs {
		sum = sum.Add(in.Amount)
	}
	if len(invs) != 5 || !sum.Equal(l.CurrentlyFunded) {
		t.Fatalf("investments=%d sum=%s", len(invs), sum)
	}
}
