package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/domain/event"
	"p2p-lending-backend/internal/domain/loan"
	"p2p-lending-backend/pkg/id"

	"github.com/shopspring/decimal"
)

type Usecase struct {
	repo  loan.Repository
	pub   event.Publisher
	rules Rules
	now   func() time.Time
}

func NewUsecase(r loan.Repository, pub event.Publisher, rules Rules) *Usecase {
	return &Usecase{repo: r, pub: pub, rules: rules, now: func() time.Time { return time.Now().UTC() }}
}

func (u *Usecase) validate(in ApplyInput) []apperror.FieldError {
	var fe []apperror.FieldError
	add := func(field, msg string) { fe = append(fe, apperror.FieldError{Field: field, Message: msg}) }

	switch {
	case !in.Amount.Equal(in.Amount.Truncate(0)):
		add("amount", "must be a whole number of shillings")
	case in.Amount.LessThan(u.rules.MinAmount) || in.Amount.GreaterThan(u.rules.MaxAmount):
		add("amount", fmt.Sprintf("must be between %s and %s", u.rules.MinAmount, u.rules.MaxAmount))
	}
	if !slices.Contains(u.rules.Terms, in.TermMonths) {
		add("term_months", fmt.Sprintf("must be one of %v", u.rules.Terms))
	}
	if in.InterestRate < u.rules.MinRate || in.InterestRate > u.rules.MaxRate || math.IsNaN(in.InterestRate) {
		add("interest_rate", fmt.Sprintf("must be between %g and %g", u.rules.MinRate, u.rules.MaxRate))
	}
	if !slices.Contains(u.rules.Purposes, in.Purpose) {
		add("purpose", "must be one of: "+strings.Join(u.rules.Purposes, ", "))
	}
	if strings.TrimSpace(in.Description) == "" {
		add("description", "is required")
	}
	if in.LoanType != nil && (*in.LoanType < int(loan.TypeBusiness) || *in.LoanType > int(loan.TypeEducation)) {
		add("loan_type", "must be 1, 2 or 3")
	}
	return fe
}

// Apply lists a new loan request. Single insert, nothing else is touched.
func (u *Usecase) Apply(ctx context.Context, in ApplyInput) (*LoanDTO, error) {
	if fe := u.validate(in); len(fe) > 0 {
		return nil, apperror.Validation("invalid loan application", fe...)
	}

	lt := loan.TypePersonal
	if in.LoanType != nil {
		lt = loan.Type(*in.LoanType)
	}
	l := &loan.Loan{
		LoanID:          id.NewID32(),
		BorrowerID:      in.BorrowerID,
		Amount:          in.Amount,
		InterestRate:    in.InterestRate,
		TermMonths:      in.TermMonths,
		LoanType:        lt,
		Purpose:         in.Purpose,
		Description:     strings.TrimSpace(in.Description),
		Status:          loan.StatusAvailable,
		CurrentlyFunded: decimal.Zero,
		CreatedAt:       u.now(),
	}
	if err := u.repo.Create(ctx, l); err != nil {
		return nil, err
	}

	if u.pub != nil {
		ev := event.Event{
			Type:       event.TypeLoanCreated,
			LoanID:     l.LoanID,
			BorrowerID: l.BorrowerID,
			Amount:     l.Amount.String(),
			OccurredAt: l.CreatedAt,
		}
		if err := u.pub.Publish(ctx, ev); err != nil {
			slog.WarnContext(ctx, "loan: publish event", "type", ev.Type, "loan_id", l.LoanID, "err", err)
		}
	}

	dto := toDTO(l, "")
	return &dto, nil
}

func (u *Usecase) Get(ctx context.Context, loanID string) (*LoanDTO, error) {
	l, err := u.repo.GetByLoanID(ctx, loanID)
	if errors.Is(err, loan.ErrNotFound) {
		return nil, apperror.NotFound("loan not found")
	}
	if err != nil {
		return nil, err
	}
	dto := toDTO(l, "")
	return &dto, nil
}

var sortFields = map[string]loan.SortField{
	"amount":       loan.SortAmount,
	"interestRate": loan.SortInterestRate,
	"duration":     loan.SortDuration,
	"dateCreated":  loan.SortDateCreated,
}

// Search is the marketplace query: filter, sort, paginate, then stats over the
// returned page.
func (u *Usecase) Search(ctx context.Context, in SearchInput) (*Page, error) {
	f := loan.Filter{BorrowerID: in.BorrowerID, Search: in.Search, Sort: loan.SortDateCreated, Desc: true}

	if s := strings.TrimSpace(in.Status); s != "" && !strings.EqualFold(s, "all") {
		st, ok := loan.ParseStatus(s)
		if !ok {
			return nil, apperror.Field("status", "unknown loan status "+s)
		}
		f.Status = st
	}
	if in.Sort != "" {
		sf, ok := sortFields[in.Sort]
		if !ok {
			return nil, apperror.Field("sort", "must be one of amount, interestRate, duration, dateCreated")
		}
		f.Sort = sf
	}
	switch strings.ToLower(in.Direction) {
	case "", "desc":
	case "asc":
		f.Desc = false
	default:
		return nil, apperror.Field("direction", "must be asc or desc")
	}

	page, size := in.Page, in.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	f.Limit, f.Offset = size, (page-1)*size

	rows, total, err := u.repo.Search(ctx, f)
	if err != nil {
		return nil, err
	}

	out := &Page{Results: make([]LoanDTO, 0, len(rows)), Count: total, Page: page, PageSize: size}
	var rateSum float64
	for i := range rows {
		l := &rows[i].Loan
		out.Results = append(out.Results, toDTO(l, rows[i].BorrowerName))
		switch l.Status {
		case loan.StatusAvailable:
			out.Stats.TotalAvailable++
		case loan.StatusFunding:
			out.Stats.TotalFunding++
		}
		rateSum += l.InterestRate
	}
	if n := len(rows); n > 0 {
		out.Stats.AverageInterestRate = math.Round(rateSum/float64(n)*100) / 100
	}
	return out, nil
}

// Mine lists a borrower's own loans, newest first, in any status unless one
// is asked for.
func (u *Usecase) Mine(ctx context.Context, borrowerID, status string, page, pageSize int) (*Page, error) {
	return u.Search(ctx, SearchInput{BorrowerID: borrowerID, Status: status, Page: page, PageSize: pageSize})
}
