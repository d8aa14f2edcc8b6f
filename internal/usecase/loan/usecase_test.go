package loan

import (
	"context"
	"errors"
	"testing"

	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/domain/event"
	domain "p2p-lending-backend/internal/domain/loan"
	"p2p-lending-backend/internal/testutil/loanmock"

	"github.com/shopspring/decimal"
)

type recorder struct{ events []event.Event }

func (r *recorder) Publish(_ context.Context, ev event.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func validInput() ApplyInput {
	return ApplyInput{
		BorrowerID:   "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Amount:       decimal.NewFromInt(50_000),
		TermMonths:   12,
		InterestRate: 12.5,
		Purpose:      "Business Expansion",
		Description:  "restock the shop",
	}
}

func fieldsOf(t *testing.T, err error) map[string]bool {
	t.Helper()
	var ae *apperror.Error
	if !errors.As(err, &ae) || ae.Kind != apperror.KindValidation {
		t.Fatalf("want validation error, got %v", err)
	}
	out := map[string]bool{}
	for _, f := range ae.Fields {
		out[f.Field] = true
	}
	return out
}

func TestApply_Success(t *testing.T) {
	var created *domain.Loan
	rec := &recorder{}
	uc := NewUsecase(&loanmock.Repo{
		CreateFn: func(_ context.Context, l *domain.Loan) error {
			created = l
			return nil
		},
	}, rec, DefaultRules())

	dto, err := uc.Apply(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Apply err: %v", err)
	}
	if len(dto.LoanID) != 32 {
		t.Fatalf("LoanID length: %d", len(dto.LoanID))
	}
	if dto.Status != string(domain.StatusAvailable) || !dto.CurrentlyFunded.IsZero() {
		t.Fatalf("new loan: status=%s funded=%s", dto.Status, dto.CurrentlyFunded)
	}
	if created == nil || created.LoanType != domain.TypePersonal {
		t.Fatalf("loan_type should default to personal: %+v", created)
	}
	if len(rec.events) != 1 || rec.events[0].Type != event.TypeLoanCreated {
		t.Fatalf("events: %+v", rec.events)
	}
}

func TestApply_RejectsOutOfRange(t *testing.T) {
	uc := NewUsecase(&loanmock.Repo{
		CreateFn: func(context.Context, *domain.Loan) error {
			t.Fatalf("Create must not be called for invalid input")
			return nil
		},
	}, nil, DefaultRules())

	cases := []struct {
		name  string
		mut   func(*ApplyInput)
		field string
	}{
		{"amount below minimum", func(in *ApplyInput) { in.Amount = decimal.NewFromInt(4_999) }, "amount"},
		{"amount above maximum", func(in *ApplyInput) { in.Amount = decimal.NewFromInt(1_000_001) }, "amount"},
		{"fractional amount", func(in *ApplyInput) { in.Amount = decimal.RequireFromString("5000.50") }, "amount"},
		{"term not offered", func(in *ApplyInput) { in.TermMonths = 7 }, "term_months"},
		{"rate too low", func(in *ApplyInput) { in.InterestRate = 4.99 }, "interest_rate"},
		{"rate too high", func(in *ApplyInput) { in.InterestRate = 25.01 }, "interest_rate"},
		{"unknown purpose", func(in *ApplyInput) { in.Purpose = "Holiday" }, "purpose"},
		{"blank description", func(in *ApplyInput) { in.Description = "  " }, "description"},
		{"bad loan type", func(in *ApplyInput) { v := 4; in.LoanType = &v }, "loan_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mut(&in)
			_, err := uc.Apply(context.Background(), in)
			if f := fieldsOf(t, err); !f[tc.field] {
				t.Fatalf("field %s not reported: %v", tc.field, f)
			}
		})
	}
}

func TestApply_BoundariesAccepted(t *testing.T) {
	uc := NewUsecase(&loanmock.Repo{}, nil, DefaultRules())
	for _, amt := range []int64{5_000, 1_000_000} {
		in := validInput()
		in.Amount = decimal.NewFromInt(amt)
		in.InterestRate = 25
		if _, err := uc.Apply(context.Background(), in); err != nil {
			t.Fatalf("amount %d: %v", amt, err)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	uc := NewUsecase(&loanmock.Repo{
		GetByLoanIDFn: func(context.Context, string) (*domain.Loan, error) { return nil, domain.ErrNotFound },
	}, nil, DefaultRules())

	_, err := uc.Get(context.Background(), "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestSearch_StatsAndFilterMapping(t *testing.T) {
	var got domain.Filter
	uc := NewUsecase(&loanmock.Repo{
		SearchFn: func(_ context.Context, f domain.Filter) ([]domain.Listing, int64, error) {
			got = f
			return []domain.Listing{
				{Loan: domain.Loan{LoanID: "a", Status: domain.StatusAvailable, InterestRate: 10}},
				{Loan: domain.Loan{LoanID: "b", Status: domain.StatusFunding, InterestRate: 15}},
				{Loan: domain.Loan{LoanID: "c", Status: domain.StatusAvailable, InterestRate: 20}, BorrowerName: "Ann"},
			}, 42, nil
		},
	}, nil, DefaultRules())

	page, err := uc.Search(context.Background(), SearchInput{
		Status: "pending", Sort: "interestRate", Direction: "asc", Page: 2, PageSize: 500,
	})
	if err != nil {
		t.Fatalf("Search err: %v", err)
	}
	if got.Status != domain.StatusAvailable || got.Sort != domain.SortInterestRate || got.Desc {
		t.Fatalf("filter mapping: %+v", got)
	}
	if got.Limit != MaxPageSize || got.Offset != MaxPageSize {
		t.Fatalf("paging: limit=%d offset=%d", got.Limit, got.Offset)
	}
	if page.Count != 42 || len(page.Results) != 3 || page.Results[2].BorrowerName != "Ann" {
		t.Fatalf("page: %+v", page)
	}
	if page.Stats.TotalAvailable != 2 || page.Stats.TotalFunding != 1 || page.Stats.AverageInterestRate != 15 {
		t.Fatalf("stats: %+v", page.Stats)
	}
}

func TestSearch_EmptyAverageIsZero(t *testing.T) {
	uc := NewUsecase(&loanmock.Repo{}, nil, DefaultRules())
	page, err := uc.Search(context.Background(), SearchInput{Status: "all"})
	if err != nil {
		t.Fatalf("Search err: %v", err)
	}
	if page.Stats.AverageInterestRate != 0 || len(page.Results) != 0 || page.Results == nil {
		t.Fatalf("empty page: %+v", page)
	}
	if page.PageSize != DefaultPageSize || page.Page != 1 {
		t.Fatalf("defaults: page=%d size=%d", page.Page, page.PageSize)
	}
}

func TestSearch_RejectsUnknownParams(t *testing.T) {
	uc := NewUsecase(&loanmock.Repo{}, nil, DefaultRules())
	for _, in := range []SearchInput{
		{Status: "approved"},
		{Sort: "popularity"},
		{Direction: "sideways"},
	} {
		if _, err := uc.Search(context.Background(), in); apperror.KindOf(err) != apperror.KindValidation {
			t.Fatalf("%+v: want validation error, got %v", in, err)
		}
	}
}
