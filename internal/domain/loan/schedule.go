package loan

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// AmortizationSchedule splits principal into equal monthly installments at the
// given annual percentage rate. The last installment absorbs rounding so the
// schedule sums to the exact total repayable.
func AmortizationSchedule(principal decimal.Decimal, annualRatePct float64, termMonths int, start time.Time) []Installment {
	if termMonths <= 0 || !principal.IsPositive() {
		return nil
	}
	p, _ := principal.Float64()
	r := annualRatePct / 100 / 12

	var payment float64
	if r == 0 {
		payment = p / float64(termMonths)
	} else {
		payment = p * r / (1 - math.Pow(1+r, -float64(termMonths)))
	}
	each := decimal.NewFromFloat(payment).Round(2)
	total := each.Mul(decimal.NewFromInt(int64(termMonths)))

	out := make([]Installment, termMonths)
	for i := 0; i < termMonths; i++ {
		out[i] = Installment{
			DueDate: start.AddDate(0, i+1, 0),
			Amount:  each,
			Status:  InstallmentPending,
		}
	}
	// exact total: principal plus the interest implied by the rounded installment
	exact := decimal.NewFromFloat(payment * float64(termMonths)).Round(2)
	out[termMonths-1].Amount = each.Add(exact.Sub(total))
	return out
}

// ExpectedReturn is the investor's share of a fully amortized loan: the amount
// plus the same proportion of total interest.
func ExpectedReturn(l *Loan, amount decimal.Decimal) decimal.Decimal {
	if !l.Amount.IsPositive() {
		return amount
	}
	sched := AmortizationSchedule(l.Amount, l.InterestRate, l.TermMonths, time.Now())
	total := decimal.Zero
	for _, in := range sched {
		total = total.Add(in.Amount)
	}
	if total.IsZero() {
		return amount
	}
	return amount.Mul(total).Div(l.Amount).Round(2)
}
