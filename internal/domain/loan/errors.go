package loan

import "errors"

var (
	ErrNotFound         = errors.New("loan not found")
	ErrNotInvestable    = errors.New("loan is not open for investment")
	ErrExceedsRemaining = errors.New("amount exceeds remaining loan balance")
	ErrNothingToRelease = errors.New("loan has less funding than the amount to release")
)
