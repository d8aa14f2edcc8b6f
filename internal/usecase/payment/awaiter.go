package payment

import (
	"context"
	"time"

	"p2p-lending-backend/internal/domain/payment"
)

// Awaiter blocks until a payment leaves PENDING or gives up. A callback-driven
// implementation can replace polling without touching callers.
type Awaiter interface {
	Await(ctx context.Context, transactionID string) (*StatusResult, error)
}

// PollingAwaiter checks immediately, then every Interval, at most MaxAttempts
// times. Running out of attempts or context yields the last PENDING result.
type PollingAwaiter struct {
	Check       func(ctx context.Context, transactionID string) (*StatusResult, error)
	Interval    time.Duration
	MaxAttempts int
}

func (a *PollingAwaiter) Await(ctx context.Context, transactionID string) (*StatusResult, error) {
	attempts := a.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	t := time.NewTicker(a.Interval)
	defer t.Stop()

	var last *StatusResult
	for i := 0; i < attempts; i++ {
		res, err := a.Check(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if res.Status != string(payment.StatusPending) {
			return res, nil
		}
		last = res
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last, nil
		case <-t.C:
		}
	}
	return last, nil
}
