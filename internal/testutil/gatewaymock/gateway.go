package gatewaymock

import (
	"context"
	"errors"
	"sync"

	"p2p-lending-backend/internal/domain/payment"
)

var _ payment.Gateway = (*Gateway)(nil)

var errUnimplemented = errors.New("gatewaymock: method not implemented")

// Gateway is a function-backed payment.Gateway. Calls are counted so tests can
// assert how often the provider was hit.
type Gateway struct {
	InitiatePushFn func(ctx context.Context, req payment.PushRequest) (*payment.PushResponse, error)
	CheckStatusFn  func(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error)

	mu           sync.Mutex
	pushCalls    int
	statusCalls  int
	LastPushReq  payment.PushRequest
	LastStatusID string
}

func (g *Gateway) InitiatePush(ctx context.Context, req payment.PushRequest) (*payment.PushResponse, error) {
	g.mu.Lock()
	g.pushCalls++
	g.LastPushReq = req
	g.mu.Unlock()
	if g.InitiatePushFn != nil {
		return g.InitiatePushFn(ctx, req)
	}
	return nil, errUnimplemented
}

func (g *Gateway) CheckStatus(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error) {
	g.mu.Lock()
	g.statusCalls++
	g.LastStatusID = checkoutRequestID
	g.mu.Unlock()
	if g.CheckStatusFn != nil {
		return g.CheckStatusFn(ctx, checkoutRequestID)
	}
	return nil, errUnimplemented
}

func (g *Gateway) PushCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pushCalls
}

func (g *Gateway) StatusCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

// AcceptPush answers every push with the given checkout id.
func AcceptPush(checkoutRequestID string) func(context.Context, payment.PushRequest) (*payment.PushResponse, error) {
	return func(context.Context, payment.PushRequest) (*payment.PushResponse, error) {
		return &payment.PushResponse{
			MerchantRequestID:   "29115-34620561-1",
			CheckoutRequestID:   checkoutRequestID,
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
			CustomerMessage:     "Success. Request accepted for processing",
		}, nil
	}
}

// StatusSequence replays statuses in order and repeats the last one forever.
func StatusSequence(statuses ...payment.Status) func(context.Context, string) (*payment.StatusResult, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func(context.Context, string) (*payment.StatusResult, error) {
		mu.Lock()
		defer mu.Unlock()
		st := statuses[len(statuses)-1]
		if i < len(statuses) {
			st = statuses[i]
			i++
		}
		res := &payment.StatusResult{Status: st}
		switch st {
		case payment.StatusCompleted:
			res.ResultCode, res.ResultDesc, res.Receipt = "0", "The service request is processed successfully.", "NLJ7RT61SV"
		case payment.StatusFailed:
			res.ResultCode, res.ResultDesc = "1032", "Request cancelled by user"
		default:
			res.ResultDesc = "The transaction is being processed"
		}
		return res, nil
	}
}
