// Package mpesa is a Daraja (Safaricom M-Pesa) client for Lipa na M-Pesa
// Online: OAuth token, STK push, STK push query and callback decoding.
package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"p2p-lending-backend/internal/domain/payment"

	"github.com/go-resty/resty/v2"
)

const (
	tokenKey = "mpesa:access_token"
	// refresh a little before the provider expires the token
	tokenSkew = 60 * time.Second

	transactionType = "CustomerPayBillOnline"
	// STK query answers this while the customer has not yet responded.
	codeProcessing = "500.001.1001"
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// TokenStore caches the access token across instances.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Client struct {
	cfg    Config
	http   *resty.Client
	tokens TokenStore
	now    func() time.Time

	// used when no TokenStore is configured
	mu       sync.Mutex
	memo     string
	memoTill time.Time
}

var _ payment.Gateway = (*Client)(nil)

func NewClient(cfg Config, tokens TokenStore) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{cfg: cfg, http: hc, tokens: tokens, now: time.Now}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// AccessToken returns a cached client-credentials token, fetching a new one
// when the cache is empty.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.cachedToken(ctx); ok {
		return tok, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&out).
		Get("/oauth/v1/generate")
	if err != nil {
		return "", transportError(ErrUpstreamAuth, err)
	}
	if resp.IsError() || out.AccessToken == "" {
		return "", &UpstreamError{Kind: ErrUpstreamAuth, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	secs, _ := out.ExpiresIn.Int64()
	c.storeToken(ctx, out.AccessToken, time.Duration(secs)*time.Second-tokenSkew)
	return out.AccessToken, nil
}

func (c *Client) cachedToken(ctx context.Context) (string, bool) {
	if c.tokens == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.memo != "" && c.now().Before(c.memoTill) {
			return c.memo, true
		}
		return "", false
	}
	tok, ok, err := c.tokens.Get(ctx, tokenKey)
	if err != nil {
		slog.WarnContext(ctx, "mpesa: token cache read", "err", err)
		return "", false
	}
	return tok, ok
}

func (c *Client) storeToken(ctx context.Context, tok string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if c.tokens == nil {
		c.mu.Lock()
		c.memo, c.memoTill = tok, c.now().Add(ttl)
		c.mu.Unlock()
		return
	}
	if err := c.tokens.Set(ctx, tokenKey, tok, ttl); err != nil {
		slog.WarnContext(ctx, "mpesa: token cache write", "err", err)
	}
}

func (c *Client) dropToken(ctx context.Context) {
	if c.tokens == nil {
		c.mu.Lock()
		c.memo = ""
		c.mu.Unlock()
		return
	}
	if err := c.tokens.Delete(ctx, tokenKey); err != nil {
		slog.WarnContext(ctx, "mpesa: token cache delete", "err", err)
	}
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        code   `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiatePush sends an STK push prompt to the payer's phone.
func (c *Client) InitiatePush(ctx context.Context, req payment.PushRequest) (*payment.PushResponse, error) {
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ts := Timestamp(c.now())
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   transactionType,
		Amount:            req.Amount.Ceil().IntPart(),
		PartyA:            req.PhoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}

	var out stkPushResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetBody(body).
		SetResult(&out).
		Post("/mpesa/stkpush/v1/processrequest")
	if err != nil {
		return nil, transportError(ErrUpstreamRequest, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.dropToken(ctx)
		return nil, &UpstreamError{Kind: ErrUpstreamAuth, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if resp.IsError() || out.ResponseCode != "0" {
		return nil, &UpstreamError{Kind: ErrUpstreamRequest, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return &payment.PushResponse{
		MerchantRequestID:   out.MerchantRequestID,
		CheckoutRequestID:   out.CheckoutRequestID,
		ResponseCode:        string(out.ResponseCode),
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode code   `json:"ResponseCode"`
	ResultCode   code   `json:"ResultCode"`
	ResultDesc   string `json:"ResultDesc"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckStatus asks the provider for the outcome of an STK push.
func (c *Client) CheckStatus(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error) {
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ts := Timestamp(c.now())
	var out stkQueryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetBody(stkQueryRequest{
			BusinessShortCode: c.cfg.ShortCode,
			Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
			Timestamp:         ts,
			CheckoutRequestID: checkoutRequestID,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/mpesa/stkpushquery/v1/query")
	if err != nil {
		return nil, transportError(ErrUpstreamRequest, err)
	}
	if out.ErrorCode == codeProcessing {
		return &payment.StatusResult{Status: payment.StatusPending, ResultDesc: out.ErrorMessage}, nil
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.dropToken(ctx)
		return nil, &UpstreamError{Kind: ErrUpstreamAuth, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if resp.IsError() || out.ResultCode == "" {
		return nil, &UpstreamError{Kind: ErrUpstreamRequest, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	res := &payment.StatusResult{ResultCode: string(out.ResultCode), ResultDesc: out.ResultDesc}
	if out.ResultCode == "0" {
		res.Status = payment.StatusCompleted
	} else {
		res.Status = payment.StatusFailed
	}
	return res, nil
}

// code accepts Daraja result codes sent either as JSON strings or numbers.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = code(s)
		return nil
	}
	if string(b) == "null" {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = code(n.String())
	return nil
}

func transportError(kind error, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = ErrUpstreamTimeout
	}
	return &UpstreamError{Kind: kind, Err: err}
}

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        code   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

var ErrBadCallback = errors.New("mpesa: malformed callback")

// ParseCallback decodes the asynchronous STK result posted to CallBackURL.
func ParseCallback(body []byte) (*payment.CallbackResult, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Join(ErrBadCallback, err)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" || cb.ResultCode == "" {
		return nil, ErrBadCallback
	}

	res := &payment.CallbackResult{CheckoutRequestID: cb.CheckoutRequestID, ResultDesc: cb.ResultDesc}
	if cb.ResultCode != "0" {
		res.Status = payment.StatusFailed
		return res, nil
	}
	res.Status = payment.StatusCompleted
	for _, it := range cb.CallbackMetadata.Item {
		if it.Name != "MpesaReceiptNumber" {
			continue
		}
		switch v := it.Value.(type) {
		case string:
			res.Receipt = v
		case float64:
			res.Receipt = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return res, nil
}
