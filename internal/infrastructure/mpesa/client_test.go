package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"p2p-lending-backend/internal/domain/payment"

	"github.com/shopspring/decimal"
)

type fakeDaraja struct {
	tokenCalls atomic.Int32
	lastPush   stkPushRequest
	queryReply func(w http.ResponseWriter)
	pushReply  func(w http.ResponseWriter)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeDaraja) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" || r.URL.Query().Get("grant_type") != "client_credentials" {
			writeJSON(w, http.StatusBadRequest, `{"errorCode":"400.008.01","errorMessage":"Invalid Authentication passed"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"access_token":"tok-123","expires_in":"3599"}`)
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			writeJSON(w, http.StatusUnauthorized, `{"errorCode":"404.001.03","errorMessage":"Invalid Access Token"}`)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.lastPush)
		if f.pushReply != nil {
			f.pushReply(w)
			return
		}
		writeJSON(w, http.StatusOK, `{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success. Request accepted for processing"}`)
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		f.queryReply(w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string) *Client {
	c := NewClient(Config{
		BaseURL:        url,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/api/payments/mpesa/callback",
		Timeout:        2 * time.Second,
	}, nil)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC) }
	return c
}

func TestPasswordAndTimestamp(t *testing.T) {
	ts := Timestamp(time.Date(2026, 3, 1, 22, 15, 5, 0, time.UTC))
	if ts != "20260302011505" {
		t.Fatalf("Timestamp = %s, want EAT 20260302011505", ts)
	}
	raw, err := base64.StdEncoding.DecodeString(Password("174379", "pk", ts))
	if err != nil || string(raw) != "174379pk20260302011505" {
		t.Fatalf("Password decodes to %q (%v)", raw, err)
	}
}

func TestInitiatePush_Success(t *testing.T) {
	f := &fakeDaraja{}
	c := newTestClient(f.server(t).URL)

	res, err := c.InitiatePush(context.Background(), payment.PushRequest{
		Amount:           decimal.NewFromInt(30_000),
		PhoneNumber:      "254712345678",
		AccountReference: "ABCDEF012345",
		Description:      "P2P lending payment",
	})
	if err != nil {
		t.Fatalf("InitiatePush: %v", err)
	}
	if res.CheckoutRequestID != "ws_CO_191220191020363925" || res.ResponseCode != "0" {
		t.Fatalf("response: %+v", res)
	}
	p := f.lastPush
	if p.Amount != 30_000 || p.PartyA != "254712345678" || p.PartyB != "174379" || p.TransactionType != "CustomerPayBillOnline" {
		t.Fatalf("push body: %+v", p)
	}
	if p.Timestamp != "20260301103000" || p.Password != Password("174379", "passkey", p.Timestamp) {
		t.Fatalf("credentials: ts=%s pw=%s", p.Timestamp, p.Password)
	}

	// token is cached for the next call
	if _, err := c.InitiatePush(context.Background(), payment.PushRequest{Amount: decimal.NewFromInt(1), PhoneNumber: "254712345678"}); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if n := f.tokenCalls.Load(); n != 1 {
		t.Fatalf("token fetched %d times, want 1", n)
	}
}

func TestInitiatePush_Rejected(t *testing.T) {
	f := &fakeDaraja{pushReply: func(w http.ResponseWriter) {
		writeJSON(w, http.StatusBadRequest, `{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`)
	}}
	c := newTestClient(f.server(t).URL)

	_, err := c.InitiatePush(context.Background(), payment.PushRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "254"})
	if !errors.Is(err, ErrUpstreamRequest) {
		t.Fatalf("want ErrUpstreamRequest, got %v", err)
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusBadRequest || ue.Body == "" {
		t.Fatalf("upstream detail missing: %+v", ue)
	}
}

func TestAccessToken_BadCredentials(t *testing.T) {
	f := &fakeDaraja{}
	c := newTestClient(f.server(t).URL)
	c.cfg.ConsumerSecret = "wrong"

	if _, err := c.AccessToken(context.Background()); !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("want ErrUpstreamAuth, got %v", err)
	}
}

func TestAccessToken_Unreachable(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	if _, err := c.AccessToken(context.Background()); !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("want ErrUpstreamAuth, got %v", err)
	}
}

func TestCheckStatus_Mapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   payment.Status
		code   string
	}{
		{"completed", 200, `{"ResponseCode":"0","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`, payment.StatusCompleted, "0"},
		{"numeric result code", 200, `{"ResponseCode":"0","ResultCode":0,"ResultDesc":"ok"}`, payment.StatusCompleted, "0"},
		{"cancelled by user", 200, `{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`, payment.StatusFailed, "1032"},
		{"insufficient funds", 200, `{"ResponseCode":"0","ResultCode":"1","ResultDesc":"The balance is insufficient for the transaction."}`, payment.StatusFailed, "1"},
		{"still processing", 500, `{"requestId":"1","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`, payment.StatusPending, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeDaraja{queryReply: func(w http.ResponseWriter) { writeJSON(w, tc.status, tc.body) }}
			c := newTestClient(f.server(t).URL)

			res, err := c.CheckStatus(context.Background(), "ws_CO_1")
			if err != nil {
				t.Fatalf("CheckStatus: %v", err)
			}
			if res.Status != tc.want || res.ResultCode != tc.code {
				t.Fatalf("got %+v, want %s/%s", res, tc.want, tc.code)
			}
		})
	}
}

func TestCheckStatus_UpstreamError(t *testing.T) {
	f := &fakeDaraja{queryReply: func(w http.ResponseWriter) {
		writeJSON(w, http.StatusBadRequest, `{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid CheckoutRequestID"}`)
	}}
	c := newTestClient(f.server(t).URL)
	if _, err := c.CheckStatus(context.Background(), "bogus"); !errors.Is(err, ErrUpstreamRequest) {
		t.Fatalf("want ErrUpstreamRequest, got %v", err)
	}
}

func TestCheckStatus_Timeout(t *testing.T) {
	f := &fakeDaraja{queryReply: func(w http.ResponseWriter) {
		time.Sleep(300 * time.Millisecond)
		writeJSON(w, 200, `{"ResultCode":"0"}`)
	}}
	c := newTestClient(f.server(t).URL)
	if _, err := c.AccessToken(context.Background()); err != nil {
		t.Fatalf("warm token: %v", err)
	}
	c.cfg.Timeout = 50 * time.Millisecond

	if _, err := c.CheckStatus(context.Background(), "ws_CO_1"); !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("want ErrUpstreamTimeout, got %v", err)
	}
}

func TestParseCallback(t *testing.T) {
	ok := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925","ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":1.00},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"TransactionDate","Value":20191219102115},{"Name":"PhoneNumber","Value":254708374149}]}}}}`)
	res, err := ParseCallback(ok)
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if res.Status != payment.StatusCompleted || res.Receipt != "NLJ7RT61SV" || res.CheckoutRequestID != "ws_CO_191220191020363925" {
		t.Fatalf("parsed: %+v", res)
	}

	cancelled := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"1","CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`)
	res, err = ParseCallback(cancelled)
	if err != nil || res.Status != payment.StatusFailed || res.ResultDesc != "Request cancelled by user" {
		t.Fatalf("cancelled: %+v %v", res, err)
	}

	for _, bad := range [][]byte{[]byte(`not json`), []byte(`{"Body":{}}`)} {
		if _, err := ParseCallback(bad); !errors.Is(err, ErrBadCallback) {
			t.Fatalf("ParseCallback(%s): want ErrBadCallback, got %v", bad, err)
		}
	}
}
