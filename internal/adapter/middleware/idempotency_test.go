package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"p2p-lending-backend/internal/auth"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	testSecret = "0123456789abcdef-secret"
	idemKey    = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

var lender = auth.Identity{UserID: strings.Repeat("1", 32), Role: auth.RoleLender}

func setupEcho(t *testing.T, rdb *redis.Client, handler echo.HandlerFunc) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.HideBanner = true
	g := e.Group("", JWTAuth(auth.NewJWTManager(testSecret, time.Hour)), Idempotency(rdb, 2*time.Minute))
	g.POST("/invest", handler)
	g.GET("/invest", handler)
	g.POST("/loans/:loan_id/invest", handler)
	return e
}

func bearer(t *testing.T, id auth.Identity) string {
	t.Helper()
	tok, err := auth.NewJWTManager(testSecret, time.Hour).Generate(id)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + tok
}

func doReq(t *testing.T, e *echo.Echo, method string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	return doPath(t, e, method, "/invest", body, hdr)
}

func doPath(t *testing.T, e *echo.Echo, method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func validHeaders(t *testing.T, id auth.Identity) map[string]string {
	return map[string]string{
		echo.HeaderAuthorization: bearer(t, id),
		HeaderIdempotencyKey:     idemKey,
		HeaderRequestAt:          time.Now().UTC().Format(time.RFC3339),
	}
}

func countingHandler(calls *int, code int) echo.HandlerFunc {
	return func(c echo.Context) error {
		*calls++
		return c.JSON(code, map[string]any{"call": *calls})
	}
}

func Test_BypassOnGET(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var calls int
	e := setupEcho(t, rdb, countingHandler(&calls, http.StatusOK))
	rec := doReq(t, e, http.MethodGet, nil, map[string]string{echo.HeaderAuthorization: bearer(t, lender)})
	if rec.Code != http.StatusOK {
		t.Fatalf("GET => %d", rec.Code)
	}
}

func Test_HeaderValidation(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var calls int
	e := setupEcho(t, rdb, countingHandler(&calls, http.StatusCreated))

	cases := map[string]func(h map[string]string){
		"missing key": func(h map[string]string) { delete(h, HeaderIdempotencyKey) },
		"bad key":     func(h map[string]string) { h[HeaderIdempotencyKey] = "NOT-VALID" },
		"missing at":  func(h map[string]string) { delete(h, HeaderRequestAt) },
		"garbage at":  func(h map[string]string) { h[HeaderRequestAt] = "yesterday" },
		"skewed at": func(h map[string]string) {
			h[HeaderRequestAt] = time.Now().Add(-maxClockSkew - time.Minute).UTC().Format(time.RFC3339)
		},
		"naive at": func(h map[string]string) { h[HeaderRequestAt] = time.Now().UTC().Format("2006-01-02T15:04:05") },
	}
	for name, mutate := range cases {
		h := validHeaders(t, lender)
		mutate(h)
		if rec := doReq(t, e, http.MethodPost, strings.NewReader(`{}`), h); rec.Code != http.StatusBadRequest {
			t.Errorf("%s => %d, want 400", name, rec.Code)
		}
	}
	if calls != 0 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func Test_Replay(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var calls int
	e := setupEcho(t, rdb, countingHandler(&calls, http.StatusCreated))

	rec1 := doReq(t, e, http.MethodPost, strings.NewReader(`{"amount":2000}`), validHeaders(t, lender))
	rec2 := doReq(t, e, http.MethodPost, strings.NewReader(`{"amount":2000}`), validHeaders(t, lender))
	if rec1.Code != http.StatusCreated || rec2.Code != http.StatusCreated {
		t.Fatalf("codes = %d, %d", rec1.Code, rec2.Code)
	}
	if rec1.Body.String() != rec2.Body.String() || calls != 1 {
		t.Fatalf("replay ran handler again: calls=%d %q vs %q", calls, rec1.Body.String(), rec2.Body.String())
	}
	if rec2.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("replay not marked")
	}

	// same key, other caller: separate entry
	other := auth.Identity{UserID: strings.Repeat("2", 32), Role: auth.RoleLender}
	if rec := doReq(t, e, http.MethodPost, strings.NewReader(`{"amount":2000}`), validHeaders(t, other)); rec.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("other caller: %d calls=%d", rec.Code, calls)
	}
}

func Test_SameKeyOnOtherLoanIsNotReplayed(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var calls int
	e := setupEcho(t, rdb, countingHandler(&calls, http.StatusCreated))

	body := `{"amount":2000,"payment_method":"mpesa","agreed_to_terms":true}`
	a := doPath(t, e, http.MethodPost, "/loans/"+strings.Repeat("a", 32)+"/invest", strings.NewReader(body), validHeaders(t, lender))
	b := doPath(t, e, http.MethodPost, "/loans/"+strings.Repeat("b", 32)+"/invest", strings.NewReader(body), validHeaders(t, lender))
	if a.Code != http.StatusCreated || b.Code != http.StatusCreated {
		t.Fatalf("codes = %d, %d", a.Code, b.Code)
	}
	if calls != 2 || b.Header().Get("Idempotent-Replayed") == "true" {
		t.Fatalf("second loan got the first loan's response: calls=%d", calls)
	}

	// a retry on the same loan still replays
	again := doPath(t, e, http.MethodPost, "/loans/"+strings.Repeat("b", 32)+"/invest", strings.NewReader(body), validHeaders(t, lender))
	if again.Code != http.StatusCreated || calls != 2 || again.Body.String() != b.Body.String() {
		t.Fatalf("retry => %d calls=%d", again.Code, calls)
	}
}

func Test_Conflicts(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var calls int
	e := setupEcho(t, rdb, countingHandler(&calls, http.StatusCreated))

	if rec := doReq(t, e, http.MethodPost, strings.NewReader(`{"amount":2000}`), validHeaders(t, lender)); rec.Code != http.StatusCreated {
		t.Fatalf("first => %d", rec.Code)
	}
	if rec := doReq(t, e, http.MethodPost, strings.NewReader(`{"amount":3000}`), validHeaders(t, lender)); rec.Code != http.StatusConflict {
		t.Fatalf("different body => %d, want 409", rec.Code)
	}

	body := []byte(`{"x":1}`)
	key := buildKey(http.MethodPost, "/invest", lender.UserID, strings.Repeat("b", 32))
	if ok, err := provisionalSet(context.Background(), rdb, key, idempEntry{InProgress: true, BodySHA256: bodyHash(body)}); err != nil || !ok {
		t.Fatalf("seed: %v %v", ok, err)
	}
	h := validHeaders(t, lender)
	h[HeaderIdempotencyKey] = strings.Repeat("b", 32)
	if rec := doReq(t, e, http.MethodPost, bytes.NewReader(body), h); rec.Code != http.StatusConflict {
		t.Fatalf("in progress => %d, want 409", rec.Code)
	}
}

func Test_ServerErrorReleasesKey(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	defer mr.Close()
	var calls int
	e := setupEcho(t, rdb, countingHandler(&calls, http.StatusBadGateway))

	for i := 1; i <= 2; i++ {
		rec := doReq(t, e, http.MethodPost, strings.NewReader(`{}`), validHeaders(t, lender))
		if rec.Code != http.StatusBadGateway || calls != i {
			t.Fatalf("attempt %d: code=%d calls=%d", i, rec.Code, calls)
		}
	}
}

func Test_StoreUnavailable_Returns503(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	var calls int
	e := setupEcho(t, rdb, countingHandler(&calls, http.StatusCreated))
	if rec := doReq(t, e, http.MethodPost, strings.NewReader(`{}`), validHeaders(t, lender)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable => %d, want 503", rec.Code)
	}
}
