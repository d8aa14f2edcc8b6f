package http

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/domain/payment"
	"p2p-lending-backend/internal/infrastructure/mpesa"
	paymentUC "p2p-lending-backend/internal/usecase/payment"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	uc *paymentUC.Usecase
	// upper bound for await_payment's ?timeout=
	maxAwait time.Duration
}

func NewPaymentHandler(uc *paymentUC.Usecase, maxAwait time.Duration) *PaymentHandler {
	if maxAwait <= 0 {
		maxAwait = 2 * time.Minute
	}
	return &PaymentHandler{uc: uc, maxAwait: maxAwait}
}

func viewer(c echo.Context) paymentUC.Viewer {
	id := caller(c)
	return paymentUC.Viewer{UserID: id.UserID, Admin: id.IsAdmin()}
}

type initiateReq struct {
	PhoneNumber   string          `json:"phoneNumber"    validate:"required,msisdn"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id" validate:"omitempty,hex32"`
}

func (h *PaymentHandler) InitiateMpesa(c echo.Context) error {
	var req initiateReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.uc.InitiateMpesa(c.Request().Context(), paymentUC.InitiateInput{
		UserID:        caller(c).UserID,
		PhoneNumber:   req.PhoneNumber,
		Amount:        req.Amount,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) CheckStatus(c echo.Context) error {
	res, err := h.uc.CheckStatus(c.Request().Context(), viewer(c), c.Param("transaction_id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// AwaitPayment holds the request until the payment resolves; 202 means it is
// still pending and the client should poll check_payment_status later.
func (h *PaymentHandler) AwaitPayment(c echo.Context) error {
	timeout := h.maxAwait
	if raw := c.QueryParam("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return respondErr(c, apperror.Field("timeout", "must be a positive number of seconds"))
		}
		if d := time.Duration(secs) * time.Second; d < timeout {
			timeout = d
		}
	}
	res, err := h.uc.AwaitPayment(c.Request().Context(), viewer(c), c.Param("transaction_id"), timeout)
	if err != nil {
		return respondErr(c, err)
	}
	if res.Status == string(payment.StatusPending) {
		return c.JSON(http.StatusAccepted, res)
	}
	return c.JSON(http.StatusOK, res)
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// MpesaCallback receives STK results from the provider. It always acks;
// anything it could not apply is picked up by the reconciliation sweep.
func (h *PaymentHandler) MpesaCallback(c echo.Context) error {
	ack := callbackAck{ResultCode: 0, ResultDesc: "Accepted"}
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil {
		slog.WarnContext(ctx, "mpesa callback: read body", "err", err)
		return c.JSON(http.StatusOK, ack)
	}
	cb, err := mpesa.ParseCallback(body)
	if err != nil {
		slog.WarnContext(ctx, "mpesa callback: rejected payload", "err", err, "body", string(body))
		return c.JSON(http.StatusOK, ack)
	}
	if err := h.uc.HandleCallback(ctx, *cb); err != nil {
		slog.ErrorContext(ctx, "mpesa callback: apply", "checkout_request_id", cb.CheckoutRequestID, "err", err)
	}
	return c.JSON(http.StatusOK, ack)
}

func (h *PaymentHandler) ListTransactions(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return respondErr(c, err)
	}
	res, err := h.uc.ListTransactions(c.Request().Context(), caller(c).UserID, page, size)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ReviewQueue lists transactions whose provider outcome needs a human.
func (h *PaymentHandler) ReviewQueue(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return respondErr(c, err)
	}
	res, err := h.uc.ListForReview(c.Request().Context(), page, size)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) GetTransaction(c echo.Context) error {
	tx, err := h.uc.GetTransaction(c.Request().Context(), viewer(c), c.Param("transaction_id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}
