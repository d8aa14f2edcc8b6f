package http

import (
	"net/http"

	"p2p-lending-backend/internal/usecase/investment"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type InvestmentHandler struct{ uc *investment.Usecase }

func NewInvestmentHandler(uc *investment.Usecase) *InvestmentHandler {
	return &InvestmentHandler{uc: uc}
}

// investReq is checked by the usecase, in its own order (card first).
type investReq struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	AgreedToTerms bool            `json:"agreed_to_terms"`
	PhoneNumber   string          `json:"phone_number"`
}

func (h *InvestmentHandler) Invest(c echo.Context) error {
	var req investReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	res, err := h.uc.Submit(c.Request().Context(), investment.SubmitInput{
		InvestorID:    caller(c).UserID,
		LoanID:        c.Param("loan_id"),
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		AgreedToTerms: req.AgreedToTerms,
		PhoneNumber:   req.PhoneNumber,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type confirmTransferReq struct {
	Reference string `json:"reference" validate:"max=64"`
	Failed    bool   `json:"failed"`
	Reason    string `json:"reason"    validate:"max=255"`
}

// ConfirmBankTransfer is the back office marking a bank transfer received or not.
func (h *InvestmentHandler) ConfirmBankTransfer(c echo.Context) error {
	var req confirmTransferReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	tx, err := h.uc.ConfirmBankTransfer(c.Request().Context(), c.Param("transaction_id"), investment.ConfirmInput{
		AdminID:   caller(c).UserID,
		Reference: req.Reference,
		Failed:    req.Failed,
		Reason:    req.Reason,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}
