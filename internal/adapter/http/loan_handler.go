package http

import (
	"net/http"

	"p2p-lending-backend/internal/usecase/loan"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type LoanHandler struct{ uc *loan.Usecase }

func NewLoanHandler(uc *loan.Usecase) *LoanHandler { return &LoanHandler{uc: uc} }

type applyLoanReq struct {
	Amount       float64 `json:"amount"        validate:"required,intlike"`
	TermMonths   int     `json:"term_months"   validate:"required"`
	InterestRate float64 `json:"interest_rate" validate:"required,dec2"`
	Purpose      string  `json:"purpose"       validate:"required"`
	Description  string  `json:"description"   validate:"required"`
	LoanType     *int    `json:"loan_type"`
}

func (h *LoanHandler) Apply(c echo.Context) error {
	var req applyLoanReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.uc.Apply(c.Request().Context(), loan.ApplyInput{
		BorrowerID:   caller(c).UserID,
		Amount:       decimal.NewFromFloat(req.Amount),
		TermMonths:   req.TermMonths,
		InterestRate: req.InterestRate,
		Purpose:      req.Purpose,
		Description:  req.Description,
		LoanType:     req.LoanType,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) Get(c echo.Context) error {
	dto, err := h.uc.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// Search serves the marketplace listing.
func (h *LoanHandler) Search(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return respondErr(c, err)
	}
	res, err := h.uc.Search(c.Request().Context(), loan.SearchInput{
		Search:    c.QueryParam("search"),
		Status:    c.QueryParam("status"),
		Sort:      c.QueryParam("sort"),
		Direction: c.QueryParam("direction"),
		Page:      page,
		PageSize:  size,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) Mine(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return respondErr(c, err)
	}
	res, err := h.uc.Mine(c.Request().Context(), caller(c).UserID, c.QueryParam("status"), page, size)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
