package http

import (
	"net/http"

	userDomain "p2p-lending-backend/internal/domain/user"
	"p2p-lending-backend/internal/usecase/notification"
	"p2p-lending-backend/internal/usecase/user"

	"github.com/labstack/echo/v4"
)

type AccountHandler struct {
	users         *user.Usecase
	notifications *notification.Usecase
}

func NewAccountHandler(users *user.Usecase, notifications *notification.Usecase) *AccountHandler {
	return &AccountHandler{users: users, notifications: notifications}
}

func (h *AccountHandler) Me(c echo.Context) error {
	u, err := h.users.Me(c.Request().Context(), caller(c).UserID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

type profileReq struct {
	Name        string `json:"name"         validate:"required,max=128"`
	Email       string `json:"email"        validate:"required,email,max=191"`
	PhoneNumber string `json:"phone_number" validate:"required,msisdn"`
	Country     string `json:"country"      validate:"omitempty,max=64"`
}

// SaveProfile answers 201 when the profile was created, 200 on edits.
func (h *AccountHandler) SaveProfile(c echo.Context) error {
	var req profileReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	id := caller(c)
	u, created, err := h.users.SaveProfile(c.Request().Context(), user.ProfileInput{
		UserID:      id.UserID,
		Role:        userDomain.Role(id.Role),
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Country:     req.Country,
	})
	if err != nil {
		return respondErr(c, err)
	}
	if created {
		return c.JSON(http.StatusCreated, u)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AccountHandler) MyInvestments(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return respondErr(c, err)
	}
	res, err := h.users.Investments(c.Request().Context(), caller(c).UserID, page, size)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AccountHandler) Notifications(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return respondErr(c, err)
	}
	unread := c.QueryParam("unread") == "true" || c.QueryParam("unread") == "1"
	ns, err := h.notifications.List(c.Request().Context(), caller(c).UserID, unread, limit)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": ns, "count": len(ns)})
}

func (h *AccountHandler) MarkNotificationRead(c echo.Context) error {
	if err := h.notifications.MarkRead(c.Request().Context(), caller(c).UserID, c.Param("notification_id")); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
