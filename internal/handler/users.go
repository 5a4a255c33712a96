package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/middleware"
	"github.com/iliyamo/account-authority/internal/service"
)

// UserHandler serves the caller's profile and admin account management.
type UserHandler struct {
	Auth *service.AuthService
}

func NewUserHandler(svc *service.AuthService) *UserHandler {
	return &UserHandler{Auth: svc}
}

type statusReq struct {
	IsActive *bool `json:"isActive"`
}

// Me returns the authenticated caller's account.
func (h *UserHandler) Me(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return apperr.New(apperr.Authentication, middleware.MsgTokenRequired)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	acc, err := h.Auth.GetAccount(ctx, id.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: acc})
}

// Delete removes the account named by :id. Admin only.
func (h *UserHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.DeleteAccount(ctx, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: "Account deleted successfully"})
}

// UpdateStatus activates or deactivates the account named by :id. Admin only.
func (h *UserHandler) UpdateStatus(c echo.Context) error {
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.IsActive == nil {
		return apperr.New(apperr.Validation, "isActive is required").WithField("isActive")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	acc, err := h.Auth.SetActive(ctx, c.Param("id"), *req.IsActive)
	if err != nil {
		return err
	}
	msg := "Account deactivated"
	if acc.IsActive {
		msg = "Account activated"
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: msg, Data: acc})
}
