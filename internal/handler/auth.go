package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/auth"
	"github.com/iliyamo/account-authority/internal/middleware"
	"github.com/iliyamo/account-authority/internal/service"
)

// requestTimeout bounds the store work done for one request.
const requestTimeout = 5 * time.Second

// AuthHandler serves signup, login and password change.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: svc}
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Signup registers a User account and signs it in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req service.SignupInput
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.Signup(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, withToken(envelope{
		Success: true,
		Message: "Account created successfully",
		Data:    res.Account,
	}, res.Token))
}

// Login exchanges a username and password for a token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, withToken(envelope{
		Success: true,
		Message: "Login successful",
		Data:    res.Account,
	}, res.Token))
}

// ChangePassword rotates the caller's password and returns a fresh token.
// Tokens issued before the change are rejected from then on.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return apperr.New(apperr.Authentication, middleware.MsgTokenRequired)
	}
	var req changePasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	tok, err := h.Auth.ChangePassword(ctx, id.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, withToken(envelope{
		Success: true,
		Message: "Password updated successfully",
	}, tok))
}

func withToken(env envelope, tok auth.Token) envelope {
	env.Token = tok.Value
	exp := tok.ExpiresAt.UTC()
	env.ExpiresAt = &exp
	return env
}

// bind decodes the request body; a malformed body is a validation error.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Wrap(apperr.Validation, err, "invalid request body")
	}
	return nil
}
