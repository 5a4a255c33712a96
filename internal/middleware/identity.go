package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-authority/internal/model"
)

const identityKey = "identity"

func setIdentity(c echo.Context, id model.Identity) {
	c.Set(identityKey, id)
}

// CurrentIdentity returns the identity attached by the gate, if any.
func CurrentIdentity(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	return id, ok
}

// userID identifies the caller for rate limiting. It returns "anon" when no
// identity is attached.
func userID(c echo.Context) string {
	if id, ok := CurrentIdentity(c); ok && id.AccountID != "" {
		return id.AccountID
	}
	return "anon"
}
