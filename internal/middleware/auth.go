package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/auth"
	"github.com/iliyamo/account-authority/internal/logging"
	"github.com/iliyamo/account-authority/internal/model"
	"github.com/iliyamo/account-authority/internal/queue"
	"github.com/iliyamo/account-authority/internal/repository"
)

// Messages returned by the gate.
const (
	MsgTokenRequired           = "access token required"
	MsgAccountGone             = "account no longer exists"
	MsgAccountDeactivated      = "account deactivated"
	MsgPasswordChanged         = "password changed, please log in again"
	MsgInsufficientPermissions = "insufficient permissions"
)

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// AccountFinder resolves the account behind a token on every request.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// Gate authenticates requests and enforces roles. It caches nothing between
// requests: every call re-verifies the token and re-reads the account.
type Gate struct {
	tokens   TokenVerifier
	accounts AccountFinder
	events   queue.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate builds a Gate. events and logger may be nil.
func NewGate(tokens TokenVerifier, accounts AccountFinder, events queue.Publisher, logger *slog.Logger) *Gate {
	if events == nil {
		events = queue.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{tokens: tokens, accounts: accounts, events: events, logger: logger, now: time.Now}
}

// WithClock returns a copy of g that stamps audit events with now.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	cp := *g
	cp.now = now
	return &cp
}

// RequireAuth admits any live account holding a valid, fresh token and
// attaches its Identity to the context.
func (g *Gate) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := g.authenticate(c); err != nil {
			return err
		}
		return next(c)
	}
}

// AuthorizeRoles admits only callers whose token role is one of roles.
func (g *Gate) AuthorizeRoles(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := g.authenticate(c)
			if err != nil {
				return err
			}
			if !allowed[claims.Role] {
				g.denied(c, claims, roles)
				return apperr.New(apperr.Authorization, MsgInsufficientPermissions)
			}
			return next(c)
		}
	}
}

// authenticate runs extraction, verification, account resolution, the
// liveness check and the password freshness check, in that order.
func (g *Gate) authenticate(c echo.Context) (*auth.Claims, error) {
	raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		return nil, apperr.New(apperr.Authentication, MsgTokenRequired)
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request().Context()
	acc, err := g.accounts.FindByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.Authentication, MsgAccountGone)
		}
		logging.LogError(g.logger, "gate: resolve account failed", err, "account_id", claims.AccountID())
		return nil, apperr.Wrap(apperr.Internal, err, "resolve account")
	}
	if !acc.IsActive {
		return nil, apperr.New(apperr.Authentication, MsgAccountDeactivated)
	}
	if acc.ChangedPasswordAfter(claims.IssuedAtTime()) {
		return nil, apperr.New(apperr.Authentication, MsgPasswordChanged)
	}

	setIdentity(c, model.Identity{
		AccountID: acc.ID,
		Role:      claims.Role,
		Username:  acc.Username,
		Email:     acc.Email,
	})
	return claims, nil
}

// denied records a refused authorization for audit. The response never
// carries these details.
func (g *Gate) denied(c echo.Context, claims *auth.Claims, roles []model.Role) {
	req := c.Request()
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	g.logger.WarnContext(req.Context(), "authorization denied",
		"account_id", claims.AccountID(),
		"username", claims.Username,
		"role", string(claims.Role),
		"allowed_roles", allowed,
		"method", req.Method,
		"path", req.URL.Path,
	)

	ev := queue.AccessDeniedEvent{
		AccountID:    claims.AccountID(),
		Username:     claims.Username,
		Role:         string(claims.Role),
		AllowedRoles: allowed,
		Method:       req.Method,
		Path:         req.URL.Path,
		DeniedAt:     g.now().UTC().Format(time.RFC3339),
	}
	if err := g.events.Publish(req.Context(), queue.AccessDeniedQueue, ev); err != nil {
		g.logger.WarnContext(req.Context(), "publish audit event failed", "queue", queue.AccessDeniedQueue, "error", err)
	}
}

func bearerToken(header string) (string, bool) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
