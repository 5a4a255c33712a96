// Package router builds the echo server: the ambient middleware chain, the
// error handler and every route with the gate it requires.
package router

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/account-authority/internal/config"
	"github.com/iliyamo/account-authority/internal/handler"
	"github.com/iliyamo/account-authority/internal/middleware"
	"github.com/iliyamo/account-authority/internal/model"
	"github.com/iliyamo/account-authority/internal/service"
)

// Deps are the collaborators the server is assembled from. Redis may be nil,
// which disables rate limiting.
type Deps struct {
	Config config.Config
	Logger *slog.Logger
	Auth   *service.AuthService
	Gate   *middleware.Gate
	Redis  *redis.Client
	Now    func() time.Time
}

// New returns a fully wired echo instance.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(d.Logger)

	e.Use(echomw.Recover())
	e.Use(requestLogger(d.Logger))
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     d.Config.AllowedOrigins,
		AllowCredentials: true,
	}))
	if d.Config.BodyLimit != "" {
		e.Use(echomw.BodyLimit(d.Config.BodyLimit))
	}
	e.Use(middleware.NewTokenBucket(d.Config.RateLimit, d.Redis, d.Logger))

	RegisterRoutes(e, d.Config.Env, d.Now)
	RegisterAuth(e, handler.NewAuthHandler(d.Auth), d.Gate,
		middleware.NewTokenBucket(d.Config.AuthRateLimit, d.Redis, d.Logger))
	RegisterUsers(e, handler.NewUserHandler(d.Auth), d.Gate)
	return e
}

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo, env string, now func() time.Time) {
	e.GET("/health", handler.Health(env, now))
}

// RegisterAuth registers signup and login behind the stricter limiter, and
// password change behind RequireAuth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, gate *middleware.Gate, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/auth")
	g.POST("/signup", a.Signup, limiter)
	g.POST("/login", a.Login, limiter)
	g.PUT("/password", a.ChangePassword, gate.RequireAuth)
}

// RegisterUsers registers the profile route and the Admin-only account
// management routes. Middleware is attached per route so unknown paths
// under /api/users still answer 404.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, gate *middleware.Gate) {
	adminOnly := gate.AuthorizeRoles(model.RoleAdmin)

	g := e.Group("/api/users")
	g.GET("/me", u.Me, gate.RequireAuth)
	g.DELETE("/:id", u.Delete, adminOnly)
	g.PATCH("/:id/status", u.UpdateStatus, adminOnly)
}

// requestLogger feeds echo's request logger into slog. Errors are handed to
// the HTTP error handler first so the logged status is the one sent.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= 500:
				level = slog.LevelError
			case v.Status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	})
}
