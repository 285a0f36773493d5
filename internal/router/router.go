// Package router registers the HTTP routes of the API on an Echo
// instance together with the middleware each group needs.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-booking/internal/handler"
	"github.com/iliyamo/resource-booking/internal/middleware"
)

// Auth carries what protected groups need to verify access tokens.
type Auth struct {
	Secret string
	Issuer string
}

func (a Auth) jwt() echo.MiddlewareFunc { return middleware.JWTAuth(a.Secret, a.Issuer) }

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// protected /v1/me.  Token endpoints draw from the "auth" bucket; /v1/me
// counts against "users".
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, auth Auth, limit *middleware.RateLimiter) {
	g := e.Group("/v1/auth", limit.Bucket("auth"))
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)              // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess) // keeps the refresh token
	// logout authenticates itself from the body or the header
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, auth.jwt(), limit.Bucket("users"))
}
