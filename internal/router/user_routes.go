package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-booking/internal/handler"
	"github.com/iliyamo/resource-booking/internal/middleware"
	"github.com/iliyamo/resource-booking/internal/model"
)

// RegisterUsers registers /v1/users.  Any authenticated caller may read;
// creating users is for admins; update and delete check self-or-admin
// in the handler.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, auth Auth, limit *middleware.RateLimiter) {
	g := e.Group("/v1/users", auth.jwt(), limit.Bucket("users"))
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("", h.Create, middleware.RequireRole(model.RoleAdmin))
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}
