package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-booking/internal/handler"
	"github.com/iliyamo/resource-booking/internal/middleware"
)

// RegisterBookings registers /v1/bookings.  Ownership is enforced by the
// booking service, so no role middleware is needed.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, auth Auth, limit *middleware.RateLimiter) {
	g := e.Group("/v1/bookings", auth.jwt(), limit.Bucket("bookings"))
	g.GET("/availability", h.SearchAvailability)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}
