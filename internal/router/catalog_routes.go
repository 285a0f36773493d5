package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-booking/internal/handler"
	"github.com/iliyamo/resource-booking/internal/middleware"
	"github.com/iliyamo/resource-booking/internal/model"
)

// RegisterCatalog registers /v1/resourcetypes and /v1/resources.  Reads
// need a valid token and are served through cache; writes are for
// admins and purge the cache.  Both groups share one cache namespace
// because resource responses embed type names.
func RegisterCatalog(e *echo.Echo, types *handler.ResourceTypeHandler, resources *handler.ResourceHandler,
	auth Auth, limit *middleware.RateLimiter, cache echo.MiddlewareFunc) {
	admin := middleware.RequireRole(model.RoleAdmin)

	bucket := limit.Bucket("catalog")
	rt := e.Group("/v1/resourcetypes", auth.jwt(), bucket, cache)
	rt.GET("", types.List)
	rt.GET("/:id", types.Get)
	rt.POST("", types.Create, admin)
	rt.PUT("/:id", types.Update, admin)
	rt.DELETE("/:id", types.Delete, admin)

	rs := e.Group("/v1/resources", auth.jwt(), bucket, cache)
	rs.GET("", resources.List)
	rs.GET("/:id", resources.Get)
	rs.POST("", resources.Create, admin)
	rs.PUT("/:id", resources.Update, admin)
	rs.DELETE("/:id", resources.Delete, admin)
}
