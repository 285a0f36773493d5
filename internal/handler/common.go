package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/resource-booking/internal/availability"
	"github.com/iliyamo/resource-booking/internal/middleware"
	"github.com/iliyamo/resource-booking/internal/model"
	"github.com/iliyamo/resource-booking/internal/repository"
	"github.com/iliyamo/resource-booking/internal/service"
	"github.com/iliyamo/resource-booking/internal/validation"
)

// dbTimeout bounds every handler's database work.
const dbTimeout = 5 * time.Second

// getUserID extracts the user id stored by middleware.JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if v, ok := c.Get(middleware.CtxUserID).(uint64); ok && v != 0 {
		return v, nil
	}
	return 0, errors.New("invalid user_id in context")
}

func isAdmin(c echo.Context) bool {
	role, _ := c.Get(middleware.CtxRole).(string)
	return role == model.RoleAdmin
}

func actor(c echo.Context) (service.Actor, error) {
	uid, err := getUserID(c)
	if err != nil {
		return service.Actor{}, err
	}
	return service.Actor{UserID: uid, Admin: isAdmin(c)}, nil
}

// parseID reads the :id path param.
func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// optionalUint parses an optional positive integer query parameter.
func optionalUint(c echo.Context, name string) (*uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return nil, errors.New(name + " must be a positive integer")
	}
	return &v, nil
}

// bind decodes and validates the request body into req.  The returned
// error is safe to show to the client.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.New("invalid body")
	}
	if err := c.Validate(req); err != nil {
		return errors.New(validation.Message(err))
	}
	return nil
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// writeError maps a domain error to its HTTP status.  Unknown errors are
// logged and reported as 500 without details.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, availability.ErrInvalidWindow), errors.Is(err, availability.ErrInvalidPage):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrBookingConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, repository.ErrEmailExists):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, repository.ErrConflict):
		status, msg = http.StatusConflict, "conflict with existing records"
	case errors.Is(err, repository.ErrBookingNotFound),
		errors.Is(err, repository.ErrResourceNotFound),
		errors.Is(err, repository.ErrResourceTypeNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, repository.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, repository.ErrBusy):
		status, msg = http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, repository.ErrRefreshInvalid):
		status, msg = http.StatusUnauthorized, "invalid refresh"
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "request timed out"
	}
	if status >= 500 && status != http.StatusServiceUnavailable {
		log.WithError(err).WithFields(log.Fields{
			"method":     c.Request().Method,
			"path":       c.Path(),
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		}).Error("request failed")
	}
	return c.JSON(status, echo.Map{"error": msg})
}
