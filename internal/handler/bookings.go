package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-booking/internal/availability"
	"github.com/iliyamo/resource-booking/internal/model"
	"github.com/iliyamo/resource-booking/internal/repository"
	"github.com/iliyamo/resource-booking/internal/service"
)

// Availability search paging.
const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// BookingService is implemented by service.BookingService.
type BookingService interface {
	Create(ctx context.Context, actor service.Actor, b model.Booking) (model.Booking, error)
	Update(ctx context.Context, actor service.Actor, id uint64, ch service.BookingChanges) (model.Booking, error)
	Get(ctx context.Context, actor service.Actor, id uint64) (model.Booking, error)
	List(ctx context.Context, actor service.Actor, f repository.BookingFilter) ([]model.Booking, error)
	Delete(ctx context.Context, actor service.Actor, id uint64) error
}

// AvailabilitySearcher is implemented by availability.Engine.
type AvailabilitySearcher interface {
	SearchAvailability(ctx context.Context, q availability.Query) (availability.Page, error)
}

// BookingHandler serves /v1/bookings.
type BookingHandler struct {
	Bookings BookingService
	Engine   AvailabilitySearcher
}

func NewBookingHandler(bookings BookingService, engine AvailabilitySearcher) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Engine: engine}
}

type createBookingReq struct {
	ResourceID uint64    `json:"resource_id" validate:"required"`
	UserID     uint64    `json:"user_id"` // admins only; defaults to the caller
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
}

type updateBookingReq struct {
	ResourceID *uint64    `json:"resource_id" validate:"omitempty,min=1"`
	Start      *time.Time `json:"start"`
	End        *time.Time `json:"end"`
}

type bookingResp struct {
	ID         uint64    `json:"id"`
	ResourceID uint64    `json:"resource_id"`
	UserID     uint64    `json:"user_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toBookingResp(b model.Booking) bookingResp {
	return bookingResp{
		ID: b.ID, ResourceID: b.ResourceID, UserID: b.UserID,
		Start: b.StartsAt.UTC(), End: b.EndsAt.UTC(),
		CreatedAt: b.CreatedAt.UTC(), UpdatedAt: b.UpdatedAt.UTC(),
	}
}

type availableResource struct {
	ResourceID       uint64 `json:"resource_id"`
	Name             string `json:"name"`
	ResourceTypeID   uint64 `json:"resource_type_id"`
	ResourceTypeName string `json:"resource_type_name"`
}

type availabilityResp struct {
	TotalResults int                 `json:"total_results"`
	TotalPages   int                 `json:"total_pages"`
	CurrentPage  int                 `json:"current_page"`
	PageSize     int                 `json:"page_size"`
	Results      []availableResource `json:"results"`
}

// List accepts ?resource_id= and ?user_id= filters.
func (h *BookingHandler) List(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var f repository.BookingFilter
	if f.ResourceID, err = optionalUint(c, "resource_id"); err != nil {
		return badRequest(c, err.Error())
	}
	if f.UserID, err = optionalUint(c, "user_id"); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	bookings, err := h.Bookings.List(ctx, a, f)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]bookingResp, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResp(b))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) Get(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	b, err := h.Bookings.Get(ctx, a, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResp(b))
}

// Create returns 409 when the resource is already booked in the window.
func (h *BookingHandler) Create(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createBookingReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	b, err := h.Bookings.Create(ctx, a, model.Booking{
		ResourceID: req.ResourceID,
		UserID:     req.UserID,
		StartsAt:   req.Start,
		EndsAt:     req.End,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toBookingResp(b))
}

// Update changes any of resource, start and end.
func (h *BookingHandler) Update(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req updateBookingReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	b, err := h.Bookings.Update(ctx, a, id, service.BookingChanges{
		ResourceID: req.ResourceID,
		StartsAt:   req.Start,
		EndsAt:     req.End,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResp(b))
}

func (h *BookingHandler) Delete(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	if err := h.Bookings.Delete(ctx, a, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchAvailability lists resources free over [start, end).
// Query: start, end (RFC 3339, required), resource_id, page (default 1),
// page_size (default 10, capped at 100).
func (h *BookingHandler) SearchAvailability(c echo.Context) error {
	start, err := time.Parse(time.RFC3339, c.QueryParam("start"))
	if err != nil {
		return badRequest(c, "start must be an RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, c.QueryParam("end"))
	if err != nil {
		return badRequest(c, "end must be an RFC 3339 timestamp")
	}
	resourceID, err := optionalUint(c, "resource_id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	page, ok := intParam(c, "page", 1)
	if !ok {
		return badRequest(c, "page must be a positive integer")
	}
	pageSize, ok := intParam(c, "page_size", defaultPageSize)
	if !ok {
		return badRequest(c, "page_size must be a positive integer")
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	res, err := h.Engine.SearchAvailability(ctx, availability.Query{
		Start:      start.UTC().Truncate(time.Second),
		End:        end.UTC().Truncate(time.Second),
		ResourceID: resourceID,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return writeError(c, err)
	}
	out := availabilityResp{
		TotalResults: res.TotalResults,
		TotalPages:   res.TotalPages,
		CurrentPage:  res.CurrentPage,
		PageSize:     res.PageSize,
		Results:      make([]availableResource, 0, len(res.Results)),
	}
	for _, r := range res.Results {
		out.Results = append(out.Results, availableResource{
			ResourceID: r.ID, Name: r.Name, ResourceTypeID: r.ResourceTypeID, ResourceTypeName: r.TypeName,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// intParam parses an optional positive int query parameter, returning
// def when it is absent.
func intParam(c echo.Context, name string, def int) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
